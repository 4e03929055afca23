package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/ulule/limiter/v3"
)

// parseRate converts a formatted rate such as "100-M" into a limit and window in seconds.
func parseRate(formatted string) (int, int, error) {
	rate, err := limiter.NewRateFromFormatted(strings.TrimSpace(formatted))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid rate %q (expected e.g. 5-S, 100-M, 1000-H, 10000-D): %w", formatted, err)
	}
	window := int(rate.Period / time.Second)
	if rate.Limit <= 0 || window <= 0 {
		return 0, 0, fmt.Errorf("invalid rate %q: limit and period must be positive", formatted)
	}
	return int(rate.Limit), window, nil
}

// limitFlags resolves --rate or the explicit --limit/--window pair
type limitFlags struct {
	rate   string
	limit  int
	window int
}

func (f limitFlags) resolve() (int, int, error) {
	if f.rate != "" {
		if f.limit != 0 || f.window != 0 {
			return 0, 0, fmt.Errorf("--rate cannot be combined with --limit or --window")
		}
		return parseRate(f.rate)
	}
	if f.limit <= 0 || f.window <= 0 {
		return 0, 0, fmt.Errorf("either --rate or positive --limit and --window are required")
	}
	return f.limit, f.window, nil
}
