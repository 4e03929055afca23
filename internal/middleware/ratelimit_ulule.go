package middleware

import (
	"fmt"
	"net/http"

	"github.com/kusuridheeraj/titan-grid/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

const (
	// DefaultAdminRate throttles the admin surface per client IP
	DefaultAdminRate    = "20-S"
	adminThrottlePrefix = "aegis_admin_limiter"
)

// AdminThrottle returns ulule/limiter middleware backed by Redis, keyed by client IP.
// rate uses the formatted syntax, e.g. "20-S" or "1000-H".
func AdminThrottle(redisClient *redis.Client, rate string) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = DefaultAdminRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid admin rate %q: %w", rate, err)
	}
	store, err := redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: adminThrottlePrefix})
	if err != nil {
		return nil, fmt.Errorf("failed to create admin throttle store: %w", err)
	}
	instance := limiter.New(store, parsed)
	keyGetter := func(r *http.Request) string {
		return request.ClientIP(r)
	}
	mw := stdlibmw.NewMiddleware(instance, stdlibmw.WithKeyGetter(keyGetter))
	return mw.Handler, nil
}
