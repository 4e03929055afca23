package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// NewAnalyticsCmd creates the analytics command.
func NewAnalyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Query audit analytics",
	}

	var hours, top int
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Totals, block rate and top offenders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{"hours": {strconv.Itoa(hours)}, "top": {strconv.Itoa(top)}}
			return fetchAndPrint(cmd, "/admin/analytics/summary", query)
		},
	}
	summary.Flags().IntVar(&hours, "hours", 24, "Time range in hours (1-720)")
	summary.Flags().IntVar(&top, "top", 10, "Number of top offenders")

	var severityHours int
	severity := &cobra.Command{
		Use:   "severity LEVEL",
		Short: "Events of one severity (LOW, MEDIUM, HIGH, CRITICAL)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{"hours": {strconv.Itoa(severityHours)}}
			return fetchAndPrint(cmd, "/admin/analytics/severity/"+url.PathEscape(args[0]), query)
		},
	}
	severity.Flags().IntVar(&severityHours, "hours", 24, "Time range in hours (1-720)")

	cmd.AddCommand(summary, severity,
		&cobra.Command{
			Use:   "health",
			Short: "Last hour compared with the last day",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return fetchAndPrint(cmd, "/admin/analytics/health", nil)
			},
		},
		&cobra.Command{
			Use:   "stream",
			Short: "Alert stream length and consumer groups",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return fetchAndPrint(cmd, "/admin/analytics/stream", nil)
			},
		},
		&cobra.Command{
			Use:   "blocked-ip IP",
			Short: "Blocked events for an IP address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return fetchAndPrint(cmd, "/admin/analytics/blocked/ip/"+url.PathEscape(args[0]), nil)
			},
		},
		&cobra.Command{
			Use:   "blocked-client ID",
			Short: "Blocked events for a client identity",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return fetchAndPrint(cmd, "/admin/analytics/blocked/client/"+url.PathEscape(args[0]), nil)
			},
		},
	)
	return cmd
}

func fetchAndPrint(cmd *cobra.Command, path string, query url.Values) error {
	var out any
	if err := newAdminClient().do(cmd.Context(), http.MethodGet, path, query, nil, &out); err != nil {
		return fmt.Errorf("query %s: %w", path, err)
	}
	return printJSON(cmd.OutOrStdout(), out)
}
