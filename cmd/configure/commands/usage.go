package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kusuridheeraj/titan-grid/internal/handlers"
	"github.com/spf13/cobra"
)

// NewUsageCmd creates the usage command.
func NewUsageCmd() *cobra.Command {
	var clientID, endpoint, rate string
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show a client's current window without consuming quota",
		Long:  "Show a client's current window, e.g. aegis-configure usage --client ip:10.0.0.1 --endpoint /api/orders --rate 100-M",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{"clientId": {clientID}, "endpoint": {endpoint}}
			if rate != "" {
				limit, window, err := parseRate(rate)
				if err != nil {
					return err
				}
				query.Set("limit", strconv.Itoa(limit))
				query.Set("windowSeconds", strconv.Itoa(window))
			}
			var usage handlers.UsageResponse
			if err := newAdminClient().do(cmd.Context(), http.MethodGet, "/admin/usage", query, nil, &usage); err != nil {
				return fmt.Errorf("get usage: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), usage)
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "Client identity, e.g. ip:10.0.0.1 or apikey:abc (required)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Endpoint key, e.g. /api/orders (required)")
	cmd.Flags().StringVar(&rate, "rate", "", "Rule to evaluate against, e.g. 100-M (default: server default rule)")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}

// NewResetCmd creates the reset command.
func NewResetCmd() *cobra.Command {
	var clientID, endpoint string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset a client's counter for an endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{"clientId": {clientID}, "endpoint": {endpoint}}
			if err := newAdminClient().do(cmd.Context(), http.MethodPost, "/admin/reset", query, nil, nil); err != nil {
				return fmt.Errorf("reset counter: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Counter reset for %s on %s\n", clientID, endpoint)
			return nil
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "Client identity (required)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Endpoint key (required)")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}
