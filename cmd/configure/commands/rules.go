package commands

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/kusuridheeraj/titan-grid/internal/handlers"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/spf13/cobra"
)

// NewRulesCmd creates the rules command with list, add, update, enable, disable and delete subcommands.
func NewRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage dynamic rate limit rules",
		Long:  "List and edit the dynamic rules stored in PostgreSQL. Changes apply on every instance once its rule cache expires.",
	}
	cmd.AddCommand(newRulesListCmd())
	cmd.AddCommand(newRulesAddCmd())
	cmd.AddCommand(newRulesUpdateCmd())
	cmd.AddCommand(newRulesToggleCmd("enable", true))
	cmd.AddCommand(newRulesToggleCmd("disable", false))
	cmd.AddCommand(newRulesDeleteCmd())
	return cmd
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dynamic rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rules []models.RuleRecord
			if err := newAdminClient().do(cmd.Context(), http.MethodGet, "/admin/rules", nil, nil, &rules); err != nil {
				return fmt.Errorf("list rules: %w", err)
			}
			if len(rules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No dynamic rules configured")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPATTERN\tLIMIT\tWINDOW\tCLIENT\tPRIORITY\tENABLED")
			for _, r := range rules {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%ds\t%s\t%d\t%t\n",
					r.ID, r.EndpointPattern, r.LimitCount, r.WindowSeconds, r.ClientType, r.Priority, r.Enabled)
			}
			return tw.Flush()
		},
	}
}

// ruleFlags are shared by add and update
type ruleFlags struct {
	limitFlags
	pattern     string
	clientType  string
	customKey   string
	priority    int
	description string
	createdBy   string
	disabled    bool
}

func (f *ruleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.pattern, "pattern", "", "Endpoint pattern, e.g. /api/orders/** (required)")
	cmd.Flags().StringVar(&f.rate, "rate", "", "Formatted rate, e.g. 100-M")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Requests allowed per window")
	cmd.Flags().IntVar(&f.window, "window", 0, "Window in seconds")
	cmd.Flags().StringVar(&f.clientType, "client-type", "IP", "IP, API_KEY, USER_ID or CUSTOM")
	cmd.Flags().StringVar(&f.customKey, "custom-key", "", "Header carrying the identity for CUSTOM rules")
	cmd.Flags().IntVar(&f.priority, "priority", 0, "Higher priority rules win")
	cmd.Flags().StringVar(&f.description, "description", "", "Free-form description")
	cmd.Flags().StringVar(&f.createdBy, "created-by", "", "Author recorded on the rule")
	cmd.Flags().BoolVar(&f.disabled, "disabled", false, "Create the rule disabled")
	_ = cmd.MarkFlagRequired("pattern")
}

func (f *ruleFlags) request() (*handlers.RuleRequest, error) {
	limit, window, err := f.resolve()
	if err != nil {
		return nil, err
	}
	clientType, err := models.ParseClientType(f.clientType)
	if err != nil {
		return nil, err
	}
	enabled := !f.disabled
	req := &handlers.RuleRequest{
		EndpointPattern: f.pattern,
		LimitCount:      limit,
		WindowSeconds:   window,
		ClientType:      string(clientType),
		Enabled:         &enabled,
		Priority:        f.priority,
	}
	if f.customKey != "" {
		req.CustomKey = &f.customKey
	}
	if f.description != "" {
		req.Description = &f.description
	}
	if f.createdBy != "" {
		req.CreatedBy = &f.createdBy
	}
	return req, nil
}

func newRulesAddCmd() *cobra.Command {
	var flags ruleFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a dynamic rule",
		Long:  "Add a dynamic rule, e.g. aegis-configure rules add --pattern '/api/search/**' --rate 100-M --client-type API_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			var created models.RuleRecord
			if err := newAdminClient().do(cmd.Context(), http.MethodPost, "/admin/rules", nil, req, &created); err != nil {
				return fmt.Errorf("add rule: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rule %d created: %s %d/%ds\n", created.ID, created.EndpointPattern, created.LimitCount, created.WindowSeconds)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newRulesUpdateCmd() *cobra.Command {
	var flags ruleFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Replace a dynamic rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			req, err := flags.request()
			if err != nil {
				return err
			}
			if err := newAdminClient().do(cmd.Context(), http.MethodPut, "/admin/rules/"+strconv.FormatInt(id, 10), nil, req, nil); err != nil {
				return fmt.Errorf("update rule %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rule %d updated\n", id)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newRulesToggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: fmt.Sprintf("%s a dynamic rule", capitalize(use)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			body := map[string]bool{"enabled": enabled}
			if err := newAdminClient().do(cmd.Context(), http.MethodPatch, "/admin/rules/"+strconv.FormatInt(id, 10)+"/enabled", nil, body, nil); err != nil {
				return fmt.Errorf("%s rule %d: %w", use, id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rule %d %sd\n", id, use)
			return nil
		},
	}
}

func newRulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a dynamic rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			if err := newAdminClient().do(cmd.Context(), http.MethodDelete, "/admin/rules/"+strconv.FormatInt(id, 10), nil, nil, nil); err != nil {
				return fmt.Errorf("delete rule %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rule %d deleted\n", id)
			return nil
		},
	}
}

func parseRuleID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("rule ID must be a positive integer, got %q", s)
	}
	return id, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
