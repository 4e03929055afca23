package main

import (
	"fmt"
	"os"

	"github.com/kusuridheeraj/titan-grid/cmd/configure/commands"
	"github.com/kusuridheeraj/titan-grid/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	var rootCmd = &cobra.Command{
		Use:           "aegis-configure",
		Short:         "Configuration tool for the Aegis rate limiter",
		Long:          "CLI tool for managing dynamic rules, counters and analytics through the Aegis admin API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	commands.AddConnectionFlags(rootCmd)

	rootCmd.AddCommand(commands.NewRulesCmd())
	rootCmd.AddCommand(commands.NewUsageCmd())
	rootCmd.AddCommand(commands.NewResetCmd())
	rootCmd.AddCommand(commands.NewAnalyticsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
