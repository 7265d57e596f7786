package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vapordeck",
		Short: "Vapordeck - Cloud gaming instance manager",
		Long: `Vapordeck provisions and manages cloud gaming instances across
providers.

Instance records are versioned, validated against provider schemas,
and persisted with optimistic concurrency control. Lifecycle verbs
are journaled and guarded by policy.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newCreateCommand(version))
	rootCmd.AddCommand(newUpdateCommand(version))
	rootCmd.AddCommand(newStartCommand(version))
	rootCmd.AddCommand(newStopCommand(version))
	rootCmd.AddCommand(newRestartCommand(version))
	rootCmd.AddCommand(newConfigureCommand(version))
	rootCmd.AddCommand(newDestroyCommand(version))
	rootCmd.AddCommand(newListCommand(version))
	rootCmd.AddCommand(newShowCommand(version))
	rootCmd.AddCommand(newHistoryCommand(version))
	rootCmd.AddCommand(newWatchCommand(version))

	return rootCmd
}
