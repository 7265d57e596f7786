package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStartCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "start <name>",
		Short: "Power a provisioned instance on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), version, func(ctx context.Context, a *app) error {
				if err := a.manager.Start(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("instance %s started\n", args[0])
				return nil
			})
		},
	}
}

func newStopCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Power a provisioned instance off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), version, func(ctx context.Context, a *app) error {
				if err := a.manager.Stop(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("instance %s stopped\n", args[0])
				return nil
			})
		},
	}
}

func newRestartCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Restart a provisioned instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), version, func(ctx context.Context, a *app) error {
				if err := a.manager.Restart(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("instance %s restarted\n", args[0])
				return nil
			})
		},
	}
}

func newConfigureCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "configure <name>",
		Short: "Apply the recorded configuration to an instance",
		Long: `Apply the record's configuration input to the provisioned machine
through the provider's runner.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), version, func(ctx context.Context, a *app) error {
				if err := a.manager.ApplyConfiguration(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("instance %s configured\n", args[0])
				return nil
			})
		},
	}
}
