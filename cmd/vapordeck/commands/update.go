package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vapordeck/vapordeck/pkg/state"
)

func newUpdateCommand(version string) *cobra.Command {
	var (
		setFlags    []string
		configFlags []string
	)

	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Update an instance's configuration and reprovision",
		Long: `Merge new input over the existing record and reprovision.

Name and provider are fixed at creation and cannot be changed. Fields
not mentioned keep their current values; explicit false and zero
values replace existing ones.`,
		Example: `  vapordeck update demo-1 --set instance_type=GPU-3080-S
  vapordeck update demo-1 --config-set keyboard_layout=fr`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provisionInput, err := parseSetFlags(setFlags)
			if err != nil {
				return err
			}
			configInput, err := parseSetFlags(configFlags)
			if err != nil {
				return err
			}
			if len(provisionInput) == 0 && len(configInput) == 0 {
				return fmt.Errorf("nothing to update, pass --set or --config-set")
			}

			return withApp(cmd.Context(), version, func(ctx context.Context, a *app) error {
				st, err := a.manager.Update(ctx, args[0], state.Partial{
					ProvisionInput:     provisionInput,
					ConfigurationInput: configInput,
				})
				if err != nil {
					return err
				}
				fmt.Printf("instance %s updated (host: %v)\n", st.Name, st.Provision.Output["host"])
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&setFlags, "set", nil, "provisioning input as key=value, repeatable")
	cmd.Flags().StringArrayVar(&configFlags, "config-set", nil, "configuration input as key=value, repeatable")

	return cmd
}
