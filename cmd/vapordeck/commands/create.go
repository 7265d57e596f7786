package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vapordeck/vapordeck/pkg/state"
)

func newCreateCommand(version string) *cobra.Command {
	var (
		providerTag  string
		configurator string
		setFlags     []string
		configFlags  []string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create and provision an instance",
		Long: `Create an instance record and provision its cloud resources.

Provider defaults are merged beneath the given input, the record is
validated and persisted before provisioning starts, and the
provisioning output is persisted on success. A failed provision keeps
the record so the create can be retried.`,
		Example: `  # Create a Scaleway instance with defaults
  vapordeck create demo-1 --provider scaleway

  # Override provisioning input
  vapordeck create demo-1 --provider scaleway \
    --set zone=fr-par-1 --set instance_type=GPU-3070-S \
    --config-set auto_stop.enabled=true --config-set auto_stop.timeout_minutes=30`,
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

			return withApp(cmd.Context(), version, func(ctx context.Context, a *app) error {
				st, err := a.initializer.Initialize(ctx, state.Partial{
					Name:               args[0],
					Provider:           providerTag,
					Configurator:       configurator,
					ProvisionInput:     provisionInput,
					ConfigurationInput: configInput,
				})
				if err != nil {
					return err
				}
				fmt.Printf("instance %s provisioned (host: %v)\n", st.Name, st.Provision.Output["host"])
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&providerTag, "provider", "p", "", "provider tag (e.g. scaleway)")
	cmd.Flags().StringVar(&configurator, "configurator", "", "configurator tag (defaults per provider)")
	cmd.Flags().StringArrayVar(&setFlags, "set", nil, "provisioning input as key=value, repeatable")
	cmd.Flags().StringArrayVar(&configFlags, "config-set", nil, "configuration input as key=value, repeatable")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}
