package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newDestroyCommand(version string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "destroy <name>",
		Short: "Destroy an instance's resources and delete its record",
		Long: `Release the instance's cloud resources and remove its record.

The record is deleted only after the provider confirms the resources
are gone. If the destroy fails, the record survives and the command
can be retried.`,
		Example: `  vapordeck destroy demo-1 --yes`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !yes {
				fmt.Printf("destroy instance %s and all its resources? [y/N]: ", name)
				reader := bufio.NewReader(os.Stdin)
				answer, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				answer = strings.ToLower(strings.TrimSpace(answer))
				if answer != "y" && answer != "yes" {
					fmt.Println("aborted")
					return nil
				}
			}

			return withApp(cmd.Context(), version, func(ctx context.Context, a *app) error {
				if err := a.manager.Destroy(ctx, name); err != nil {
					return err
				}
				fmt.Printf("instance %s destroyed\n", name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}
