package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newShowCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print an instance's record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), version, func(ctx context.Context, a *app) error {
				st, _, err := a.store.Load(ctx, args[0])
				if err != nil {
					return err
				}

				if jsonOutput {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				}

				raw, err := a.parser.Serialize(st)
				if err != nil {
					return err
				}
				fmt.Print(string(raw))
				return nil
			})
		},
	}
}
