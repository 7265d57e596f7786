package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List instances and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), version, func(ctx context.Context, a *app) error {
				names, err := a.store.List(ctx)
				if err != nil {
					return err
				}

				type row struct {
					Name     string `json:"name"`
					Provider string `json:"provider"`
					Status   string `json:"status"`
					Host     string `json:"host,omitempty"`
				}
				rows := make([]row, 0, len(names))
				for _, name := range names {
					st, _, err := a.store.Load(ctx, name)
					if err != nil {
						return err
					}
					status, err := a.manager.Status(ctx, name)
					if err != nil {
						return err
					}
					host, _ := st.Provision.Output["host"].(string)
					rows = append(rows, row{
						Name:     st.Name,
						Provider: st.Provision.Provider,
						Status:   string(status),
						Host:     host,
					})
				}

				if jsonOutput {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(rows)
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tPROVIDER\tSTATUS\tHOST")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Provider, r.Status, r.Host)
				}
				return w.Flush()
			})
		},
	}
}
