package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand(version string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Show the journaled lifecycle events of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), version, func(ctx context.Context, a *app) error {
				events, err := a.journal.History(ctx, args[0], limit)
				if err != nil {
					return err
				}

				if jsonOutput {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(events)
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tVERB\tOUTCOME\tERROR")
				for _, ev := range events {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
						ev.Time.Format(time.RFC3339), ev.Verb, ev.Outcome, ev.Error)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of events")

	return cmd
}
