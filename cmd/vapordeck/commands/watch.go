package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vapordeck/vapordeck/pkg/store"
)

func newWatchCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Report state records changed by other processes",
		Long: `Watch the local state root and print a line for every record that is
written, created, or removed outside this process. Useful while
debugging concurrent tooling or hand-edits: a reported change means
any loaded copy of that record is stale and must be re-read before
its next save.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), version, func(ctx context.Context, a *app) error {
				fs, ok := a.store.(*store.FileStore)
				if !ok {
					return fmt.Errorf("watch requires the local state backend, not %q", a.cfg.Backend)
				}
				w, err := store.NewWatcher(fs, a.tel.Logger.Zerolog())
				if err != nil {
					return err
				}
				defer w.Close()

				enc := json.NewEncoder(os.Stdout)
				for {
					select {
					case <-ctx.Done():
						return nil
					case ch, ok := <-w.Changes():
						if !ok {
							return nil
						}
						if jsonOutput {
							if err := enc.Encode(map[string]string{
								"time": time.Now().UTC().Format(time.RFC3339),
								"name": ch.Name,
								"op":   string(ch.Op),
							}); err != nil {
								return err
							}
						} else {
							fmt.Printf("%s\t%s\t%s\n", time.Now().Format(time.RFC3339), ch.Name, ch.Op)
						}
					}
				}
			})
		},
	}
}
