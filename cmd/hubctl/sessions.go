package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List registered sessions and whether their server still runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			store, registry, err := opts.openSessionState(log)
			if err != nil {
				return err
			}
			defer registry.Close()

			recs := registry.List()
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions registered.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tSTATUS\tURL\tREGISTERED\tDIR")
			for _, rec := range recs {
				status, url := "stale", "-"
				if meta, err := store.ReadMeta(rec.Dir); err == nil {
					if meta.URL != "" {
						url = meta.URL
					}
					if processAlive(meta.PID) {
						status = "live"
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					rec.ModelID,
					status,
					url,
					time.Unix(rec.RegisteredAt, 0).Format("2006-01-02 15:04"),
					rec.Dir,
				)
			}
			return w.Flush()
		},
	}
}
