package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"modelhub/internal/catalog"
	"modelhub/internal/hub"
)

func newCloseCmd(opts *ctlOptions) *cobra.Command {
	var drain time.Duration
	cmd := &cobra.Command{
		Use:   "close <model>",
		Short: "Stop a served model and clear its session registration",
		Args:  cobra.ExactArgs(1),
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

			// Resolve a slug to its canonical ID when the catalog knows it;
			// a missing catalog must not block closing an old session.
			key := args[0]
			if cat, err := catalog.Open(opts.ModelsDir); err == nil {
				if b, ok := cat.Lookup(key); ok {
					key = b.ID
				}
			}

			rec, ok := registry.Lookup(key)
			if !ok {
				return hub.ErrNotServing(key)
			}

			meta, err := store.ReadMeta(rec.Dir)
			if err == nil && processAlive(meta.PID) {
				if err := terminate(meta.PID, drain); err != nil {
					return fmt.Errorf("stop model server pid %d: %w", meta.PID, err)
				}
			}
			registry.Clear(key)
			fmt.Fprintf(cmd.OutOrStdout(), "closed %s\n", key)
			return nil
		},
	}
	cmd.Flags().DurationVar(&drain, "drain", 5*time.Second, "How long to wait after SIGTERM before SIGKILL")
	return cmd
}

// terminate sends SIGTERM, waits up to drain for the process to go away
// and falls back to SIGKILL.
func terminate(pid int, drain time.Duration) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	deadline := time.Now().Add(drain)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return p.Kill()
}
