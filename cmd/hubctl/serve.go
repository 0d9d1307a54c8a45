package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"modelhub/internal/cache"
	"modelhub/internal/catalog"
	"modelhub/internal/hub"
	"modelhub/internal/model"
	"modelhub/internal/serve"
	"modelhub/pkg/types"
)

func newServeCmd(opts *ctlOptions) *cobra.Command {
	var (
		port        int
		track       bool
		useCase     string
		enableLocal bool
		localOnly   bool
		cloudOnly   bool
		cacheOnly   bool
		memFrac     float64
	)
	cmd := &cobra.Command{
		Use:   "serve <model>",
		Short: "Start a model server and print the serve result",
		Example: "  hubctl serve eos4e40\n" +
			"  hubctl serve eos4e40 --track --tracking-use-case hosted\n" +
			"  hubctl serve eos4e40 --local-cache-only --max-cache-memory-frac 0.5",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiReq := types.ServeRequest{
				Model:           args[0],
				Port:            port,
				Track:           track,
				TrackingUseCase: useCase,
				LocalCacheOnly:  localOnly,
				CloudCacheOnly:  cloudOnly,
				CacheOnly:       cacheOnly,
			}
			if cmd.Flags().Changed("enable-local-cache") {
				apiReq.EnableLocalCache = &enableLocal
			}
			if cmd.Flags().Changed("max-cache-memory-frac") {
				apiReq.MaxCacheMemoryFrac = &memFrac
			}
			req, err := serve.FromAPI(apiReq)
			if err != nil {
				return err
			}

			log, err := opts.logger()
			if err != nil {
				return err
			}
			cat, err := catalog.Open(opts.ModelsDir)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			store, registry, err := opts.openSessionState(log)
			if err != nil {
				return err
			}
			defer registry.Close()

			// Refuse to race a server that is still up from an earlier
			// serve; a dead leftover is simply overwritten.
			key := req.ModelID
			if b, ok := cat.Lookup(req.ModelID); ok {
				key = b.ID
			}
			if rec, ok := registry.Lookup(key); ok {
				if meta, err := store.ReadMeta(rec.Dir); err == nil && processAlive(meta.PID) {
					return hub.ErrBusy(key)
				}
			}

			var configurator serve.CacheConfigurator = cache.Noop{}
			if !opts.NoCache {
				redisCache := cache.NewRedis(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, log)
				defer redisCache.Close()
				configurator = redisCache
			}
			launcher := model.NewLauncher(model.LauncherConfig{
				Catalog: cat,
				Store:   store,
				Logger:  &log,
			})
			orch, err := serve.New(serve.Config{
				Launcher:  launcher,
				Cache:     configurator,
				Registrar: registry,
				Logger:    &log,
			})
			if err != nil {
				return err
			}

			res, err := orch.Serve(cmd.Context(), req)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Preferred port for the model server (0 picks a free one)")
	cmd.Flags().BoolVar(&track, "track", false, "Track runs of the served model")
	cmd.Flags().StringVar(&useCase, "tracking-use-case", "", "Tracking use case: local, hosted, self-service or test")
	cmd.Flags().BoolVar(&enableLocal, "enable-local-cache", true, "Enable the Redis-backed local result cache")
	cmd.Flags().BoolVar(&localOnly, "local-cache-only", false, "Fetch stored results from the local cache only")
	cmd.Flags().BoolVar(&cloudOnly, "cloud-cache-only", false, "Fetch stored results from the cloud cache only")
	cmd.Flags().BoolVar(&cacheOnly, "cache-only", false, "Fetch stored results from both caches")
	cmd.Flags().Float64Var(&memFrac, "max-cache-memory-frac", 0, "Cache memory budget as a fraction of system memory (0.2-0.7)")
	return cmd
}
