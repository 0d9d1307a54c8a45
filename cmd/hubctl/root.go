package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelhub/internal/session"
)

// ctlOptions carries the persistent flags every subcommand shares. The
// defaults mirror hubd so both tools see the same state on one machine.
type ctlOptions struct {
	ModelsDir     string
	SessionsDir   string
	RegistryPath  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LogLevel      string
	NoCache       bool
}

func buildRootCmd() *cobra.Command {
	opts := &ctlOptions{}
	root := &cobra.Command{
		Use:           "hubctl",
		Short:         "Serve, list and close model servers from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.ModelsDir, "models-dir", envOr("HUBD_MODELS_DIR", "~/.modelhub/models"), "Directory scanned for model bundles")
	pf.StringVar(&opts.SessionsDir, "sessions-dir", envOr("HUBD_SESSIONS_DIR", "~/.modelhub/sessions"), "Directory for per-serve session state")
	pf.StringVar(&opts.RegistryPath, "registry", envOr("HUBD_REGISTRY_PATH", ""), "Sqlite file backing the session registry (default <sessions-dir>/registry.db)")
	pf.StringVar(&opts.RedisAddr, "redis-addr", envOr("HUBD_REDIS_ADDR", "127.0.0.1:6379"), "Redis address of the local result cache")
	pf.StringVar(&opts.RedisPassword, "redis-password", "", "Redis password")
	pf.IntVar(&opts.RedisDB, "redis-db", 0, "Redis database index")
	pf.StringVar(&opts.LogLevel, "log-level", envOr("HUBCTL_LOG_LEVEL", "warn"), "Log level: debug, info, warn, error")
	pf.BoolVar(&opts.NoCache, "no-cache", false, "Run without a cache backend")

	root.AddCommand(
		newServeCmd(opts),
		newSessionsCmd(opts),
		newCloseCmd(opts),
		newCatalogCmd(opts),
	)

	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(
		&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }},
		&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }},
		&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }},
	)
	root.AddCommand(completionCmd)

	return root
}

func (o *ctlOptions) logger() (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(o.LogLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", o.LogLevel, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger(), nil
}

// openSessionState opens the session store and its registry the same way
// hubd does, so the CLI and the daemon share bookkeeping.
func (o *ctlOptions) openSessionState(log zerolog.Logger) (*session.Store, *session.Registry, error) {
	store, err := session.NewStore(o.SessionsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}
	path := o.RegistryPath
	if path == "" {
		path = filepath.Join(store.BaseDir(), "registry.db")
	}
	registry, err := session.OpenRegistry(path, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open session registry: %w", err)
	}
	return store, registry, nil
}

// processAlive reports whether pid names a process we could signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
