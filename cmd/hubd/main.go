package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"modelhub/internal/cache"
	"modelhub/internal/catalog"
	"modelhub/internal/config"
	"modelhub/internal/httpapi"
	"modelhub/internal/hub"
	"modelhub/internal/model"
	"modelhub/internal/serve"
	"modelhub/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hubd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags with environment variable defaults
	configPath := flag.String("config", envOr("HUBD_CONFIG", ""), "Config file (.yaml/.yml/.json/.toml)")
	addr := flag.String("addr", envOr("HUBD_ADDR", ""), "HTTP listen address, e.g. :8900")
	modelsDir := flag.String("models-dir", envOr("HUBD_MODELS_DIR", ""), "Directory scanned for model bundles")
	sessionsDir := flag.String("sessions-dir", envOr("HUBD_SESSIONS_DIR", ""), "Directory for per-serve session state")
	redisAddr := flag.String("redis-addr", envOr("HUBD_REDIS_ADDR", ""), "Redis address of the local result cache")
	logLevel := flag.String("log-level", envOr("HUBD_LOG_LEVEL", ""), "Log level: debug, info, warn, error")
	consoleLog := flag.Bool("log-console", false, "Human-readable log output instead of JSON")
	noCache := flag.Bool("no-cache", false, "Run without a cache backend")
	flag.Parse()

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	// Flags and env beat file values.
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *modelsDir != "" {
		cfg.ModelsDir = *modelsDir
	}
	if *sessionsDir != "" {
		cfg.SessionsDir = *sessionsDir
	}
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	config.ApplyDefaults(&cfg)

	logger, err := newLogger(cfg.LogLevel, *consoleLog)
	if err != nil {
		return err
	}

	cat, err := catalog.Open(cfg.ModelsDir)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	store, err := session.NewStore(cfg.SessionsDir)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	registryPath := cfg.RegistryPath
	if registryPath == "" {
		registryPath = filepath.Join(store.BaseDir(), "registry.db")
	}
	registry, err := session.OpenRegistry(registryPath, logger)
	if err != nil {
		return fmt.Errorf("open session registry: %w", err)
	}
	defer registry.Close()

	var configurator serve.CacheConfigurator = cache.Noop{}
	if !*noCache {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		defer redisCache.Close()
		configurator = redisCache
	}

	launcher := model.NewLauncher(model.LauncherConfig{
		Catalog:        cat,
		Store:          store,
		Host:           cfg.ServerHost,
		PortRangeStart: cfg.PortRangeStart,
		PortRangeEnd:   cfg.PortRangeEnd,
		ReadyTimeout:   time.Duration(cfg.ReadyTimeoutSec) * time.Second,
		DrainTimeout:   time.Duration(cfg.DrainTimeoutSec) * time.Second,
		Logger:         &logger,
	})

	orch, err := serve.New(serve.Config{
		Launcher:  launcher,
		Cache:     configurator,
		Registrar: registry,
		Logger:    &logger,
	})
	if err != nil {
		return err
	}

	h, err := hub.New(hub.Config{
		Server:   orch,
		Launcher: launcher,
		Resolver: cat,
		Registry: registry,
		Logger:   &logger,
	})
	if err != nil {
		return err
	}

	httpapi.SetLogger(logger)
	httpapi.SetAPIKeyHash(cfg.APIKeyHash)
	if len(cfg.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins, nil, nil)
	}
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Addr).
			Str("models_dir", cfg.ModelsDir).
			Int("bundles", cat.Len()).
			Msg("hubd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		return err
	}

	// Cancel in-flight spawns, stop accepting requests, then drain the
	// model servers the daemon owns.
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	h.Shutdown()
	return nil
}

func newLogger(level string, console bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", level, err)
	}
	logger := zerolog.New(os.Stderr)
	if console {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(lvl).With().Timestamp().Logger(), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
