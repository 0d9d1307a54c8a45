// Package serve turns one "serve this model" request into a running
// model server and a stable result shape. It validates the request,
// reconciles the cache toggles into one source, configures the cache
// backend, drives the model lifecycle to readiness and registers the
// session, strictly in that order. The model engine, cache storage and
// session directories belong to collaborators behind narrow interfaces.
package serve

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"modelhub/pkg/types"
)

// Config wires an Orchestrator's collaborators.
type Config struct {
	Launcher  Launcher
	Cache     CacheConfigurator
	Registrar Registrar
	Logger    *zerolog.Logger
}

// Orchestrator executes serve requests sequentially per call. It holds
// no per-request state; one instance serves the whole process.
type Orchestrator struct {
	launcher  Launcher
	cache     CacheConfigurator
	registrar Registrar
	log       zerolog.Logger
}

// New validates the wiring and returns an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Launcher == nil {
		return nil, errors.New("serve: launcher is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("serve: cache configurator is required")
	}
	if cfg.Registrar == nil {
		return nil, errors.New("serve: registrar is required")
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Orchestrator{
		launcher:  cfg.Launcher,
		cache:     cfg.Cache,
		registrar: cfg.Registrar,
		log:       log,
	}, nil
}

// Serve runs the full sequence for one request. Any failure aborts the
// remaining steps and no partial result is returned. The only blocking
// step is the model start; this core adds no timeout of its own beyond
// the caller's ctx.
func (o *Orchestrator) Serve(ctx context.Context, req Request) (types.ServeResult, error) {
	if err := validate(req); err != nil {
		return types.ServeResult{}, err
	}

	res := ResolveCacheMode(req)
	o.log.Debug().
		Str("model", req.ModelID).
		Str("cache_source", res.Source.String()).
		Bool("local_cache", res.LocalEnabled).
		Msg("cache mode resolved")

	st := o.cache.Configure(ctx, res.LocalEnabled, req.MaxMemoryFrac)
	if !st.Amenable && res.LocalEnabled {
		o.log.Warn().Str("model", req.ModelID).Str("detail", st.Detail).
			Msg("local cache enabled but backend not amenable")
	}

	h := o.launcher.Handle(HandleSpec{
		ModelID:       req.ModelID,
		Source:        res.Source,
		PreferredPort: req.Port,
		LocalCache:    res.LocalEnabled,
		MaxMemoryFrac: req.MaxMemoryFrac,
	})
	if !h.IsValid(ctx) {
		return types.ServeResult{}, ErrModelNotFound(req.ModelID)
	}

	trackUseCase := ""
	if req.Track {
		trackUseCase = req.TrackingUseCase
	}

	sess, err := h.Serve(ctx, trackUseCase)
	if err != nil {
		o.log.Error().Err(err).Str("model", req.ModelID).Msg("model start failed")
		return types.ServeResult{}, err
	}
	if sess.URL == "" {
		return types.ServeResult{}, ErrServeFailed("no URL found; service unsuccessful")
	}

	o.registrar.Register(sess.ModelID, sess.Dir)

	o.log.Info().
		Str("model", sess.ModelID).
		Str("url", sess.URL).
		Str("session", sess.Dir).
		Str("cache_mode", res.StatusLabel()).
		Bool("tracking", req.Track).
		Msg("model served")

	return types.ServeResult{
		ModelID:           sess.ModelID,
		URL:               sess.URL,
		SRV:               sess.SRV,
		Session:           sess.Dir,
		CacheFetchingMode: res.StatusLabel(),
		LocalCache:        enabledLabel(st.Amenable),
		Tracking:          enabledLabel(req.Track),
		DefaultAPI:        "run",
		AdditionalAPIs:    additionalAPIs(sess.APIs),
	}, nil
}

// validate guards the request before any side effect. Model existence
// is checked later, against the constructed handle.
func validate(req Request) error {
	if req.ModelID == "" {
		return ErrConfiguration("model identifier is required")
	}
	if f := req.MaxMemoryFrac; f != nil && (*f < 0.2 || *f > 0.7) {
		return ErrConfiguration(fmt.Sprintf(
			"max cache memory fraction %v is outside the recommended range (0.2-0.7)", *f))
	}
	return nil
}

// additionalAPIs separates the default "run" operation from the rest.
// A model exposing exactly ["run"] reports nil (serialized as null);
// anything else reports the non-run names in order, even when that
// leaves an empty list. Absent and empty are distinct to callers.
func additionalAPIs(apis []string) []string {
	if len(apis) == 1 && apis[0] == "run" {
		return nil
	}
	out := []string{}
	for _, a := range apis {
		if a != "run" {
			out = append(out, a)
		}
	}
	return out
}

func enabledLabel(on bool) string {
	if on {
		return "Enabled"
	}
	return "Disabled"
}
