// Package hub is the daemon-side service around the serve core. It
// owns the set of live model servers, refuses duplicate serves for a
// model that is already up, closes servers on request and reports
// status. The serve core itself never deduplicates; that guarantee
// lives here.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelhub/internal/catalog"
	"modelhub/internal/model"
	"modelhub/internal/serve"
	"modelhub/pkg/types"
)

// Server executes one serve request end to end.
type Server interface {
	Serve(ctx context.Context, req serve.Request) (types.ServeResult, error)
}

// Launcher is the slice of the process launcher the hub needs to
// supervise and stop model servers.
type Launcher interface {
	Running(modelID string) (model.Info, bool)
	RunningAll() []model.Info
	Stop(modelID string) error
	StopAll()
}

// Resolver maps a model reference (ID or slug) to its bundle.
type Resolver interface {
	Lookup(ref string) (catalog.Bundle, bool)
}

// Registry is the session bookkeeping the hub reads and clears.
type Registry interface {
	Lookup(modelID string) (types.SessionRecord, bool)
	Clear(modelID string)
	List() []types.SessionRecord
	Len() int
}

// Config wires a Hub.
type Config struct {
	Server   Server
	Launcher Launcher
	Resolver Resolver
	Registry Registry
	Logger   *zerolog.Logger
}

type liveState int

const (
	stateStarting liveState = iota
	stateReady
)

// Hub tracks which models this daemon is serving.
type Hub struct {
	server   Server
	launcher Launcher
	resolver Resolver
	registry Registry
	log      zerolog.Logger

	mu        sync.Mutex
	serving   map[string]liveState
	lastErr   string
	startedAt time.Time
}

// New validates the wiring and returns a hub.
func New(cfg Config) (*Hub, error) {
	if cfg.Server == nil {
		return nil, errors.New("hub: server is required")
	}
	if cfg.Launcher == nil {
		return nil, errors.New("hub: launcher is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("hub: resolver is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("hub: registry is required")
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Hub{
		server:    cfg.Server,
		launcher:  cfg.Launcher,
		resolver:  cfg.Resolver,
		registry:  cfg.Registry,
		log:       log,
		serving:   make(map[string]liveState),
		startedAt: time.Now(),
	}, nil
}

// key resolves a caller reference to the canonical model ID when the
// catalog knows it; unknown references keep their raw form and fail
// later in the core with model-not-found.
func (h *Hub) key(ref string) string {
	if b, ok := h.resolver.Lookup(ref); ok {
		return b.ID
	}
	return ref
}

// Serve runs one serve request, refusing models that already have a
// live or starting server. A server that died on its own frees its
// slot on the next serve attempt.
func (h *Hub) Serve(ctx context.Context, req serve.Request) (types.ServeResult, error) {
	key := h.key(req.ModelID)

	h.mu.Lock()
	st, exists := h.serving[key]
	if exists && st == stateReady {
		if _, running := h.launcher.Running(key); !running {
			delete(h.serving, key)
			exists = false
		}
	}
	if exists {
		h.mu.Unlock()
		return types.ServeResult{}, ErrBusy(key)
	}
	h.serving[key] = stateStarting
	h.mu.Unlock()

	res, err := h.server.Serve(ctx, req)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		delete(h.serving, key)
		h.lastErr = err.Error()
		return types.ServeResult{}, err
	}
	if res.ModelID != key {
		delete(h.serving, key)
	}
	h.serving[res.ModelID] = stateReady
	return res, nil
}

// Close stops the server for ref and clears its registry entry. When
// nothing is live but a stale registry entry exists, the entry alone
// is cleared.
func (h *Hub) Close(ref string) error {
	key := h.key(ref)

	h.mu.Lock()
	_, tracked := h.serving[key]
	delete(h.serving, key)
	h.mu.Unlock()

	_, running := h.launcher.Running(key)
	if !tracked && !running {
		if _, ok := h.registry.Lookup(key); ok {
			h.registry.Clear(key)
			h.log.Info().Str("model", key).Msg("cleared stale session entry")
			return nil
		}
		return ErrNotServing(key)
	}

	if err := h.launcher.Stop(key); err != nil {
		return err
	}
	h.registry.Clear(key)
	h.log.Info().Str("model", key).Msg("model closed")
	return nil
}

// Sessions lists the registered sessions.
func (h *Hub) Sessions() []types.SessionRecord {
	return h.registry.List()
}

// Status reports the live servers and bookkeeping counters.
func (h *Hub) Status() types.StatusResponse {
	infos := h.launcher.RunningAll()
	serving := make([]types.ServingStatus, 0, len(infos))
	for _, in := range infos {
		serving = append(serving, types.ServingStatus{
			ModelID:    in.ModelID,
			URL:        in.URL,
			SRV:        in.SRV,
			SessionDir: in.Dir,
			StartedAt:  in.StartedAt.Unix(),
			PID:        in.PID,
		})
	}

	h.mu.Lock()
	lastErr := h.lastErr
	h.mu.Unlock()

	return types.StatusResponse{
		State:          "ready",
		Serving:        serving,
		SessionCount:   h.registry.Len(),
		LastError:      lastErr,
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
}

// Ready reports whether the hub can accept serve requests.
func (h *Hub) Ready() bool { return true }

// Shutdown stops every live server. Registry entries persist so a
// later daemon can list past sessions.
func (h *Hub) Shutdown() {
	h.launcher.StopAll()
	h.mu.Lock()
	h.serving = make(map[string]liveState)
	h.mu.Unlock()
}
