package serve

import (
	"context"

	"modelhub/internal/cache"
)

// HandleSpec carries the resolved facts a launcher needs to construct
// a model handle. It is derived from the request and the cache
// resolution; nothing in it is raw caller input except the identifier
// and preferred port.
type HandleSpec struct {
	ModelID       string
	Source        CacheSource
	PreferredPort int
	LocalCache    bool
	MaxMemoryFrac *float64
}

// Session is what a successful start yields: where the server is
// reachable, where its artifacts live, and which operations it exposes.
// An empty URL is possible and is treated as a failure by the
// orchestrator, not here.
type Session struct {
	ModelID string
	URL     string
	SRV     string
	Dir     string
	APIs    []string
}

// Handle is a constructed-but-not-started model server.
type Handle interface {
	// IsValid reports whether the identifier resolves to a servable model.
	IsValid(ctx context.Context) bool
	// Serve starts the server and blocks until it is bound and ready or
	// fails. trackUseCase is empty when tracking is disabled.
	Serve(ctx context.Context, trackUseCase string) (Session, error)
}

// Launcher constructs model handles. Construction is cheap and side
// effect free; all allocation happens in Handle.Serve.
type Launcher interface {
	Handle(spec HandleSpec) Handle
}

// CacheConfigurator prepares the cache backend for the resolved
// enablement and memory budget and reports whether it is usable.
type CacheConfigurator interface {
	Configure(ctx context.Context, enabled bool, maxMemoryFrac *float64) cache.State
}

// Registrar records model -> session directory in process-wide state.
// Register must be an atomic upsert; the most recent call wins.
type Registrar interface {
	Register(modelID, dir string)
}
