package types

// ServeRequest is the payload accepted by POST /serve and mirrored by the
// hubctl serve flags. All fields except Model are optional.
type ServeRequest struct {
	// Model identifier or slug to serve.
	// example: eos4e40
	Model string `json:"model" example:"eos4e40"`
	// Preferred TCP port for the model server; 0 picks a free port.
	// example: 8001
	Port int `json:"port,omitempty" example:"8001"`
	// Whether runs of the served model should be tracked.
	// example: false
	Track bool `json:"track,omitempty" example:"false"`
	// Tracking use case label, one of: local, hosted, self-service, test.
	// Only sent to the server when Track is true.
	// example: local
	TrackingUseCase string `json:"tracking_use_case,omitempty" example:"local"`
	// Toggle for the Redis-backed local result cache. Omitted means enabled.
	// example: true
	EnableLocalCache *bool `json:"enable_local_cache,omitempty" example:"true"`
	// Fetch stored results from the local cache only.
	// example: false
	LocalCacheOnly bool `json:"local_cache_only,omitempty" example:"false"`
	// Fetch stored results from the cloud-precalculated cache only.
	// example: false
	CloudCacheOnly bool `json:"cloud_cache_only,omitempty" example:"false"`
	// Fetch stored results from both local and cloud caches.
	// example: false
	CacheOnly bool `json:"cache_only,omitempty" example:"false"`
	// Maximum fraction of system memory the cache backend may use.
	// Recommended range 0.2-0.7; omitted leaves the backend untouched.
	// example: 0.5
	MaxCacheMemoryFrac *float64 `json:"max_cache_memory_frac,omitempty" example:"0.5"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not valid or not found: eosXXXX
	Error string `json:"error" example:"model not valid or not found: eosXXXX"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// ServingStatus summarizes one live model server owned by the hub.
type ServingStatus struct {
	// Model this server runs.
	// example: eos4e40
	ModelID string `json:"model_id" example:"eos4e40"`
	// Base URL of the server.
	// example: http://127.0.0.1:49152
	URL string `json:"url" example:"http://127.0.0.1:49152"`
	// Server descriptor (scheme, bind address, pid).
	// example: http:127.0.0.1:49152/pid=4242
	SRV string `json:"srv" example:"http:127.0.0.1:49152/pid=4242"`
	// Session directory backing this serve.
	SessionDir string `json:"session_dir"`
	// Unix time the server reached readiness.
	// example: 1700000000
	StartedAt int64 `json:"started_at_unix" example:"1700000000"`
	// Process id of the spawned server, when subprocess-backed.
	// example: 4242
	PID int `json:"pid,omitempty" example:"4242"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall hub state (ready or error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Live model servers.
	Serving []ServingStatus `json:"serving"`
	// Number of registered sessions (live or not).
	// example: 3
	SessionCount int `json:"session_count" example:"3"`
	// Last serve error observed, if any.
	LastError string `json:"last_error,omitempty"`
	// Uptime of the hub in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// SessionsResponse wraps the session list returned by GET /sessions.
type SessionsResponse struct {
	Sessions []SessionRecord `json:"sessions"`
}
