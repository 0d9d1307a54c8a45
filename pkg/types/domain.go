package types

// ServeResult is the caller-facing outcome of a successful serve call.
// The JSON field names are part of the public contract and must not change.
type ServeResult struct {
	// Stable identifier of the served model.
	// example: eos4e40
	ModelID string `json:"Model ID" example:"eos4e40"`
	// Base URL the model server is reachable at.
	// example: http://127.0.0.1:49152
	URL string `json:"URL" example:"http://127.0.0.1:49152"`
	// Server descriptor: scheme, bind address and process id.
	// example: http:127.0.0.1:49152/pid=4242
	SRV string `json:"SRV" example:"http:127.0.0.1:49152/pid=4242"`
	// Absolute path of the session directory backing this serve.
	// example: /home/user/.modelhub/sessions/eos4e40_1a2b3c4d
	Session string `json:"Session" example:"/home/user/.modelhub/sessions/eos4e40_1a2b3c4d"`
	// Resolved cache fetching mode: Disabled, Local only, Cloud only or
	// Hybrid (local & cloud).
	// example: Local only
	CacheFetchingMode string `json:"Cache Fetching Mode" example:"Local only"`
	// Whether the local cache backend is actually usable ("Enabled"/"Disabled").
	// May disagree with the fetching mode when the backend is unreachable.
	// example: Enabled
	LocalCache string `json:"Local Cache" example:"Enabled"`
	// Whether run tracking was requested ("Enabled"/"Disabled").
	// example: Disabled
	Tracking string `json:"Tracking" example:"Disabled"`
	// The default operation every model exposes.
	// example: run
	DefaultAPI string `json:"Default API" example:"run"`
	// Operations beyond the default, in the order the model reports them.
	// null when the model exposes only "run"; an empty list is a distinct,
	// valid value. No omitempty: absent and empty must stay observable.
	AdditionalAPIs []string `json:"Additional APIs"`
}

// Tracking use cases accepted for run telemetry.
const (
	TrackLocal       = "local"
	TrackHosted      = "hosted"
	TrackSelfService = "self-service"
	TrackTest        = "test"
)

// TrackingUseCases lists the accepted values for ServeRequest.TrackingUseCase.
var TrackingUseCases = []string{TrackLocal, TrackHosted, TrackSelfService, TrackTest}

// SessionRecord maps a model identifier to the session directory registered
// for it. It is a lookup record only; it carries no ownership of the server.
type SessionRecord struct {
	// Model the session belongs to.
	// example: eos4e40
	ModelID string `json:"model_id" example:"eos4e40"`
	// Absolute session directory path.
	// example: /home/user/.modelhub/sessions/eos4e40_1a2b3c4d
	Dir string `json:"dir" example:"/home/user/.modelhub/sessions/eos4e40_1a2b3c4d"`
	// Registration time in unix seconds. Re-registering overwrites it.
	// example: 1700000000
	RegisteredAt int64 `json:"registered_at_unix" example:"1700000000"`
}
