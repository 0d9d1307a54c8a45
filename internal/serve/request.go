package serve

import (
	"fmt"
	"strings"

	"modelhub/pkg/types"
)

// Request is a fully defaulted serve request. Build one with NewRequest
// or FromAPI so the defaults (tracking use case "local", local cache
// enabled) are always applied.
type Request struct {
	ModelID          string
	Port             int
	Track            bool
	TrackingUseCase  string
	EnableLocalCache bool
	LocalCacheOnly   bool
	CloudCacheOnly   bool
	CacheOnly        bool
	MaxMemoryFrac    *float64
}

// NewRequest returns a request for modelID with all defaults applied.
func NewRequest(modelID string) Request {
	return Request{
		ModelID:          modelID,
		TrackingUseCase:  types.TrackLocal,
		EnableLocalCache: true,
	}
}

// FromAPI converts the wire shape into a Request, applying defaults for
// absent fields and rejecting values no later stage could act on.
func FromAPI(ar types.ServeRequest) (Request, error) {
	r := NewRequest(strings.TrimSpace(ar.Model))
	if r.ModelID == "" {
		return Request{}, ErrConfiguration("model identifier is required")
	}
	r.Port = ar.Port
	r.Track = ar.Track
	if ar.TrackingUseCase != "" {
		if !validUseCase(ar.TrackingUseCase) {
			return Request{}, ErrConfiguration(fmt.Sprintf(
				"unknown tracking use case %q (want one of %s)",
				ar.TrackingUseCase, strings.Join(types.TrackingUseCases, ", ")))
		}
		r.TrackingUseCase = ar.TrackingUseCase
	}
	if ar.EnableLocalCache != nil {
		r.EnableLocalCache = *ar.EnableLocalCache
	}
	r.LocalCacheOnly = ar.LocalCacheOnly
	r.CloudCacheOnly = ar.CloudCacheOnly
	r.CacheOnly = ar.CacheOnly
	r.MaxMemoryFrac = ar.MaxCacheMemoryFrac
	return r, nil
}

func validUseCase(uc string) bool {
	for _, v := range types.TrackingUseCases {
		if uc == v {
			return true
		}
	}
	return false
}
