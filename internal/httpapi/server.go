// Package httpapi exposes the hub over HTTP: serve requests in, session
// bookkeeping and status out. Handlers stay thin; orchestration semantics
// live in internal/serve and internal/hub.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelhub/internal/serve"
	"modelhub/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *hub.Hub satisfies it.
type Service interface {
	Serve(ctx context.Context, req serve.Request) (types.ServeResult, error)
	Close(ref string) error
	Sessions() []types.SessionRecord
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the router with the full middleware stack and all routes.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if h := corsHandler(); h != nil {
		r.Use(h)
	}
	r.Use(MetricsMiddleware)
	r.Use(authMiddleware)

	r.Post("/serve", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		// Limit body size (configurable, default 1MiB)
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var apiReq types.ServeRequest
		if err := json.NewDecoder(r.Body).Decode(&apiReq); err != nil {
			// Oversized bodies surface as a decode error; 400 either way.
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		req, err := serve.FromAPI(apiReq)
		if err != nil {
			status := statusForError(err)
			observeServe(outcomeForError(err))
			writeJSONError(w, status, err.Error())
			return
		}

		start := time.Now()
		logServe(r, "serve start", req.ModelID, 0, 0, nil)

		// Join server base context with request context so shutdown
		// cancels in-flight spawns too.
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		res, err := svc.Serve(joinedCtx, req)
		if err != nil {
			// Client gone or daemon shutting down: nothing useful to write.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				observeServe("canceled")
				return
			}
			status := statusForError(err)
			observeServe(outcomeForError(err))
			writeJSONError(w, status, err.Error())
			logServe(r, "serve end", req.ModelID, status, time.Since(start), err)
			return
		}

		observeServe("ok")
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
		logServe(r, "serve end", res.ModelID, http.StatusOK, time.Since(start), nil)
	})

	r.Get("/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.SessionsResponse{Sessions: svc.Sessions()}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Delete("/sessions/{model}", func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "model")
		if err := svc.Close(ref); err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}
