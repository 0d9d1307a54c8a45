package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// logServe records a serve call boundary. A zero status marks the start of
// the call; dur and err only apply to the end.
func logServe(r *http.Request, msg, model string, status int, dur time.Duration, err error) {
	if zlog != nil {
		z := zlog.Info().Str("model", model)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		if status != 0 {
			z = z.Int("status", status).Dur("dur", dur)
		}
		if err != nil {
			z = z.Err(err)
		}
		z.Msg(msg)
		return
	}
	if status != 0 {
		log.Printf("%s model=%s status=%d dur=%s err=%v", msg, model, status, dur, err)
		return
	}
	log.Printf("%s model=%s", msg, model)
}
