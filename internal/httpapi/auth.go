package httpapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// apiKeyHash is the hex-encoded SHA-256 of the accepted bearer key.
// Empty disables auth entirely.
var apiKeyHash string

// SetAPIKeyHash installs the expected key hash. Pass "" to disable auth.
func SetAPIKeyHash(hash string) {
	apiKeyHash = strings.ToLower(strings.TrimSpace(hash))
}

// openPaths are reachable without a key so probes and scrapers keep working.
var openPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// authMiddleware rejects requests lacking the configured bearer key.
// A no-op while no key hash is installed.
func authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKeyHash == "" || openPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		key := bearerToken(r)
		if key == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}
		sum := sha256.Sum256([]byte(key))
		presented := hex.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKeyHash)) != 1 {
			writeJSONError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
