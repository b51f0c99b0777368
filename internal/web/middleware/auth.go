package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/JonMunkholm/tablegate/internal/config"
	"github.com/JonMunkholm/tablegate/internal/logging"
)

// APIKeyHeader is the request header carrying the client's key.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth returns middleware that checks APIKeyHeader against the
// configured keys.
//
// Behavior by configuration:
//
//   - RequireAPIKey false: every request passes.
//   - RequireAPIKey true: a request without the header gets 401
//     "Missing API key", and one whose key matches none of APIKeys gets
//     403 "Invalid API key". An empty key list rejects everything.
//
// OPTIONS requests always pass. Browsers send CORS preflights without
// custom headers, and the CORS handler has to answer them.
//
// The keys are copied when the middleware is built, so later changes to
// cfg.APIKeys have no effect.
func APIKeyAuth(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	keys := newKeySet(cfg.APIKeys)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(APIKeyHeader)
			switch {
			case key == "":
				logging.FromContext(r.Context()).Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"ip", r.RemoteAddr,
				)
				http.Error(w, "Missing API key", http.StatusUnauthorized)
			case !keys.contains(key):
				logging.FromContext(r.Context()).Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"ip", r.RemoteAddr,
				)
				http.Error(w, "Invalid API key", http.StatusForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// keySet holds the accepted keys as byte slices.
type keySet [][]byte

func newKeySet(keys []string) keySet {
	set := make(keySet, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			set = append(set, []byte(k))
		}
	}
	return set
}

// contains compares key against every entry in constant time. All entries
// are checked even after a match, so the timing does not reveal which key
// matched.
func (s keySet) contains(key string) bool {
	candidate := []byte(key)
	match := 0
	for _, k := range s {
		match |= subtle.ConstantTimeCompare(candidate, k)
	}
	return match == 1
}
