// Package auth protects the HTTP API with a static bearer API key.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailqueue/internal/metrics"
)

// BearerAuth returns middleware that requires "Authorization: Bearer <key>"
// matching one of keys. Empty keys are ignored; with no usable key every
// request passes, which is how local development runs.
func BearerAuth(log zerolog.Logger, keys ...string) func(http.Handler) http.Handler {
	var accepted [][]byte
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			accepted = append(accepted, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(accepted) == 0 {
			log.Warn().Msg("no API key configured, API authentication disabled")
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				reject(w, `{"error":"authorization header required"}`)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				reject(w, `{"error":"invalid authorization format, expected Bearer <token>"}`)
				return
			}

			apiKey := strings.TrimSpace(parts[1])
			if apiKey == "" {
				reject(w, `{"error":"empty API key"}`)
				return
			}

			if !matches(accepted, []byte(apiKey)) {
				log.Warn().Str("path", r.URL.Path).Msg("rejected request with invalid API key")
				reject(w, `{"error":"invalid API key"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matches(accepted [][]byte, key []byte) bool {
	ok := 0
	for _, k := range accepted {
		ok |= subtle.ConstantTimeCompare(k, key)
	}
	return ok == 1
}

func reject(w http.ResponseWriter, body string) {
	metrics.APIAuthFailuresTotal.Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(body + "\n"))
}
