package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/ThreatBoard/internal/config"
	"github.com/JonMunkholm/ThreatBoard/internal/logging"
)

// APIKeyHeader carries the operator API key.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth protects the JSON API with the X-API-Key header.
//
// If RequireAPIKey is false, all requests pass through. If it is true but no
// keys are configured, every request is rejected. CORS preflight requests are
// never checked.
func APIKeyAuth(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if !cfg.RequireAPIKey {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			logger := logging.WithFields(r.Context(),
				"path", r.URL.Path,
				"method", r.Method,
				"remote_addr", r.RemoteAddr,
			)

			apiKey := r.Header.Get(APIKeyHeader)
			if apiKey == "" {
				logger.Warn("auth: missing API key")
				writeAuthError(w, http.StatusUnauthorized, "Missing API key", "AUTH001")
				return
			}

			if !isValidAPIKey([]byte(apiKey), keys) {
				logger.Warn("auth: invalid API key")
				writeAuthError(w, http.StatusForbidden, "Invalid API key", "AUTH002")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isValidAPIKey compares key against every configured key in constant time,
// so timing does not reveal which key (if any) matched.
func isValidAPIKey(key []byte, validKeys [][]byte) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare(key, validKey)
	}
	return valid == 1
}

func writeAuthError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   message,
		"message": message,
		"action":  "Provide a valid key in the " + APIKeyHeader + " header",
		"code":    code,
	})
}
