// Package httpapi provides the HTTP routes of the relay and the gate.
package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/samber/lo"
)

// BearerAuth rejects requests whose Authorization header does not carry token.
func BearerAuth(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Missing or invalid Authorization header"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(header, "Bearer ")), []byte(token)) != 1 {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CORS echoes allowed origins and answers preflight requests.
// An empty list allows any origin.
func CORS(allowOrigins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "":
		case len(allowOrigins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case lo.Contains(allowOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
