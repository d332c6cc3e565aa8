package transport

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// wrapAuth applies Bearer token auth when tokens is non-empty.
// On failure: 401 with WWW-Authenticate header.
func wrapAuth(next http.Handler, tokens []string) http.Handler {
	norm := normalizeTokens(tokens)
	if len(norm) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" || !tokenMatches([]byte(token), norm) {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func normalizeTokens(tokens []string) [][]byte {
	norm := make([][]byte, 0, len(tokens))
	seen := map[string]struct{}{}
	for _, t := range tokens {
		tt := strings.TrimSpace(t)
		if tt == "" {
			continue
		}
		if _, ok := seen[tt]; ok {
			continue
		}
		seen[tt] = struct{}{}
		norm = append(norm, []byte(tt))
	}
	return norm
}

// bearerToken extracts the token from "Bearer <token>" (scheme is case-insensitive).
func bearerToken(authz string) string {
	parts := strings.SplitN(strings.TrimSpace(authz), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func tokenMatches(got []byte, allowed [][]byte) bool {
	ok := false
	for _, a := range allowed {
		if subtle.ConstantTimeCompare(got, a) == 1 {
			ok = true
		}
	}
	return ok
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="settings-bridge", error="invalid_token"`)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}
