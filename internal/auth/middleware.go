package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

const LoginPath = "/login"

var publicPaths = map[string]bool{
	"/login":    true,
	"/api/auth": true,
	"/healthz":  true,
	"/readyz":   true,
	"/metrics":  true,
}

// IsPublic reports whether path is reachable without a session.
func IsPublic(path string) bool {
	return publicPaths[path] || strings.HasPrefix(path, "/static/")
}

// Require gates every non-public route behind a valid session. HTMX requests
// get a 401 with HX-Redirect so the client navigates to the login page.
func (s *Sessions) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsPublic(r.URL.Path) || s.Authenticated(r) {
			next.ServeHTTP(w, r)
			return
		}

		slog.DebugContext(r.Context(), "Unauthenticated request", "path", r.URL.Path, "method", r.Method)
		if r.Header.Get("HX-Request") == "true" {
			w.Header().Set("HX-Redirect", LoginPath)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
	})
}
