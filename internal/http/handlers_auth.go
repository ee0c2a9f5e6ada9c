package http

import (
	"encoding/json"
	"net/http"

	applog "chantier/internal/log"
)

type loginView struct {
	Page
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.sessions.Authenticated(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", loginView{Page: Page{Title: "Connexion", Active: "login"}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrFail(w, r) {
		return
	}
	logger := applog.FromContext(r.Context()).WithComponent(applog.ComponentAuth)

	if err := s.password.Verify(r.PostForm.Get("password")); err != nil {
		logger.WarnContext(r.Context(), "Login rejected", applog.FieldClientIP, s.detector.ExtractClientIP(r))
		if isHTMX(r) {
			UnauthorizedError("Mot de passe incorrect").Write(w)
			return
		}
		s.render(w, r, http.StatusUnauthorized, "login.html", loginView{
			Page: Page{Title: "Connexion", Active: "login", Error: "Mot de passe incorrect"},
		})
		return
	}

	if err := s.sessions.SetCookie(w); err != nil {
		logger.ErrorContext(r.Context(), "Failed to issue session", applog.FieldError, err)
		InternalServerError("Impossible d'ouvrir la session").Write(w)
		return
	}
	logger.InfoContext(r.Context(), "Login succeeded", applog.FieldClientIP, s.detector.ExtractClientIP(r))

	if isHTMX(r) {
		NewHTMXResponse().Redirect("/").Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(map[string]bool{"authenticated": s.sessions.Authenticated(r)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
