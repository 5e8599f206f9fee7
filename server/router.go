package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes constructs the HTTP router for the admin service.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(a.Logger))
	r.Use(RecoveryMiddleware(a.Logger))
	if !a.Config.Server.DevMode {
		r.Use(SecurityHeadersMiddleware())
	}

	r.Get("/healthz", a.handleHealthz)
	r.Get("/jwks.json", a.handleJWKS)

	r.Get("/login", a.handleLogin)
	r.Get("/callback/{idp}", a.handleCallback)
	r.Post("/logout", a.handleLogout)

	r.Get(appsPath, a.handleApps)
	r.Post(appsPath, a.handleApps)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, appsPath, http.StatusFound)
	})

	return r
}
