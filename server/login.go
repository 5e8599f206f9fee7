package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// handleLogin starts the admin sign-in flow. In dev mode without a
// configured provider a local session with full capabilities is created
// directly, mirroring the usual dev-login shortcut.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	returnTo := safeReturnTo(r.URL.Query().Get("return_to"))

	providerName := r.URL.Query().Get("idp")
	if providerName == "" {
		providerName = a.DefaultProvider
	}

	if a.Config.Server.DevMode && providerName == localProviderName {
		user := AdminUser{
			Subject:      "local:dev-admin",
			Email:        "dev@example.com",
			Name:         "Dev Admin",
			Capabilities: AllCapabilities,
		}
		if err := a.Sessions.Create(w, user); err != nil {
			a.Logger.Error("dev session create", "error", err)
			http.Error(w, "session failure", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, returnTo, http.StatusFound)
		return
	}

	provider, ok := a.Providers[providerName]
	if !ok {
		a.Logger.Error("unknown provider", "provider", providerName)
		http.Error(w, "sign-in provider not available", http.StatusServiceUnavailable)
		return
	}

	req := LoginRequest{
		ID:       a.State.NewID(),
		Provider: providerName,
		Nonce:    a.State.NewID(),
		ReturnTo: returnTo,
	}
	a.State.SaveLoginRequest(req)

	http.Redirect(w, r, provider.AuthCodeURL(req.ID, req.Nonce), http.StatusFound)
}

// handleCallback completes the upstream sign-in and establishes the admin
// session. Administrators are recognized by the email asserted upstream;
// anyone else is rejected.
func (a *App) handleCallback(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "idp")
	provider, ok := a.Providers[providerName]
	if !ok {
		http.Error(w, "provider not configured", http.StatusBadRequest)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid callback", http.StatusBadRequest)
		return
	}

	state := r.FormValue("state")
	code := r.FormValue("code")
	if state == "" || code == "" {
		http.Error(w, "missing state or code", http.StatusBadRequest)
		return
	}

	req, ok := a.State.ConsumeLoginRequest(state)
	if !ok {
		http.Error(w, "unknown state", http.StatusBadRequest)
		return
	}
	if req.Provider != providerName {
		http.Error(w, "state provider mismatch", http.StatusBadRequest)
		return
	}

	providerUser, err := provider.Exchange(r.Context(), code, req.Nonce)
	if err != nil {
		a.Logger.Error("exchange failed", "provider", providerName, "error", err)
		http.Error(w, "login failed", http.StatusBadGateway)
		return
	}

	capabilities := a.Config.CapabilitiesFor(providerUser.Email)
	if len(capabilities) == 0 {
		a.Logger.Warn("sign-in rejected", "email", providerUser.Email, "provider", providerName)
		http.Error(w, "You are not an administrator of this service.", http.StatusForbidden)
		return
	}

	user := AdminUser{
		Subject:      providerName + ":" + providerUser.Subject,
		Email:        providerUser.Email,
		Name:         providerUser.Name,
		Capabilities: capabilities,
	}
	if err := a.Sessions.Create(w, user); err != nil {
		a.Logger.Error("session create", "error", err)
		http.Error(w, "session failure", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, req.ReturnTo, http.StatusFound)
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.Sessions.Clear(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// safeReturnTo restricts post-login redirects to local paths.
func safeReturnTo(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return appsPath
	}
	if _, err := url.Parse(raw); err != nil {
		return appsPath
	}
	return raw
}
