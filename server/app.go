package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// App bundles runtime dependencies for the HTTP service.
type App struct {
	Config          Config
	Logger          *slog.Logger
	Registry        ConsumerRegistry
	State           *StateStore
	Keys            *KeySet
	Sessions        *SessionManager
	Providers       map[string]IdentityProvider
	DefaultProvider string
}

// NewApp wires together the application state from configuration. The
// registry is injected so callers own its lifecycle.
func NewApp(ctx context.Context, cfg Config, registry ConsumerRegistry, logger *slog.Logger) (*App, error) {
	keys, err := NewKeySet(cfg.KeysPath(), cfg.Sessions.RotateKeysDuration(), logger)
	if err != nil {
		return nil, err
	}

	providers, err := BuildProviders(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	defaultProvider := cfg.Providers.Default
	if cfg.Server.DevMode && defaultProvider == "" {
		defaultProvider = localProviderName
	}

	return &App{
		Config:          cfg,
		Logger:          logger,
		Registry:        registry,
		State:           NewStateStore(),
		Keys:            keys,
		Sessions:        NewSessionManager(cfg, keys, logger),
		Providers:       providers,
		DefaultProvider: defaultProvider,
	}, nil
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (a *App) handleJWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.Keys.PublicJWKS())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
