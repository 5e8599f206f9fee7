package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const localProviderName = "local"

// IdentityProvider is the minimal behaviour required from an upstream IdP
// used for admin sign-in.
type IdentityProvider interface {
	AuthCodeURL(state, nonce string) string
	Exchange(ctx context.Context, code, expectedNonce string) (ProviderUser, error)
}

// OIDCProvider wraps an upstream IdP configuration and helpers.
type OIDCProvider struct {
	name        string
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	logger      *slog.Logger
}

// NewOIDCProvider initializes the provider via discovery.
func NewOIDCProvider(ctx context.Context, name string, upstream UpstreamProvider, redirect string, logger *slog.Logger) (*OIDCProvider, error) {
	if upstream.Issuer == "" {
		return nil, fmt.Errorf("issuer required for provider %s", name)
	}

	op, err := oidc.NewProvider(ctx, upstream.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover provider %s: %w", name, err)
	}

	endpoint := op.Endpoint()
	if upstream.ClientSecret == "" {
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}

	oauthCfg := &oauth2.Config{
		ClientID:     upstream.ClientID,
		ClientSecret: upstream.ClientSecret,
		RedirectURL:  redirect,
		Endpoint:     endpoint,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	return &OIDCProvider{
		name:        name,
		oauthConfig: oauthCfg,
		verifier:    op.Verifier(&oidc.Config{ClientID: upstream.ClientID}),
		logger:      logger,
	}, nil
}

// AuthCodeURL constructs the authorization request for upstream.
func (p *OIDCProvider) AuthCodeURL(state, nonce string) string {
	opts := []oauth2.AuthCodeOption{}
	if nonce != "" {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", nonce))
	}
	return p.oauthConfig.AuthCodeURL(state, opts...)
}

// Exchange completes the code exchange and returns a normalized user.
func (p *OIDCProvider) Exchange(ctx context.Context, code, expectedNonce string) (ProviderUser, error) {
	tok, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return ProviderUser{}, fmt.Errorf("exchange code: %w", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return ProviderUser{}, fmt.Errorf("id_token missing in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return ProviderUser{}, fmt.Errorf("verify id_token: %w", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return ProviderUser{}, fmt.Errorf("parse claims: %w", err)
	}

	if expectedNonce != "" {
		if nonce, ok := claims["nonce"].(string); !ok || nonce != expectedNonce {
			return ProviderUser{}, fmt.Errorf("nonce mismatch")
		}
	}

	user := ProviderUser{
		Subject: idToken.Subject,
		Claims:  claims,
	}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		user.Name = name
	} else if preferred, ok := claims["preferred_username"].(string); ok {
		user.Name = preferred
	}

	return user, nil
}

// BuildProviders prepares all configured upstream providers.
func BuildProviders(ctx context.Context, cfg Config, logger *slog.Logger) (map[string]IdentityProvider, error) {
	providers := make(map[string]IdentityProvider)

	for name, upstream := range cfg.Providers.Upstream {
		if upstream.Issuer == "" {
			continue
		}
		redirect := strings.TrimSuffix(cfg.Server.PublicURL, "/") + "/callback/" + name
		prov, err := NewOIDCProvider(ctx, name, upstream, redirect, logger)
		if err != nil {
			if cfg.Server.DevMode {
				logger.Warn("provider init failed", "provider", name, "error", err)
				continue
			}
			return nil, err
		}
		providers[name] = prov
	}

	if cfg.Providers.Default != "" {
		if _, ok := providers[cfg.Providers.Default]; !ok {
			if cfg.Server.DevMode {
				logger.Warn("default provider unavailable", "provider", cfg.Providers.Default)
			} else {
				return nil, fmt.Errorf("default provider %s not configured", cfg.Providers.Default)
			}
		}
	}

	return providers, nil
}
