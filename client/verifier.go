// Package client verifies admin session assertions issued by consumerd.
// Host services use it to accept consumerd-signed tokens without sharing
// key material: public keys are fetched from the /jwks.json endpoint and
// cached.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

// VerifierConfig configures the assertion verifier.
type VerifierConfig struct {
	// Issuer is the consumerd public URL; tokens must carry it.
	Issuer string
	// JWKSURL is the public key endpoint, typically Issuer + "/jwks.json".
	JWKSURL string
	// CacheTTL bounds how long a fetched key set is reused.
	CacheTTL time.Duration
	// HTTPClient overrides the client used for JWKS fetches.
	HTTPClient *http.Client
}

// Verifier validates consumerd-signed admin session tokens.
type Verifier struct {
	cfg    VerifierConfig
	client *http.Client
	mu     sync.RWMutex
	cache  jwksCache
}

type jwksCache struct {
	set     jose.JSONWebKeySet
	expires time.Time
}

// Identity is a simplified view of validated assertion claims.
type Identity struct {
	Subject      string
	Email        string
	Name         string
	Capabilities []string
	ExpiresAt    time.Time
	Raw          map[string]any
}

// NewVerifier creates a verifier with sane defaults.
func NewVerifier(cfg VerifierConfig) *Verifier {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Verifier{cfg: cfg, client: client}
}

// Verify downloads the key set if necessary and validates the token.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	if rawToken == "" {
		return nil, errors.New("token required")
	}

	set, err := v.ensureJWKS(ctx, false)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
	)

	claims := jwt.MapClaims{}
	tok, err := parser.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		key := findKey(set, kid)
		if key == nil {
			// The signer may have rotated; refetch once on a kid miss.
			if refreshed, err := v.ensureJWKS(ctx, true); err == nil {
				key = findKey(refreshed, kid)
			}
		}
		if key == nil {
			return nil, fmt.Errorf("signing key not found")
		}
		return key.Key, nil
	})
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("token invalid")
	}

	return mapClaims(claims)
}

// HasCapabilities ensures the identity holds the required capabilities.
func (v *Verifier) HasCapabilities(id *Identity, required ...string) error {
	have := make(map[string]struct{}, len(id.Capabilities))
	for _, c := range id.Capabilities {
		have[c] = struct{}{}
	}
	for _, need := range required {
		if _, ok := have[need]; !ok {
			return fmt.Errorf("missing capability %s", need)
		}
	}
	return nil
}

func (v *Verifier) ensureJWKS(ctx context.Context, force bool) (jose.JSONWebKeySet, error) {
	v.mu.RLock()
	cached := v.cache
	v.mu.RUnlock()
	if !force && len(cached.set.Keys) > 0 && time.Now().Before(cached.expires) {
		return cached.set, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return jose.JSONWebKeySet{}, fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("decode jwks: %w", err)
	}

	v.mu.Lock()
	v.cache = jwksCache{set: set, expires: time.Now().Add(v.cfg.CacheTTL)}
	v.mu.Unlock()
	return set, nil
}

func findKey(set jose.JSONWebKeySet, kid string) *jose.JSONWebKey {
	for i := range set.Keys {
		if kid == "" || set.Keys[i].KeyID == kid {
			return &set.Keys[i]
		}
	}
	return nil
}

func mapClaims(claims jwt.MapClaims) (*Identity, error) {
	id := &Identity{Raw: claims}
	id.Subject, _ = claims["sub"].(string)
	if id.Subject == "" {
		return nil, errors.New("sub claim missing")
	}
	id.Email, _ = claims["email"].(string)
	id.Name, _ = claims["name"].(string)
	if raw, ok := claims["caps"].([]any); ok {
		for _, v := range raw {
			if c, ok := v.(string); ok {
				id.Capabilities = append(id.Capabilities, c)
			}
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}
