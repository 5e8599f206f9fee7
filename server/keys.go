package server

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

type keyPair struct {
	PrivateKey *rsa.PrivateKey
	JWK        jose.JSONWebKey
	Kid        string
	CreatedAt  time.Time
}

// KeySet manages the RSA keys used to sign admin session tokens and
// exposes their public halves as a JSON Web Key Set so host services can
// verify consumerd-issued assertions.
type KeySet struct {
	mu          sync.RWMutex
	current     keyPair
	previous    []keyPair
	rotateEvery time.Duration
	storePath   string
	logger      *slog.Logger
}

// NewKeySet loads persisted signing keys from storePath or creates a
// fresh pair when none exist.
func NewKeySet(storePath string, rotateEvery time.Duration, logger *slog.Logger) (*KeySet, error) {
	ks := &KeySet{
		rotateEvery: rotateEvery,
		storePath:   storePath,
		logger:      logger,
	}

	if storePath != "" {
		if err := ks.loadFromDisk(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	if ks.current.PrivateKey == nil {
		if err := ks.rotate(); err != nil {
			return nil, err
		}
	}

	return ks, nil
}

// StartRotation launches the background rotation ticker.
func (ks *KeySet) StartRotation(stop <-chan struct{}) {
	if ks.rotateEvery <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(ks.rotateEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := ks.rotate(); err != nil {
					ks.logger.Error("key rotation failed", "error", err)
				}
			case <-stop:
				return
			}
		}
	}()
}

// Sign signs claims with the current key and returns the compact token.
func (ks *KeySet) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	token.Header["kid"] = ks.current.Kid
	return token.SignedString(ks.current.PrivateKey)
}

// Keyfunc resolves the verification key for a parsed token header.
func (ks *KeySet) Keyfunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if kid == "" || kid == ks.current.Kid {
		return &ks.current.PrivateKey.PublicKey, nil
	}
	for _, prev := range ks.previous {
		if prev.Kid == kid {
			return &prev.PrivateKey.PublicKey, nil
		}
	}
	return nil, errors.New("unknown signing key")
}

// PublicJWKS exposes the public keys for the /jwks.json endpoint.
func (ks *KeySet) PublicJWKS() jose.JSONWebKeySet {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	keys := []jose.JSONWebKey{ks.current.JWK.Public()}
	for _, prev := range ks.previous {
		keys = append(keys, prev.JWK.Public())
	}
	return jose.JSONWebKeySet{Keys: keys}
}

func (ks *KeySet) rotate() error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}
	kid := randomHexToken(6)
	jwk := jose.JSONWebKey{Key: key, KeyID: kid, Algorithm: string(jose.RS256), Use: "sig"}

	ks.mu.Lock()
	if ks.current.PrivateKey != nil {
		// Keep one predecessor so sessions signed just before rotation
		// stay verifiable until they expire.
		ks.previous = append([]keyPair{ks.current}, ks.previous...)
		if len(ks.previous) > 1 {
			ks.previous = ks.previous[:1]
		}
	}
	ks.current = keyPair{PrivateKey: key, JWK: jwk, Kid: kid, CreatedAt: time.Now()}
	ks.mu.Unlock()

	if ks.storePath != "" {
		return ks.persist()
	}
	return nil
}

func (ks *KeySet) persist() error {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	keys := []jose.JSONWebKey{ks.current.JWK}
	for _, prev := range ks.previous {
		keys = append(keys, prev.JWK)
	}
	payload, err := json.MarshalIndent(jose.JSONWebKeySet{Keys: keys}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(ks.storePath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(ks.storePath, payload, 0o600)
}

func (ks *KeySet) loadFromDisk() error {
	payload, err := os.ReadFile(ks.storePath)
	if err != nil {
		return err
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(payload, &set); err != nil {
		return err
	}
	if len(set.Keys) == 0 {
		return errors.New("no keys in key file")
	}

	var prev []keyPair
	for i, key := range set.Keys {
		priv, ok := key.Key.(*rsa.PrivateKey)
		if !ok {
			continue
		}
		pair := keyPair{PrivateKey: priv, JWK: key, Kid: key.KeyID, CreatedAt: time.Now()}
		if i == 0 {
			ks.current = pair
		} else {
			prev = append(prev, pair)
		}
	}
	ks.previous = prev
	return nil
}
