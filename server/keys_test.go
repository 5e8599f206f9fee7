package server

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestKeySetSignAndVerify(t *testing.T) {
	keys := newTestKeySet(t)

	token, err := keys.Sign(jwt.MapClaims{"sub": "u-1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.NewParser().ParseWithClaims(token, claims, keys.Keyfunc)
	if err != nil || !parsed.Valid {
		t.Fatalf("verify: %v", err)
	}
	if claims["sub"] != "u-1" {
		t.Fatalf("claims lost: %v", claims)
	}
}

func TestKeySetUnknownKidRejected(t *testing.T) {
	keys := newTestKeySet(t)

	token := &jwt.Token{Header: map[string]any{"kid": "not-a-kid"}}
	if _, err := keys.Keyfunc(token); err == nil {
		t.Fatal("unknown kid resolved a key")
	}
}

func TestKeySetPersistsAcrossRestart(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "keys.json")

	first, err := NewKeySet(path, 0, logger)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	token, err := first.Sign(jwt.MapClaims{"sub": "u-1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	second, err := NewKeySet(path, 0, logger)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if first.current.Kid != second.current.Kid {
		t.Fatalf("key not reloaded: %q vs %q", first.current.Kid, second.current.Kid)
	}
	if _, err := jwt.NewParser().ParseWithClaims(token, jwt.MapClaims{}, second.Keyfunc); err != nil {
		t.Fatalf("token from before restart did not verify: %v", err)
	}
}

func TestKeySetRotationKeepsOnePredecessor(t *testing.T) {
	keys := newTestKeySet(t)
	firstKid := keys.current.Kid

	if err := keys.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if keys.current.Kid == firstKid {
		t.Fatal("rotation did not change the current key")
	}
	if len(keys.previous) != 1 || keys.previous[0].Kid != firstKid {
		t.Fatalf("predecessor not retained: %+v", keys.previous)
	}

	set := keys.PublicJWKS()
	if len(set.Keys) != 2 {
		t.Fatalf("expected 2 published keys, got %d", len(set.Keys))
	}
	for _, k := range set.Keys {
		if !k.Valid() {
			t.Fatalf("invalid public key in set: %q", k.KeyID)
		}
		if !k.IsPublic() {
			t.Fatalf("private key published: %q", k.KeyID)
		}
	}
}
