package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func newTestKeySet(t *testing.T) *KeySet {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	keys, err := NewKeySet(filepath.Join(t.TempDir(), "keys.json"), 0, logger)
	if err != nil {
		t.Fatalf("new key set: %v", err)
	}
	return keys
}

func newTestSessionManager(t *testing.T, keys *KeySet) *SessionManager {
	t.Helper()
	cfg := DefaultConfig()
	return NewSessionManager(cfg, keys, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func requestWithCookie(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/apps", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestSessionRoundTrip(t *testing.T) {
	sm := newTestSessionManager(t, newTestKeySet(t))

	rec := httptest.NewRecorder()
	err := sm.Create(rec, AdminUser{
		Subject:      "acme:u-1",
		Email:        "root@example.com",
		Name:         "Root",
		Capabilities: []string{CapListApps, CapEditApps},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	user := sm.Fetch(requestWithCookie(rec))
	if user == nil {
		t.Fatal("session did not verify")
	}
	if user.Subject != "acme:u-1" || user.Email != "root@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if !user.Can(CapListApps) || user.Can(CapCreateApps) {
		t.Fatalf("capabilities not preserved: %v", user.Capabilities)
	}
}

func TestSessionMissingCookie(t *testing.T) {
	sm := newTestSessionManager(t, newTestKeySet(t))

	req := httptest.NewRequest(http.MethodGet, "/apps", nil)
	if sm.Fetch(req) != nil {
		t.Fatal("user returned without a cookie")
	}
}

func TestSessionExpired(t *testing.T) {
	sm := newTestSessionManager(t, newTestKeySet(t))
	sm.ttl = -time.Minute

	rec := httptest.NewRecorder()
	if err := sm.Create(rec, AdminUser{Subject: "acme:u-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if sm.Fetch(requestWithCookie(rec)) != nil {
		t.Fatal("expired session verified")
	}
}

func TestSessionWrongIssuerRejected(t *testing.T) {
	keys := newTestKeySet(t)
	issuing := newTestSessionManager(t, keys)
	issuing.issuer = "http://other.example.com"

	rec := httptest.NewRecorder()
	if err := issuing.Create(rec, AdminUser{Subject: "acme:u-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	verifying := newTestSessionManager(t, keys)
	if verifying.Fetch(requestWithCookie(rec)) != nil {
		t.Fatal("session from foreign issuer verified")
	}
}

func TestSessionTamperedTokenRejected(t *testing.T) {
	sm := newTestSessionManager(t, newTestKeySet(t))

	rec := httptest.NewRecorder()
	if err := sm.Create(rec, AdminUser{Subject: "acme:u-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	cookie := rec.Result().Cookies()[0]
	cookie.Value += "x"

	req := httptest.NewRequest(http.MethodGet, "/apps", nil)
	req.AddCookie(cookie)
	if sm.Fetch(req) != nil {
		t.Fatal("tampered session verified")
	}
}

func TestSessionSurvivesRotation(t *testing.T) {
	keys := newTestKeySet(t)
	sm := newTestSessionManager(t, keys)

	rec := httptest.NewRecorder()
	if err := sm.Create(rec, AdminUser{Subject: "acme:u-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := keys.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if sm.Fetch(requestWithCookie(rec)) == nil {
		t.Fatal("session invalidated by single rotation")
	}

	// Two rotations push the signing key out of the set.
	if err := keys.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if sm.Fetch(requestWithCookie(rec)) != nil {
		t.Fatal("session verified after key retired")
	}
}

func TestSessionClear(t *testing.T) {
	sm := newTestSessionManager(t, newTestKeySet(t))

	rec := httptest.NewRecorder()
	sm.Clear(rec)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	if cookies[0].Value != "" || cookies[0].MaxAge != -1 {
		t.Fatalf("cookie not cleared: %+v", cookies[0])
	}
}
