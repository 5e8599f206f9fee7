package server

import (
	"testing"
	"time"
)

func TestCSRFTokenSingleUse(t *testing.T) {
	store := NewStateStore()

	token := store.IssueCSRF("create")
	if token == "" {
		t.Fatal("empty token issued")
	}
	if !store.VerifyCSRF(token, "create") {
		t.Fatal("fresh token did not verify")
	}
	if store.VerifyCSRF(token, "create") {
		t.Fatal("token verified twice")
	}
}

func TestCSRFScopeMismatchConsumesToken(t *testing.T) {
	store := NewStateStore()

	token := store.IssueCSRF("edit:abc")
	if store.VerifyCSRF(token, "delete:abc") {
		t.Fatal("token verified for wrong scope")
	}
	// A scope mismatch still burns the token.
	if store.VerifyCSRF(token, "edit:abc") {
		t.Fatal("token survived mismatched verify")
	}
}

func TestCSRFRejectsEmptyAndUnknown(t *testing.T) {
	store := NewStateStore()

	if store.VerifyCSRF("", "create") {
		t.Fatal("empty token verified")
	}
	if store.VerifyCSRF("deadbeef", "create") {
		t.Fatal("unknown token verified")
	}
}

func TestCSRFExpiry(t *testing.T) {
	store := NewStateStore()

	token := store.IssueCSRF("create")
	store.mu.Lock()
	entry := store.csrf[token]
	entry.expiresAt = time.Now().Add(-time.Second)
	store.csrf[token] = entry
	store.mu.Unlock()

	if store.VerifyCSRF(token, "create") {
		t.Fatal("expired token verified")
	}
}

func TestLoginRequestConsumeOnce(t *testing.T) {
	store := NewStateStore()

	store.SaveLoginRequest(LoginRequest{ID: "state-1", Provider: "acme", Nonce: "n", ReturnTo: "/apps"})

	req, ok := store.ConsumeLoginRequest("state-1")
	if !ok {
		t.Fatal("saved request not found")
	}
	if req.Provider != "acme" || req.ReturnTo != "/apps" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if _, ok := store.ConsumeLoginRequest("state-1"); ok {
		t.Fatal("request consumed twice")
	}
}

func TestLoginRequestExpiry(t *testing.T) {
	store := NewStateStore()

	store.SaveLoginRequest(LoginRequest{ID: "state-2", Provider: "acme"})
	store.mu.Lock()
	req := store.loginRequests["state-2"]
	req.ExpiresAt = time.Now().Add(-time.Second)
	store.loginRequests["state-2"] = req
	store.mu.Unlock()

	if _, ok := store.ConsumeLoginRequest("state-2"); ok {
		t.Fatal("expired request consumed")
	}
}
