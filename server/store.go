package server

import (
	"sync"
	"time"
)

const (
	csrfTokenBytes = 16
	csrfTokenTTL   = 10 * time.Minute

	loginRequestTTL = 10 * time.Minute

	// pruneThreshold is the number of live entries above which expired
	// ones are reaped on the next write.
	pruneThreshold = 1000
)

// LoginRequest tracks an in-flight admin sign-in with an upstream provider.
type LoginRequest struct {
	ID        string
	Provider  string
	Nonce     string
	ReturnTo  string
	ExpiresAt time.Time
}

type csrfEntry struct {
	scope     string
	expiresAt time.Time
}

// StateStore keeps ephemeral request-spanning state: one-time CSRF tokens
// and pending login requests. Everything durable lives in the registry.
type StateStore struct {
	mu            sync.Mutex
	csrf          map[string]csrfEntry
	loginRequests map[string]LoginRequest
}

// NewStateStore constructs an empty store.
func NewStateStore() *StateStore {
	return &StateStore{
		csrf:          make(map[string]csrfEntry),
		loginRequests: make(map[string]LoginRequest),
	}
}

// NewID generates a random identifier.
func (s *StateStore) NewID() string {
	return randomHexToken(16)
}

// IssueCSRF mints a one-time token bound to the given scope.
func (s *StateStore) IssueCSRF(scope string) string {
	token := randomHexToken(csrfTokenBytes)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.csrf) > pruneThreshold {
		s.pruneLocked()
	}
	s.csrf[token] = csrfEntry{scope: scope, expiresAt: time.Now().Add(csrfTokenTTL)}
	return token
}

// VerifyCSRF consumes token and reports whether it was issued for scope
// and has not expired. A token never verifies twice.
func (s *StateStore) VerifyCSRF(token, scope string) bool {
	if token == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.csrf[token]
	if !ok {
		return false
	}
	delete(s.csrf, token)
	if entry.scope != scope {
		return false
	}
	return time.Now().Before(entry.expiresAt)
}

// SaveLoginRequest stores a pending sign-in keyed by its state value.
func (s *StateStore) SaveLoginRequest(req LoginRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.loginRequests) > pruneThreshold {
		s.pruneLocked()
	}
	req.ExpiresAt = time.Now().Add(loginRequestTTL)
	s.loginRequests[req.ID] = req
}

// ConsumeLoginRequest retrieves and removes a pending sign-in.
func (s *StateStore) ConsumeLoginRequest(id string) (LoginRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.loginRequests[id]
	if !ok {
		return LoginRequest{}, false
	}
	delete(s.loginRequests, id)
	if time.Now().After(req.ExpiresAt) {
		return LoginRequest{}, false
	}
	return req, true
}

func (s *StateStore) pruneLocked() {
	now := time.Now()
	for token, entry := range s.csrf {
		if now.After(entry.expiresAt) {
			delete(s.csrf, token)
		}
	}
	for id, req := range s.loginRequests {
		if now.After(req.ExpiresAt) {
			delete(s.loginRequests, id)
		}
	}
}
