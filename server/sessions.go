package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookieName = "consumerd_session"

// SessionManager issues and verifies signed session cookies. Sessions are
// stateless JWTs signed with the rotating key set, so restarts do not log
// administrators out as long as the key file persists.
type SessionManager struct {
	keys         *KeySet
	logger       *slog.Logger
	ttl          time.Duration
	issuer       string
	secure       bool
	sameSite     http.SameSite
	cookieDomain string
}

// NewSessionManager constructs a session manager honouring config.
func NewSessionManager(cfg Config, keys *KeySet, logger *slog.Logger) *SessionManager {
	sameSite := http.SameSiteStrictMode
	if cfg.Server.DevMode {
		sameSite = http.SameSiteLaxMode
	}

	return &SessionManager{
		keys:         keys,
		logger:       logger,
		ttl:          cfg.Sessions.TTLDuration(),
		issuer:       cfg.Server.PublicURL,
		secure:       !cfg.Server.DevMode,
		sameSite:     sameSite,
		cookieDomain: cfg.Server.CookieDomain,
	}
}

// Create signs a session token for the user and sets the cookie.
func (sm *SessionManager) Create(w http.ResponseWriter, user AdminUser) error {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   sm.issuer,
		"sub":   user.Subject,
		"email": user.Email,
		"name":  user.Name,
		"caps":  user.Capabilities,
		"iat":   now.Unix(),
		"exp":   now.Add(sm.ttl).Unix(),
	}
	token, err := sm.keys.Sign(claims)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   sm.cookieDomain,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: sm.sameSite,
		MaxAge:   int(sm.ttl.Seconds()),
	})
	return nil
}

// Fetch returns the administrator bound to the request cookie, or nil
// when no valid session is present.
func (sm *SessionManager) Fetch(r *http.Request) *AdminUser {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(sm.issuer),
		jwt.WithExpirationRequired(),
	)
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(cookie.Value, claims, sm.keys.Keyfunc)
	if err != nil || !token.Valid {
		return nil
	}

	user := &AdminUser{}
	user.Subject, _ = claims["sub"].(string)
	user.Email, _ = claims["email"].(string)
	user.Name, _ = claims["name"].(string)
	if raw, ok := claims["caps"].([]any); ok {
		for _, v := range raw {
			if c, ok := v.(string); ok {
				user.Capabilities = append(user.Capabilities, c)
			}
		}
	}
	if user.Subject == "" {
		return nil
	}
	return user
}

// Clear removes the session cookie for logout.
func (sm *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   sm.cookieDomain,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: sm.sameSite,
		MaxAge:   -1,
	})
}
