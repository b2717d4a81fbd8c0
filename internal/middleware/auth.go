// Package middleware provides HTTP middleware for the barbershop API.
package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/R3E-Network/barbershop/internal/httputil"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

// AuthError is an authentication failure with its HTTP status.
type AuthError struct {
	Status int
	Detail string
}

func (e *AuthError) Error() string { return e.Detail }

// =============================================================================
// Bearer tokens
// =============================================================================

// CheckBearer validates an Authorization header against expected.
func CheckBearer(expected, header string) *AuthError {
	if expected == "" {
		return &AuthError{Status: http.StatusInternalServerError, Detail: "Server token not configured"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &AuthError{Status: http.StatusUnauthorized, Detail: "Missing bearer token"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return &AuthError{Status: http.StatusForbidden, Detail: "Invalid bearer token"}
	}
	return nil
}

// BearerAuth guards routes with a static bearer token.
type BearerAuth struct {
	token string
	name  string
	log   *logger.Logger
}

// NewBearerAuth creates a bearer middleware. name labels log entries.
func NewBearerAuth(name, token string, log *logger.Logger) *BearerAuth {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &BearerAuth{token: strings.TrimSpace(token), name: name, log: log}
}

// Handler returns the middleware handler.
func (m *BearerAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authErr := CheckBearer(m.token, r.Header.Get("Authorization")); authErr != nil {
			m.log.WithField("scope", m.name).
				WithField("path", r.URL.Path).
				WithField("status", authErr.Status).
				Warn("bearer authentication failed")
			httputil.WriteError(w, authErr.Status, authErr.Detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Admin session
// =============================================================================

const (
	// SessionCookieName is the admin session cookie.
	SessionCookieName = "admin_session"
	// SessionTTL is the lifetime of an admin session.
	SessionTTL = 7 * 24 * time.Hour

	sessionSubject = "admin"
	sessionVersion = 1
)

type sessionClaims struct {
	Version int `json:"v"`
	jwt.RegisteredClaims
}

// SessionConfig configures admin sessions.
type SessionConfig struct {
	Secret       string
	Password     string
	CookieSecure bool
	CookieDomain string
}

// SessionAuth issues and verifies HS256-signed admin session cookies.
type SessionAuth struct {
	cfg SessionConfig
	log *logger.Logger
	now func() time.Time
}

// NewSessionAuth creates the session authenticator.
func NewSessionAuth(cfg SessionConfig, log *logger.Logger) *SessionAuth {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &SessionAuth{cfg: cfg, log: log, now: time.Now}
}

// Login checks password and sets the session cookie on success. The
// configured password may be plain text or a bcrypt hash.
func (s *SessionAuth) Login(w http.ResponseWriter, password string) *AuthError {
	if s.cfg.Password == "" {
		return &AuthError{Status: http.StatusInternalServerError, Detail: "ADMIN_PANEL_PASSWORD is not configured"}
	}
	if !s.passwordMatches(password) {
		return &AuthError{Status: http.StatusUnauthorized, Detail: "Invalid password"}
	}
	if s.cfg.Secret == "" {
		return errNoSecret
	}

	now := s.now()
	claims := sessionClaims{
		Version: sessionVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		s.log.WithError(err).Error("sign admin session")
		return &AuthError{Status: http.StatusInternalServerError, Detail: "Failed to create session"}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   s.cfg.CookieDomain,
		MaxAge:   int(SessionTTL / time.Second),
		Expires:  now.Add(SessionTTL),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout clears the session cookie.
func (s *SessionAuth) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.cfg.CookieDomain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

var errNoSecret = &AuthError{Status: http.StatusInternalServerError, Detail: "ADMIN_SESSION_SECRET is not configured"}

// Verify checks the session cookie on r.
func (s *SessionAuth) Verify(r *http.Request) *AuthError {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return &AuthError{Status: http.StatusUnauthorized, Detail: "Not authenticated"}
	}
	if s.cfg.Secret == "" {
		return errNoSecret
	}

	claims := &sessionClaims{}
	_, err = jwt.ParseWithClaims(cookie.Value, claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &AuthError{Status: http.StatusUnauthorized, Detail: "Session expired"}
	case err != nil, claims.Subject != sessionSubject, claims.Version != sessionVersion:
		return &AuthError{Status: http.StatusUnauthorized, Detail: "Invalid session"}
	}
	return nil
}

// Handler requires a valid admin session.
func (s *SessionAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authErr := s.Verify(r); authErr != nil {
			s.log.WithField("path", r.URL.Path).WithField("reason", authErr.Detail).Debug("admin session rejected")
			httputil.WriteError(w, authErr.Status, authErr.Detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *SessionAuth) passwordMatches(password string) bool {
	stored := s.cfg.Password
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
