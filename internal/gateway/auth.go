// Package gateway implements the reverse proxy bridging an end-user's
// session-authenticated connection to a per-VPS control surface
// (spec.md §4.2), without ever exposing the agent's gateway token to the
// browser.
package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/slopbox/controlplane/internal/store"
)

var (
	errMissingToken    = errors.New("gateway: missing session token")
	errInvalidToken    = errors.New("gateway: invalid session token")
	errNoActiveSession = errors.New("gateway: no active session for user")
)

// sessionClaims is the minimal claim set the gateway trusts: `sub` is the
// user id (spec.md §6 "JWT claim sub is the user id").
type sessionClaims struct {
	jwt.RegisteredClaims
}

// Authenticator verifies session JWTs (HS256) and enforces a bounded
// maximum lifetime regardless of the token's own `exp` claim — spec.md
// §9's open question resolved in SPEC_FULL.md §4.2: expiration is
// enforced, not disabled, with the bound configurable. When
// requireActiveSession is set, the JWT's `sub` claim must also own a
// live row in the identity layer's sessions table (SPEC_FULL.md §3
// "strict session checking").
type Authenticator struct {
	secret               []byte
	maxTTL               time.Duration
	store                *store.Store
	requireActiveSession bool
}

func NewAuthenticator(secret string, maxTTL time.Duration, st *store.Store, requireActiveSession bool) *Authenticator {
	return &Authenticator{secret: []byte(secret), maxTTL: maxTTL, store: st, requireActiveSession: requireActiveSession}
}

// extractToken reads the session JWT from Authorization: Bearer or the
// `token` query parameter (spec.md §6).
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Authenticate returns the caller's user id, or an error if the token is
// missing, malformed, unverifiable, carries no `exp` claim, or exceeds the
// bounded max lifetime (measured from `iat`, or from now when `iat` is
// absent).
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	raw := extractToken(r)
	if raw == "" {
		return "", errMissingToken
	}

	var claims sessionClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}

	if claims.ExpiresAt == nil {
		return "", errInvalidToken
	}
	issuedAt := time.Now()
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt.Sub(issuedAt) > a.maxTTL {
		return "", errInvalidToken
	}

	if claims.Subject == "" {
		return "", errInvalidToken
	}

	if a.requireActiveSession {
		active, err := a.store.HasActiveSession(r.Context(), claims.Subject)
		if err != nil || !active {
			return "", errNoActiveSession
		}
	}

	return claims.Subject, nil
}
