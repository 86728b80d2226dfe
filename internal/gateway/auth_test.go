package gateway

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims sessionClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuthenticateAcceptsValidToken(t *testing.T) {
	a := NewAuthenticator("topsecret", time.Hour, nil, false)
	now := time.Now()
	token := signToken(t, "topsecret", sessionClaims{jwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(30 * time.Minute)),
	}})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	userID, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestAuthenticateAcceptsQueryParamToken(t *testing.T) {
	a := NewAuthenticator("topsecret", time.Hour, nil, false)
	now := time.Now()
	token := signToken(t, "topsecret", sessionClaims{jwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/ws?token="+token, nil)

	userID, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	a := NewAuthenticator("topsecret", time.Hour, nil, false)
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)

	_, err := a.Authenticate(req)
	assert.ErrorIs(t, err, errMissingToken)
}

func TestAuthenticateRejectsWrongSecret(t *testing.T) {
	a := NewAuthenticator("topsecret", time.Hour, nil, false)
	now := time.Now()
	token := signToken(t, "wrongsecret", sessionClaims{jwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	_, err := a.Authenticate(req)
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestAuthenticateRejectsLifetimeBeyondMaxTTL(t *testing.T) {
	a := NewAuthenticator("topsecret", time.Hour, nil, false)
	now := time.Now()
	token := signToken(t, "topsecret", sessionClaims{jwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)), // exceeds the 1h bound
	}})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	_, err := a.Authenticate(req)
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestAuthenticateRejectsMissingSubject(t *testing.T) {
	a := NewAuthenticator("topsecret", time.Hour, nil, false)
	now := time.Now()
	token := signToken(t, "topsecret", sessionClaims{jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	_, err := a.Authenticate(req)
	assert.ErrorIs(t, err, errInvalidToken)
}
