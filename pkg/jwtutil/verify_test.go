package jwtutil

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "auth-service"
	testAudience = "task-platform"
)

func signTestToken(t *testing.T, key *rsa.PrivateKey, claims *Claims, kid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims(userID string) *Claims {
	return &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestParseAndValidate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	v := NewVerifier(&key.PublicKey, testIssuer, testAudience)

	t.Run("valid token", func(t *testing.T) {
		tok := signTestToken(t, key, baseClaims("user-1"), "")
		claims, err := v.ParseAndValidate(tok)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject())
	})

	t.Run("wrong signing key", func(t *testing.T) {
		tok := signTestToken(t, otherKey, baseClaims("user-1"), "")
		_, err := v.ParseAndValidate(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := baseClaims("user-1")
		claims.Issuer = "someone-else"
		tok := signTestToken(t, key, claims, "")
		_, err := v.ParseAndValidate(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := baseClaims("user-1")
		claims.Audience = jwt.ClaimStrings{"other-platform"}
		tok := signTestToken(t, key, claims, "")
		_, err := v.ParseAndValidate(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := baseClaims("user-1")
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		tok := signTestToken(t, key, claims, "")
		_, err := v.ParseAndValidate(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := v.ParseAndValidate("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestParseAndValidateKeyRotation(t *testing.T) {
	oldKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	v := NewVerifier(&oldKey.PublicKey, testIssuer, testAudience)
	v.AddKey("2026-01", &newKey.PublicKey)

	t.Run("kid selects rotated key", func(t *testing.T) {
		tok := signTestToken(t, newKey, baseClaims("user-2"), "2026-01")
		claims, err := v.ParseAndValidate(tok)
		require.NoError(t, err)
		assert.Equal(t, "user-2", claims.Subject())
	})

	t.Run("unknown kid falls back to default key", func(t *testing.T) {
		tok := signTestToken(t, oldKey, baseClaims("user-2"), "no-such-kid")
		claims, err := v.ParseAndValidate(tok)
		require.NoError(t, err)
		assert.Equal(t, "user-2", claims.Subject())
	})
}

func TestClaimsSubjectFallback(t *testing.T) {
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "legacy-user"}}
	assert.Equal(t, "legacy-user", c.Subject())

	c.UserID = "uid-user"
	assert.Equal(t, "uid-user", c.Subject())
}
