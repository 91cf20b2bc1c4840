package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secretKey = "test_secret_key_1234567890"

func TestJWTMaker_GenerateAndParseToken(t *testing.T) {
	tokenTTL := 15 * time.Minute
	maker := NewJWTMaker(secretKey, tokenTTL)

	tests := []struct {
		name     string
		username string
		role     string
		uid      string
	}{
		{name: "admin user", username: "admin_user", role: "admin", uid: "6d2c2a5e-7d43-4c5b-9a1c-0e8f0d6f7a11"},
		{name: "regular user", username: "regular_user", role: "user", uid: "c0a80101-0000-4000-8000-000000000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := maker.GenerateToken(tt.username, tt.role, tt.uid)
			require.NoError(t, err)
			assert.NotEmpty(t, token)

			claims, err := maker.ParseToken(token)
			require.NoError(t, err)

			assert.Equal(t, tt.username, claims.Username)
			assert.Equal(t, tt.role, claims.Role)
			assert.Equal(t, tt.uid, claims.UserUID)
			assert.Equal(t, tt.uid, claims.Subject)
			assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, 2*time.Second)
			assert.WithinDuration(t, time.Now().Add(tokenTTL), claims.ExpiresAt.Time, 2*time.Second)
		})
	}
}

func TestJWTMaker_ParseToken_InvalidTokens(t *testing.T) {
	maker := NewJWTMaker(secretKey, 15*time.Minute)

	validToken, err := maker.GenerateToken("testuser", "user", "uid-1")
	require.NoError(t, err)

	expired := NewJWTMaker(secretKey, -time.Hour)
	expiredToken, err := expired.GenerateToken("testuser", "user", "uid-1")
	require.NoError(t, err)

	wrongSecretToken, err := NewJWTMaker("wrong_secret_key", time.Minute).GenerateToken("testuser", "user", "uid-1")
	require.NoError(t, err)

	noUIDToken, err := maker.GenerateToken("testuser", "user", "")
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, CustomClaims{
		Username: "testuser",
		UserUID:  "uid-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "malformed token", token: "invalid.token.here"},
		{name: "expired token", token: expiredToken},
		{name: "wrong secret key", token: wrongSecretToken},
		{name: "tampered token", token: validToken + "tampered"},
		{name: "missing uid", token: noUIDToken},
		{name: "alg none", token: noneToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := maker.ParseToken(tt.token)
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTMaker_ExpiredMessage(t *testing.T) {
	maker := NewJWTMaker(secretKey, time.Hour)
	maker.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := maker.GenerateToken("testuser", "user", "uid-1")
	require.NoError(t, err)

	_, err = maker.ParseToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
