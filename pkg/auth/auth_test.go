package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() JWTConfig {
	return JWTConfig{SecretKey: "test-secret", Issuer: "idea-canvas"}
}

func TestValidateToken_RoundTrip(t *testing.T) {
	token, err := GenerateToken(testConfig(), "user-1", time.Hour)
	require.NoError(t, err)

	v, err := NewJWTValidator(testConfig())
	require.NoError(t, err)

	claims, err := v.ValidateToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
}

func TestValidateToken_Rejections(t *testing.T) {
	v, err := NewJWTValidator(testConfig())
	require.NoError(t, err)

	expired, err := GenerateToken(testConfig(), "user-1", -time.Minute)
	require.NoError(t, err)

	otherKey := testConfig()
	otherKey.SecretKey = "other"
	forged, err := GenerateToken(otherKey, "user-1", time.Hour)
	require.NoError(t, err)

	wrongIssuer := testConfig()
	wrongIssuer.Issuer = "someone-else"
	foreign, err := GenerateToken(wrongIssuer, "user-1", time.Hour)
	require.NoError(t, err)

	noSubject, err := GenerateToken(testConfig(), "", time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"expired", expired, ErrExpiredToken},
		{"wrong key", forged, ErrInvalidSignature},
		{"wrong issuer", foreign, ErrInvalidToken},
		{"no subject", noSubject, ErrInvalidClaims},
		{"alg none", none, ErrInvalidToken},
		{"garbage", "not.a.jwt", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewJWTValidator_RequiresSecret(t *testing.T) {
	_, err := NewJWTValidator(JWTConfig{})
	assert.Error(t, err)
}

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	_, err := GetUserFromContext(ctx)
	assert.ErrorIs(t, err, ErrNoUser)
	assert.Empty(t, UserIDFromContext(ctx))

	ctx = SetUserInContext(ctx, &UserContext{UserID: "u"})
	assert.Equal(t, "u", UserIDFromContext(ctx))
}
