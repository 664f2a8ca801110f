package crypto

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/errors"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestJWTManager(t *testing.T, now func() time.Time) service.TokenManager {
	t.Helper()
	m, err := NewJWTManager(JWTManagerConfig{
		AccessSecret:    "access-secret-access-secret-access-secret",
		RefreshSecret:   "refresh-secret-refresh-secret-refresh-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "certguard",
		Audience:        "certguard-api",
		Now:             now,
	})
	require.NoError(t, err)
	return m
}

func TestJWTManager_AccessToken(t *testing.T) {
	m := newTestJWTManager(t, func() time.Time { return testNow.Add(time.Minute) })
	user := &models.User{ID: "user-1", Email: "a@example.org", Role: models.RoleAdmin}

	tok, exp, err := m.IssueAccessToken(user, "jti-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(15*time.Minute), exp)

	claims, err := m.ParseAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "jti-1", claims.ID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestJWTManager_RejectsBadTokens(t *testing.T) {
	m := newTestJWTManager(t, func() time.Time { return testNow.Add(time.Minute) })
	user := &models.User{ID: "user-1", Email: "a@example.org"}

	access, _, err := m.IssueAccessToken(user, "jti-1", testNow)
	require.NoError(t, err)
	refresh, _, err := m.IssueRefreshToken("user-1", "rt-1", testNow)
	require.NoError(t, err)
	expired, _, err := m.IssueAccessToken(user, "jti-2", testNow.Add(-time.Hour))
	require.NoError(t, err)

	// 使用 none 算法伪造的令牌必须被拒绝
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		parse func() error
	}{
		{"refresh token as access token", func() error { _, err := m.ParseAccessToken(refresh); return err }},
		{"access token as refresh token", func() error { _, err := m.ParseRefreshToken(access); return err }},
		{"expired access token", func() error { _, err := m.ParseAccessToken(expired); return err }},
		{"unsigned token", func() error { _, err := m.ParseAccessToken(none); return err }},
		{"garbage", func() error { _, err := m.ParseAccessToken("not-a-jwt"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.parse()
			require.Error(t, err)
			assert.True(t, errors.IsUnauthorizedError(err))
		})
	}
}

func TestJWTManager_RefreshToken(t *testing.T) {
	m := newTestJWTManager(t, func() time.Time { return testNow })
	tok, _, err := m.IssueRefreshToken("user-1", "rt-1", testNow)
	require.NoError(t, err)

	claims, err := m.ParseRefreshToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "rt-1", claims.RefreshTokenID)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestNewJWTManager_Validation(t *testing.T) {
	_, err := NewJWTManager(JWTManagerConfig{AccessSecret: "short", RefreshSecret: "short"})
	assert.Error(t, err)

	same := "same-secret-same-secret-same-secret-same"
	_, err = NewJWTManager(JWTManagerConfig{AccessSecret: same, RefreshSecret: same})
	assert.Error(t, err)
}
