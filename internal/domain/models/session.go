package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionMetadata anchors the idle and absolute timeouts of one refresh token chain.
type SessionMetadata struct {
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// AccessClaims are the claims of an access token. The jti is RegisteredClaims.ID.
// AccessClaims 是访问令牌的声明。jti 即 RegisteredClaims.ID。
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Type  string `json:"typ"`
}

// RefreshClaims are the claims of a refresh token.
type RefreshClaims struct {
	jwt.RegisteredClaims
	RefreshTokenID string `json:"rti"`
	Type           string `json:"typ"`
}

// TokenPair is returned after a successful sign-in or refresh.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	ExpiresIn        int64     `json:"expiresIn"`
	SessionExpiresAt time.Time `json:"sessionExpiresAt"`
}
