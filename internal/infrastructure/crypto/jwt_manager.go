package crypto

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
)

const minSecretLength = 32

// JWTManagerConfig configures NewJWTManager. Access and refresh tokens use different secrets so one
// can never be presented as the other.
type JWTManagerConfig struct {
	AccessSecret    string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
	Audience        string
	Now             func() time.Time
}

type jwtManager struct {
	cfg JWTManagerConfig
}

var _ service.TokenManager = (*jwtManager)(nil)

// NewJWTManager creates an HS256 token manager.
func NewJWTManager(cfg JWTManagerConfig) (service.TokenManager, error) {
	if len(cfg.AccessSecret) < minSecretLength || len(cfg.RefreshSecret) < minSecretLength {
		return nil, fmt.Errorf("jwt secrets must be at least %d bytes", minSecretLength)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("jwt access and refresh secrets must differ")
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = constants.AccessTokenDefaultTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = constants.RefreshTokenDefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &jwtManager{cfg: cfg}, nil
}

func (j *jwtManager) AccessTokenTTL() time.Duration  { return j.cfg.AccessTokenTTL }
func (j *jwtManager) RefreshTokenTTL() time.Duration { return j.cfg.RefreshTokenTTL }

func (j *jwtManager) registered(subject, id string, now time.Time, ttl time.Duration) (jwt.RegisteredClaims, time.Time) {
	exp := now.Add(ttl)
	return jwt.RegisteredClaims{
		ID:        id,
		Subject:   subject,
		Issuer:    j.cfg.Issuer,
		Audience:  jwt.ClaimStrings{j.cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}, exp
}

// IssueAccessToken signs an access token for user with the given jti.
func (j *jwtManager) IssueAccessToken(user *models.User, jti string, now time.Time) (string, time.Time, error) {
	rc, exp := j.registered(user.ID, jti, now, j.cfg.AccessTokenTTL)
	claims := models.AccessClaims{
		RegisteredClaims: rc,
		Email:            user.Email,
		Role:             user.Role,
		Type:             string(constants.TokenTypeAccess),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(j.cfg.AccessSecret))
	if err != nil {
		return "", time.Time{}, errors.ErrInternal("failed to sign access token").WithCause(err)
	}
	return signed, exp, nil
}

// IssueRefreshToken signs a refresh token carrying the logical refresh token id.
func (j *jwtManager) IssueRefreshToken(userID, refreshTokenID string, now time.Time) (string, time.Time, error) {
	rc, exp := j.registered(userID, refreshTokenID, now, j.cfg.RefreshTokenTTL)
	claims := models.RefreshClaims{
		RegisteredClaims: rc,
		RefreshTokenID:   refreshTokenID,
		Type:             string(constants.TokenTypeRefresh),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(j.cfg.RefreshSecret))
	if err != nil {
		return "", time.Time{}, errors.ErrInternal("failed to sign refresh token").WithCause(err)
	}
	return signed, exp, nil
}

func (j *jwtManager) parse(token string, claims jwt.Claims, secret string) error {
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.cfg.Issuer),
		jwt.WithAudience(j.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.cfg.Now),
	)
	if err != nil {
		return errors.ErrUnauthorized("invalid token").WithCause(err)
	}
	return nil
}

// ParseAccessToken verifies signature, issuer, audience, expiry and token type.
func (j *jwtManager) ParseAccessToken(token string) (*models.AccessClaims, error) {
	claims := &models.AccessClaims{}
	if err := j.parse(token, claims, j.cfg.AccessSecret); err != nil {
		return nil, err
	}
	if claims.Type != string(constants.TokenTypeAccess) || claims.ID == "" || claims.Subject == "" {
		return nil, errors.ErrUnauthorized("invalid token type")
	}
	return claims, nil
}

// ParseRefreshToken verifies a refresh token.
func (j *jwtManager) ParseRefreshToken(token string) (*models.RefreshClaims, error) {
	claims := &models.RefreshClaims{}
	if err := j.parse(token, claims, j.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != string(constants.TokenTypeRefresh) || claims.RefreshTokenID == "" || claims.Subject == "" {
		return nil, errors.ErrUnauthorized("invalid token type")
	}
	return claims, nil
}
