package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/certguard/internal/domain/models"
)

// MockTokenManager is a mock implementation of service.TokenManager
type MockTokenManager struct {
	mock.Mock
}

func (m *MockTokenManager) IssueAccessToken(user *models.User, jti string, now time.Time) (string, time.Time, error) {
	args := m.Called(user, jti, now)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockTokenManager) IssueRefreshToken(userID, refreshTokenID string, now time.Time) (string, time.Time, error) {
	args := m.Called(userID, refreshTokenID, now)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockTokenManager) ParseAccessToken(token string) (*models.AccessClaims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AccessClaims), args.Error(1)
}

func (m *MockTokenManager) ParseRefreshToken(token string) (*models.RefreshClaims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RefreshClaims), args.Error(1)
}

func (m *MockTokenManager) AccessTokenTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockTokenManager) RefreshTokenTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}
