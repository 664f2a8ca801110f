package mocks

import (
	"context"
	"crypto/ed25519"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/certguard/internal/domain/models"
)

// MockSigningService is a mock implementation of service.SigningService
type MockSigningService struct {
	mock.Mock
}

func (m *MockSigningService) Sign(ctx context.Context, data []byte) ([]byte, error) {
	args := m.Called(ctx, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockSigningService) PublicKey(ctx context.Context) (ed25519.PublicKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ed25519.PublicKey), args.Error(1)
}

func (m *MockSigningService) PublicKeyMultibase(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSigningService) VerificationKeys(ctx context.Context) (map[int]ed25519.PublicKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]ed25519.PublicKey), args.Error(1)
}

func (m *MockSigningService) KeyVersion() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockSigningService) VerificationMethod() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSigningService) CreateDataIntegrityProof(ctx context.Context, canonicalDocument []byte) (*models.DataIntegrityProof, error) {
	args := m.Called(ctx, canonicalDocument)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DataIntegrityProof), args.Error(1)
}

func (m *MockSigningService) VerifyDataIntegrityProof(ctx context.Context, canonicalDocument []byte, proof *models.DataIntegrityProof) (bool, error) {
	args := m.Called(ctx, canonicalDocument, proof)
	return args.Bool(0), args.Error(1)
}

func (m *MockSigningService) DIDDocument(ctx context.Context) (*models.DIDDocument, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DIDDocument), args.Error(1)
}
