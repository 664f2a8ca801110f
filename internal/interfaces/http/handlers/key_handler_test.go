package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

type MockKeyService struct {
	mock.Mock
}

func (m *MockKeyService) Backend() string { return "local" }

func (m *MockKeyService) RotationStatus(ctx context.Context) models.RotationReport {
	return m.Called(ctx).Get(0).(models.RotationReport)
}

func (m *MockKeyService) Metadata(ctx context.Context) (*models.KeyMetadata, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KeyMetadata), args.Error(1)
}

func (m *MockKeyService) Rotate(ctx context.Context, actor string) (models.KeyVersion, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).(models.KeyVersion), args.Error(1)
}

func (m *MockKeyService) DIDDocument(ctx context.Context) (*models.DIDDocument, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DIDDocument), args.Error(1)
}

func newKeyRouter(svc *MockKeyService) *gin.Engine {
	h := NewKeyHandler(svc, logger.NewNoopLogger())
	r := gin.New()
	r.GET("/.well-known/did.json", h.GetDIDDocument)
	admin := r.Group("/admin/keys", withClaims(testClaims))
	admin.GET("", h.Status)
	admin.POST("/rotate", h.Rotate)
	return r
}

func TestKeyHandler_GetDIDDocument(t *testing.T) {
	svc := new(MockKeyService)
	svc.On("DIDDocument", mock.Anything).Return(&models.DIDDocument{
		ID:              "did:web:certification.dhis2.org",
		AssertionMethod: []string{"did:web:certification.dhis2.org#key-1"},
	}, nil).Once()
	svc.On("DIDDocument", mock.Anything).Return(nil, errors.ErrServiceUnavailable("vault")).Once()
	r := newKeyRouter(svc)

	w := doJSON(r, http.MethodGet, "/.well-known/did.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, constants.MediaTypeDIDLDJSON, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"did:web:certification.dhis2.org#key-1"`)

	w = doJSON(r, http.MethodGet, "/.well-known/did.json", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestKeyHandler_StatusAndRotate(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := new(MockKeyService)
	svc.On("RotationStatus", mock.Anything).Return(models.RotationReport{Status: constants.RotationWarning, ActiveVersion: 1, AgeDays: 340})
	svc.On("Metadata", mock.Anything).Return(&models.KeyMetadata{ActiveVersion: 1, Algorithm: "ed25519",
		Versions: []models.KeyVersion{{Version: 1, CreatedAt: created}}}, nil)
	svc.On("Rotate", mock.Anything, "user-1").Return(models.KeyVersion{Version: 2, CreatedAt: created}, nil)
	r := newKeyRouter(svc)

	w := doJSON(r, http.MethodGet, "/admin/keys", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := string(decode(t, w).Data)
	assert.Contains(t, data, `"backend":"local"`)
	assert.Contains(t, data, `"status":"`+string(constants.RotationWarning)+`"`)
	assert.Contains(t, data, `"algorithm":"ed25519"`)

	w = doJSON(r, http.MethodPost, "/admin/keys/rotate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"version":2`)
	svc.AssertExpectations(t)
}
