package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/certguard/pkg/constants"
)

func TestUnauthorizedIsGeneric(t *testing.T) {
	a := ErrUnauthorized("user not found")
	b := ErrUnauthorized("password mismatch")

	assert.Equal(t, a.Description(), b.Description())
	assert.Equal(t, GenericAuthMessage, a.Description())
	assert.True(t, stderrors.Is(a, b))
}

func TestSessionExpiredReason(t *testing.T) {
	err := fmt.Errorf("refresh: %w", ErrSessionExpired(SessionExpiredIdle))

	assert.True(t, IsSessionExpiredError(err))
	assert.True(t, IsUnauthorizedError(err))
	assert.Equal(t, SessionExpiredIdle, SessionExpiredReason(err))
	assert.Equal(t, "", SessionExpiredReason(ErrUnauthorized("x")))
}

func TestToErrorResponse(t *testing.T) {
	t.Run("session expiry maps to unauthorized", func(t *testing.T) {
		status, body := ToErrorResponse(ErrSessionExpired(SessionExpiredAbsolute))
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, string(constants.ErrCodeUnauthorized), body.Error)
	})

	t.Run("validation carries fields", func(t *testing.T) {
		status, body := ToErrorResponse(ErrValidation("invalid request", map[string]string{"email": "is required"}))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "is required", body.Fields["email"])
	})

	t.Run("plain error is internal", func(t *testing.T) {
		status, body := ToErrorResponse(stderrors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.NotContains(t, body.ErrorDescription, "boom")
	})
}

func TestWrapError(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	wrapped := WrapError(cause, constants.ErrCodeServiceUnavailable, "redis")

	require.NotNil(t, wrapped)
	assert.Equal(t, http.StatusServiceUnavailable, wrapped.HTTPStatus())
	assert.ErrorIs(t, wrapped, cause)

	again := WrapError(wrapped, constants.ErrCodeInternal, "ignored")
	assert.Equal(t, constants.ErrCodeServiceUnavailable, again.Code())
	assert.Nil(t, WrapError(nil, constants.ErrCodeInternal, "x"))
}
