package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

func TestLogMailer(t *testing.T) {
	m := NewLogMailer(logger.NewNoopLogger())
	ctx := context.Background()

	assert.NoError(t, m.Notify(ctx, service.Notification{Kind: service.NotifyAccountLocked, To: "a@example.org"}))

	err := m.Notify(ctx, service.Notification{Kind: "sms", To: "a@example.org"})
	assert.True(t, errors.IsValidationError(err))

	err = m.Notify(ctx, service.Notification{Kind: service.NotifyWelcome})
	assert.True(t, errors.IsValidationError(err))

	for kind := range subjects {
		assert.NotEmpty(t, Subject(kind))
	}
}
