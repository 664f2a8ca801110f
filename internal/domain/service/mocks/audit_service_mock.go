package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/constants"
)

type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) LogEvent(ctx context.Context, event models.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// EventsOf returns the recorded events of type t in call order.
func (m *MockAuditService) EventsOf(t constants.AuditEventType) []models.AuditEvent {
	var out []models.AuditEvent
	for _, call := range m.Calls {
		if e, ok := call.Arguments.Get(1).(models.AuditEvent); ok && e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Notify(ctx context.Context, n service.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// Sent counts the notifications of kind.
func (m *MockMailer) Sent(kind service.NotificationKind) int {
	n := 0
	for _, call := range m.Calls {
		if note, ok := call.Arguments.Get(1).(service.Notification); ok && note.Kind == kind {
			n++
		}
	}
	return n
}
