// Package notify delivers user notifications. The default Mailer renders each notification
// as a structured log line; a real transport can be dropped in behind service.Mailer.
package notify

import (
	"context"
	"sort"

	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

var subjects = map[service.NotificationKind]string{
	service.NotifyAccountLocked:   "Your account has been locked",
	service.NotifyAccountUnlocked: "Your account has been unlocked",
	service.NotifyTFAEnabled:      "Two-factor authentication enabled",
	service.NotifyTFADisabled:     "Two-factor authentication disabled",
	service.NotifyWelcome:         "Welcome to DHIS2 certification",
	service.NotifyPasswordReset:   "Password reset requested",
	service.NotifyPasswordChanged: "Your password was changed",
}

// LogMailer implements service.Mailer by logging.
type LogMailer struct {
	logger logger.Logger
}

func NewLogMailer(log logger.Logger) *LogMailer {
	return &LogMailer{logger: log.WithComponent("mailer")}
}

// Subject returns the subject line of kind, or "" for an unknown kind.
func Subject(kind service.NotificationKind) string {
	return subjects[kind]
}

// Notify logs n. The recipient address is masked and data values are omitted, only keys are kept.
func (m *LogMailer) Notify(ctx context.Context, n service.Notification) error {
	subject, ok := subjects[n.Kind]
	if !ok {
		return errors.ErrValidation("unknown notification kind", map[string]string{"kind": string(n.Kind)})
	}
	if n.To == "" {
		return errors.ErrValidation("notification has no recipient", nil)
	}

	keys := make([]string, 0, len(n.Data))
	for k := range n.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m.logger.Info(ctx, "notification sent",
		logger.String("kind", string(n.Kind)),
		logger.Email("to", n.To),
		logger.String("subject", subject),
		logger.Any("data_keys", keys),
	)
	return nil
}

var _ service.Mailer = (*LogMailer)(nil)
