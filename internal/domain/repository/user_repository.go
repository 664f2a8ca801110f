// Package repository defines the persistence contracts of the domain layer.
// Implementations live in internal/infrastructure/persistence.
package repository

import (
	"context"
	"time"

	"github.com/turtacn/certguard/internal/domain/models"
)

// UserRepository defines the persistence operations for user accounts.
// UserRepository 定义用户账户的持久化操作。
type UserRepository interface {
	// FindByID returns the user or a not-found error.
	FindByID(ctx context.Context, id string) (*models.User, error)

	// FindByEmail looks up a user by normalized email. A missing user is a not-found error.
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// Create inserts a new user. A duplicate email is a conflict error.
	Create(ctx context.Context, user *models.User) error

	// IncrementFailedLogins atomically bumps failedLoginAttempts and returns the new value.
	IncrementFailedLogins(ctx context.Context, id string) (int, error)

	// RecordSuccessfulLogin resets failedLoginAttempts and sets lastLoginAt.
	RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error

	// UpdatePassword replaces the password hash and resets failedLoginAttempts.
	UpdatePassword(ctx context.Context, id string, passwordHash string) error

	// UpdateTFA persists the second factor fields of user.
	UpdateTFA(ctx context.Context, user *models.User) error

	// SwapRecoveryCodes replaces the stored recovery code hashes only while they still equal
	// expected. It reports false when another redemption changed them first.
	SwapRecoveryCodes(ctx context.Context, id string, expected, replacement string) (bool, error)

	// SetLocked sets the administrative lock flag.
	SetLocked(ctx context.Context, id string, locked bool) error

	// Ping is a SELECT 1 liveness probe against the relational store.
	Ping(ctx context.Context) error
}
