package service

import (
	"context"
	"time"

	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

func lockoutAttemptsKey(email string) string { return "lockout:" + email + ":attempts" }
func lockoutLockedKey(email string) string   { return "lockout:" + email + ":locked" }

// LockoutConfig configures PasswordLockoutService.
type LockoutConfig struct {
	MaxAttempts int
	Window      time.Duration
	Duration    time.Duration
}

// LockoutResult is the outcome of recording a failed sign-in.
type LockoutResult struct {
	Attempts int
	// JustLocked is true only for the failure that crossed the threshold.
	JustLocked bool
}

// PasswordLockoutService counts failed sign-ins per email and locks the address after MaxAttempts
// failures inside Window. Emails must already be normalized.
type PasswordLockoutService struct {
	store KVStore
	cfg   LockoutConfig
	log   logger.Logger
}

func NewPasswordLockoutService(store KVStore, cfg LockoutConfig, log logger.Logger) *PasswordLockoutService {
	return &PasswordLockoutService{store: store, cfg: cfg, log: log.WithComponent("PasswordLockoutService")}
}

// IsLocked reports whether email is currently locked out.
func (s *PasswordLockoutService) IsLocked(ctx context.Context, email string) (bool, error) {
	locked, err := s.store.Exists(ctx, lockoutLockedKey(email))
	if err != nil {
		return false, errors.ErrServiceUnavailable("lockout store").WithCause(err)
	}
	return locked, nil
}

// RecordFailure counts one failed attempt and locks the email once the threshold is reached.
func (s *PasswordLockoutService) RecordFailure(ctx context.Context, email string) (LockoutResult, error) {
	n, err := s.store.Incr(ctx, lockoutAttemptsKey(email))
	if err != nil {
		return LockoutResult{}, errors.ErrServiceUnavailable("lockout store").WithCause(err)
	}
	if n == 1 {
		if err := s.store.Expire(ctx, lockoutAttemptsKey(email), s.cfg.Window); err != nil {
			s.log.Warn(ctx, "failed to set lockout window", logger.Error(err))
		}
	}
	res := LockoutResult{Attempts: int(n)}
	if int(n) < s.cfg.MaxAttempts {
		return res, nil
	}

	set, err := s.store.SetNX(ctx, lockoutLockedKey(email), "1", s.cfg.Duration)
	if err != nil {
		return res, errors.ErrServiceUnavailable("lockout store").WithCause(err)
	}
	res.JustLocked = set
	if set {
		s.log.Warn(ctx, "account locked after repeated failures",
			logger.Email("email", email), logger.Int("attempts", res.Attempts))
	}
	return res, nil
}

// ClearFailures resets the counter and lifts any lock.
func (s *PasswordLockoutService) ClearFailures(ctx context.Context, email string) error {
	if _, err := s.store.Del(ctx, lockoutAttemptsKey(email), lockoutLockedKey(email)); err != nil {
		return errors.ErrServiceUnavailable("lockout store").WithCause(err)
	}
	return nil
}

// LockDuration returns how long a lockout lasts.
func (s *PasswordLockoutService) LockDuration() time.Duration {
	return s.cfg.Duration
}
