package service

import (
	"context"
	"strconv"
	"time"

	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

const (
	sessionFieldCreatedAt    = "createdAt"
	sessionFieldLastActivity = "lastActivityAt"
	sessionScanCount         = 100
)

func sessionKey(userID, tokenID string) string { return "session:" + userID + ":" + tokenID }

// SessionConfig configures SessionTimeoutService.
type SessionConfig struct {
	IdleTimeout     time.Duration
	AbsoluteTimeout time.Duration
	// TTL of the session hash; the refresh token lifetime.
	TTL time.Duration
	Now Clock
}

// SessionTimeoutService enforces idle and absolute timeouts per (user, refresh token id).
// Timestamps are stored as unix milliseconds.
// SessionTimeoutService 按（用户，刷新令牌 ID）执行空闲超时和绝对超时。
type SessionTimeoutService struct {
	store KVStore
	cfg   SessionConfig
	now   Clock
	log   logger.Logger
}

func NewSessionTimeoutService(store KVStore, cfg SessionConfig, log logger.Logger) *SessionTimeoutService {
	return &SessionTimeoutService{
		store: store,
		cfg:   cfg,
		now:   cfg.Now.orDefault(),
		log:   log.WithComponent("SessionTimeoutService"),
	}
}

// CreateSession stores session metadata. inheritedCreatedAt carries the absolute-timeout anchor
// across refresh rotations; nil starts a new anchor.
func (s *SessionTimeoutService) CreateSession(ctx context.Context, userID, tokenID string, inheritedCreatedAt *time.Time) error {
	now := s.now()
	createdAt := now
	if inheritedCreatedAt != nil {
		createdAt = *inheritedCreatedAt
	}
	err := s.store.HSet(ctx, sessionKey(userID, tokenID), map[string]string{
		sessionFieldCreatedAt:    formatMillis(createdAt),
		sessionFieldLastActivity: formatMillis(now),
	}, s.cfg.TTL)
	if err != nil {
		return errors.ErrServiceUnavailable("session store").WithCause(err)
	}
	return nil
}

// ValidateSession enforces both timeouts and refreshes lastActivityAt. Elapsed time equal to a
// limit passes. Sessions without metadata are legacy sessions: they are created and allowed.
// Store failures are logged and allowed; only timeout violations are returned.
func (s *SessionTimeoutService) ValidateSession(ctx context.Context, userID, tokenID string) error {
	key := sessionKey(userID, tokenID)
	fields, err := s.store.HGetAll(ctx, key)
	if err != nil {
		s.log.Error(ctx, "session store read failed, allowing request", err, logger.String("user_id", userID))
		return nil
	}

	meta, ok := parseSession(fields)
	if !ok {
		s.log.Info(ctx, "no session metadata, treating as legacy session", logger.String("user_id", userID))
		if err := s.CreateSession(ctx, userID, tokenID, nil); err != nil {
			s.log.Warn(ctx, "failed to create legacy session metadata", logger.Error(err))
		}
		return nil
	}

	now := s.now()
	if absolute := now.Sub(meta.createdAt); absolute > s.cfg.AbsoluteTimeout {
		s.log.Info(ctx, "session exceeded absolute timeout",
			logger.String("user_id", userID), logger.Duration("elapsed", absolute))
		return errors.ErrSessionExpired(errors.SessionExpiredAbsolute)
	}
	if idle := now.Sub(meta.lastActivityAt); idle > s.cfg.IdleTimeout {
		s.log.Info(ctx, "session exceeded idle timeout",
			logger.String("user_id", userID), logger.Duration("elapsed", idle))
		return errors.ErrSessionExpired(errors.SessionExpiredIdle)
	}

	if err := s.store.HSet(ctx, key, map[string]string{sessionFieldLastActivity: formatMillis(now)}, 0); err != nil {
		s.log.Warn(ctx, "failed to refresh session activity", logger.String("user_id", userID), logger.Error(err))
	}
	return nil
}

// GetSessionCreatedAt returns the absolute-timeout anchor, or nil when there is no metadata.
func (s *SessionTimeoutService) GetSessionCreatedAt(ctx context.Context, userID, tokenID string) (*time.Time, error) {
	fields, err := s.store.HGetAll(ctx, sessionKey(userID, tokenID))
	if err != nil {
		return nil, errors.ErrServiceUnavailable("session store").WithCause(err)
	}
	meta, ok := parseSession(fields)
	if !ok {
		return nil, nil
	}
	return &meta.createdAt, nil
}

// SessionExpiresAt returns when a session anchored at createdAt hits the absolute timeout.
func (s *SessionTimeoutService) SessionExpiresAt(createdAt time.Time) time.Time {
	return createdAt.Add(s.cfg.AbsoluteTimeout)
}

// AbsoluteTimeout returns the configured absolute timeout.
func (s *SessionTimeoutService) AbsoluteTimeout() time.Duration {
	return s.cfg.AbsoluteTimeout
}

// DeleteSession removes one session.
func (s *SessionTimeoutService) DeleteSession(ctx context.Context, userID, tokenID string) error {
	if _, err := s.store.Del(ctx, sessionKey(userID, tokenID)); err != nil {
		return errors.ErrServiceUnavailable("session store").WithCause(err)
	}
	return nil
}

// DeleteAllSessions removes every session of userID, following scan cursors across pages.
func (s *SessionTimeoutService) DeleteAllSessions(ctx context.Context, userID string) (int, error) {
	pattern := "session:" + userID + ":*"
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := s.store.Scan(ctx, cursor, pattern, sessionScanCount)
		if err != nil {
			return deleted, errors.ErrServiceUnavailable("session store").WithCause(err)
		}
		if len(keys) > 0 {
			n, err := s.store.Del(ctx, keys...)
			if err != nil {
				return deleted, errors.ErrServiceUnavailable("session store").WithCause(err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

type sessionTimes struct {
	createdAt      time.Time
	lastActivityAt time.Time
}

func parseSession(fields map[string]string) (sessionTimes, bool) {
	created, err1 := strconv.ParseInt(fields[sessionFieldCreatedAt], 10, 64)
	last, err2 := strconv.ParseInt(fields[sessionFieldLastActivity], 10, 64)
	if err1 != nil || err2 != nil {
		return sessionTimes{}, false
	}
	return sessionTimes{createdAt: time.UnixMilli(created), lastActivityAt: time.UnixMilli(last)}, true
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
