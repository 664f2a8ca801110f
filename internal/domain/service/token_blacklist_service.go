package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

const (
	blacklistJTIPrefix  = "blacklist:jti:"
	blacklistUserPrefix = "blacklist:user:"
)

func blacklistJTIKey(jti string) string     { return blacklistJTIPrefix + jti }
func blacklistUserKey(userID string) string { return blacklistUserPrefix + userID + ":tokens" }

// BlacklistConfig configures TokenBlacklistService.
type BlacklistConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	FallbackMode     constants.FallbackMode
	LocalMaxSize     int
	// MaxEntryTTL bounds how long a local entry may live; the access token lifetime.
	MaxEntryTTL time.Duration
	// TrackingTTL is the lifetime of the per-user set of issued access tokens.
	TrackingTTL time.Duration
	Now         Clock
}

type localEntry struct {
	userID    string
	expiresAt time.Time
}

// TokenBlacklistService revokes access tokens by jti. Writes go to a bounded local cache and then
// must reach the durable store; the store is guarded by a circuit breaker.
// TokenBlacklistService 通过 jti 吊销访问令牌，持久化写入受断路器保护。
type TokenBlacklistService struct {
	store   KVStore
	breaker *CircuitBreaker
	local   *expirable.LRU[string, localEntry]
	cfg     BlacklistConfig
	now     Clock
	log     logger.Logger
	metrics Metrics
}

// NewTokenBlacklistService creates the service. The local cache evicts the oldest insertion once
// LocalMaxSize is exceeded.
func NewTokenBlacklistService(store KVStore, cfg BlacklistConfig, log logger.Logger, metrics Metrics) *TokenBlacklistService {
	if cfg.LocalMaxSize <= 0 {
		cfg.LocalMaxSize = constants.BlacklistLocalMaxSizeDefault
	}
	if cfg.MaxEntryTTL <= 0 {
		cfg.MaxEntryTTL = constants.AccessTokenDefaultTTL
	}
	if cfg.TrackingTTL <= 0 {
		cfg.TrackingTTL = constants.RefreshTokenDefaultTTL
	}
	if cfg.FallbackMode == "" {
		cfg.FallbackMode = constants.FallbackFailClosed
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	log = log.WithComponent("TokenBlacklistService")

	s := &TokenBlacklistService{
		store:   store,
		local:   expirable.NewLRU[string, localEntry](cfg.LocalMaxSize, nil, cfg.MaxEntryTTL),
		cfg:     cfg,
		now:     cfg.Now.orDefault(),
		log:     log,
		metrics: metrics,
	}
	s.breaker = NewCircuitBreaker(BreakerPolicy{
		FailureThreshold: cfg.FailureThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout,
	}, func(from, to BreakerState) {
		log.Warn(context.Background(), "blacklist store circuit breaker changed state",
			logger.String("from", from.String()), logger.String("to", to.String()))
		metrics.RecordBreakerState(to.String())
	})
	s.breaker.now = s.now
	return s
}

// Blacklist revokes jti for ttl. The local cache is always updated; an error is returned when the
// durable store cannot be written, since a silently dropped revocation is a security failure.
func (s *TokenBlacklistService) Blacklist(ctx context.Context, jti, userID string, ttl time.Duration) error {
	if jti == "" {
		return errors.ErrValidation("jti is required", nil)
	}
	if ttl <= 0 {
		return nil
	}
	s.local.Add(jti, localEntry{userID: userID, expiresAt: s.now().Add(ttl)})

	err := s.breaker.Execute(func() error {
		return s.store.Set(ctx, blacklistJTIKey(jti), userID, ttl)
	})
	if err != nil {
		s.log.Error(ctx, "failed to persist token revocation", err,
			logger.String("jti", jti), logger.String("user_id", userID))
		return errors.ErrServiceUnavailable("token blacklist").WithCause(err)
	}
	s.metrics.RecordTokenOperation("revoke")
	return nil
}

// IsBlacklisted reports whether jti is revoked. When the durable store is unreachable the
// configured fallback mode decides.
func (s *TokenBlacklistService) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if e, ok := s.local.Peek(jti); ok {
		if s.now().Before(e.expiresAt) {
			s.metrics.RecordCacheAccess("blacklist_local", true)
			return true, nil
		}
		s.local.Remove(jti)
	}
	s.metrics.RecordCacheAccess("blacklist_local", false)

	var found bool
	err := s.breaker.Execute(func() error {
		var err error
		found, err = s.store.Exists(ctx, blacklistJTIKey(jti))
		return err
	})
	if err != nil {
		blocked := s.cfg.FallbackMode != constants.FallbackFailOpen
		s.log.Warn(ctx, "blacklist store unavailable, applying fallback mode",
			logger.String("jti", jti),
			logger.String("fallback_mode", string(s.cfg.FallbackMode)),
			logger.Error(err))
		return blocked, nil
	}
	return found, nil
}

// TrackToken records jti as issued to userID for bulk revocation. Failures are logged only.
func (s *TokenBlacklistService) TrackToken(ctx context.Context, userID, jti string) {
	if err := s.store.SAdd(ctx, blacklistUserKey(userID), s.cfg.TrackingTTL, jti); err != nil {
		s.log.Warn(ctx, "failed to track access token", logger.String("user_id", userID), logger.Error(err))
	}
}

// GetTrackedTokens returns every tracked jti of userID.
func (s *TokenBlacklistService) GetTrackedTokens(ctx context.Context, userID string) ([]string, error) {
	return s.store.SMembers(ctx, blacklistUserKey(userID))
}

// ClearTrackedTokens drops the tracking set of userID. Failures are logged only.
func (s *TokenBlacklistService) ClearTrackedTokens(ctx context.Context, userID string) {
	if _, err := s.store.Del(ctx, blacklistUserKey(userID)); err != nil {
		s.log.Warn(ctx, "failed to clear tracked tokens", logger.String("user_id", userID), logger.Error(err))
	}
}

// BlacklistAllForUser revokes every tracked access token of userID and returns how many were revoked.
// Every token is attempted; the first persistence error is returned.
func (s *TokenBlacklistService) BlacklistAllForUser(ctx context.Context, userID string, ttl time.Duration) (int, error) {
	jtis, err := s.GetTrackedTokens(ctx, userID)
	if err != nil {
		return 0, errors.ErrServiceUnavailable("token blacklist").WithCause(err)
	}
	var firstErr error
	revoked := 0
	for _, jti := range jtis {
		if err := s.Blacklist(ctx, jti, userID, ttl); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		revoked++
	}
	if firstErr != nil {
		return revoked, fmt.Errorf("revoked %d of %d tokens: %w", revoked, len(jtis), firstErr)
	}
	s.ClearTrackedTokens(ctx, userID)
	s.log.Info(ctx, "revoked all access tokens for user",
		logger.String("user_id", userID), logger.Int("count", revoked))
	return revoked, nil
}

// Sweep removes expired local entries and returns how many were removed.
func (s *TokenBlacklistService) Sweep() int {
	now := s.now()
	removed := 0
	for _, jti := range s.local.Keys() {
		if e, ok := s.local.Peek(jti); ok && !now.Before(e.expiresAt) {
			s.local.Remove(jti)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps the local cache every interval until ctx is done.
func (s *TokenBlacklistService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = constants.BlacklistSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Debug(ctx, "swept expired local blacklist entries", logger.Int("removed", n))
			}
		}
	}
}

// LocalSize returns the number of local cache entries.
func (s *TokenBlacklistService) LocalSize() int {
	return s.local.Len()
}

// BreakerStatus exposes the breaker state for health reporting.
func (s *TokenBlacklistService) BreakerStatus() BreakerStatus {
	return s.breaker.Status()
}
