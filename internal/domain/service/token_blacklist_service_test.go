package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

func newBlacklist(t *testing.T, mode constants.FallbackMode, clock *fakeClock) (*service.TokenBlacklistService, func(string)) {
	kv, mr := newKV(t)
	svc := service.NewTokenBlacklistService(kv, service.BlacklistConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
		FallbackMode:     mode,
		LocalMaxSize:     3,
		MaxEntryTTL:      time.Hour,
		Now:              clock.Now,
	}, logger.NewNoopLogger(), nil)
	return svc, mr.SetError
}

func TestBlacklistPersistsAndReads(t *testing.T) {
	ctx := context.Background()
	svc, _ := newBlacklist(t, constants.FallbackFailClosed, newFakeClock())

	require.NoError(t, svc.Blacklist(ctx, "jti-1", "user-1", time.Minute))

	revoked, err := svc.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = svc.IsBlacklisted(ctx, "jti-unknown")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestBlacklistZeroTTLIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, _ := newBlacklist(t, constants.FallbackFailClosed, newFakeClock())

	require.NoError(t, svc.Blacklist(ctx, "jti-1", "user-1", 0))
	assert.Equal(t, 0, svc.LocalSize())
}

func TestBlacklistWriteFailurePropagates(t *testing.T) {
	ctx := context.Background()
	svc, setError := newBlacklist(t, constants.FallbackFailClosed, newFakeClock())
	setError("ERR down")

	err := svc.Blacklist(ctx, "jti-1", "user-1", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.IsServiceUnavailableError(err))

	// The local cache still knows the token.
	revoked, err := svc.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestBlacklistFallbackModes(t *testing.T) {
	ctx := context.Background()

	closed, setClosedErr := newBlacklist(t, constants.FallbackFailClosed, newFakeClock())
	setClosedErr("ERR down")
	revoked, err := closed.IsBlacklisted(ctx, "jti-x")
	require.NoError(t, err)
	assert.True(t, revoked, "fail closed treats unknown tokens as revoked")

	open, setOpenErr := newBlacklist(t, constants.FallbackFailOpen, newFakeClock())
	setOpenErr("ERR down")
	revoked, err = open.IsBlacklisted(ctx, "jti-x")
	require.NoError(t, err)
	assert.False(t, revoked, "fail open treats unknown tokens as valid")
}

func TestBlacklistBreakerOpensAndRecovers(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, setError := newBlacklist(t, constants.FallbackFailClosed, clock)

	setError("ERR down")
	_, _ = svc.IsBlacklisted(ctx, "a")
	_, _ = svc.IsBlacklisted(ctx, "b")
	assert.Equal(t, service.BreakerOpen, svc.BreakerStatus().State)

	setError("")
	// Open: the store is not consulted even though it is back.
	err := svc.Blacklist(ctx, "jti-1", "user-1", time.Minute)
	require.Error(t, err)

	clock.Advance(31 * time.Second)
	require.NoError(t, svc.Blacklist(ctx, "jti-2", "user-1", time.Minute))
	assert.Equal(t, service.BreakerClosed, svc.BreakerStatus().State)
}

func TestBlacklistLocalCacheIsBounded(t *testing.T) {
	ctx := context.Background()
	svc, _ := newBlacklist(t, constants.FallbackFailClosed, newFakeClock())

	for _, jti := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, svc.Blacklist(ctx, jti, "user-1", time.Minute))
	}
	assert.Equal(t, 3, svc.LocalSize())

	// Evicted locally but still found in the durable store.
	revoked, err := svc.IsBlacklisted(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestBlacklistSweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, _ := newBlacklist(t, constants.FallbackFailClosed, clock)

	require.NoError(t, svc.Blacklist(ctx, "short", "user-1", time.Minute))
	require.NoError(t, svc.Blacklist(ctx, "long", "user-1", 10*time.Minute))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, svc.Sweep())
	assert.Equal(t, 1, svc.LocalSize())
}

func TestBlacklistAllForUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newBlacklist(t, constants.FallbackFailClosed, newFakeClock())

	svc.TrackToken(ctx, "user-1", "j1")
	svc.TrackToken(ctx, "user-1", "j2")
	tracked, err := svc.GetTrackedTokens(ctx, "user-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"j1", "j2"}, tracked)

	n, err := svc.BlacklistAllForUser(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, jti := range []string{"j1", "j2"} {
		revoked, err := svc.IsBlacklisted(ctx, jti)
		require.NoError(t, err)
		assert.True(t, revoked)
	}
	tracked, err = svc.GetTrackedTokens(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, tracked)
}

func TestTrackTokenFailureIsSwallowed(t *testing.T) {
	svc, setError := newBlacklist(t, constants.FallbackFailClosed, newFakeClock())
	setError("ERR down")
	assert.NotPanics(t, func() { svc.TrackToken(context.Background(), "user-1", "j1") })
}
