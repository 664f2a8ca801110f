package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

func refreshActiveKey(id string) string      { return "refresh:active:" + id }
func refreshInvalidatedKey(id string) string { return "refresh:invalidated:" + id }
func refreshUserKey(userID string) string    { return "refresh:user:" + userID }

// RefreshTokenStore tracks the one active logical id of every issued refresh token.
// Ids are invalidated on rotation and kept as tombstones so that reuse can be detected.
type RefreshTokenStore struct {
	store KVStore
	ttl   time.Duration
	log   logger.Logger
}

// NewRefreshTokenStore creates the store. ttl is the refresh token lifetime.
func NewRefreshTokenStore(store KVStore, ttl time.Duration, log logger.Logger) *RefreshTokenStore {
	return &RefreshTokenStore{store: store, ttl: ttl, log: log.WithComponent("RefreshTokenStore")}
}

// Register marks tokenID active for userID.
func (s *RefreshTokenStore) Register(ctx context.Context, userID, tokenID string) error {
	if err := s.store.Set(ctx, refreshActiveKey(tokenID), userID, s.ttl); err != nil {
		return errors.ErrServiceUnavailable("refresh token store").WithCause(err)
	}
	if err := s.store.SAdd(ctx, refreshUserKey(userID), s.ttl, tokenID); err != nil {
		return errors.ErrServiceUnavailable("refresh token store").WithCause(err)
	}
	return nil
}

// Validate checks that tokenID is active and owned by userID. An id that was already
// invalidated yields an InvalidatedRefreshToken error; an unknown id is unauthorized.
func (s *RefreshTokenStore) Validate(ctx context.Context, userID, tokenID string) error {
	owner, err := s.store.Get(ctx, refreshActiveKey(tokenID))
	switch {
	case err == nil:
		if owner != userID {
			return errors.ErrUnauthorized("refresh token owner mismatch")
		}
		return nil
	case !stderrors.Is(err, ErrKeyNotFound):
		return errors.ErrServiceUnavailable("refresh token store").WithCause(err)
	}

	reused, err := s.store.Exists(ctx, refreshInvalidatedKey(tokenID))
	if err != nil {
		return errors.ErrServiceUnavailable("refresh token store").WithCause(err)
	}
	if reused {
		return errors.ErrInvalidatedRefreshToken(tokenID)
	}
	return errors.ErrUnauthorized("refresh token not found")
}

// Invalidate retires tokenID, leaving a tombstone for reuse detection. Deleting the active key
// is the claim: when two callers race on one id only the caller whose delete removed the key
// succeeds, the others get an InvalidatedRefreshToken error.
func (s *RefreshTokenStore) Invalidate(ctx context.Context, userID, tokenID string) error {
	claimed, err := s.retire(ctx, userID, tokenID)
	if err != nil {
		return err
	}
	if !claimed {
		return errors.ErrInvalidatedRefreshToken(tokenID)
	}
	return nil
}

func (s *RefreshTokenStore) retire(ctx context.Context, userID, tokenID string) (bool, error) {
	if err := s.store.Set(ctx, refreshInvalidatedKey(tokenID), userID, s.ttl); err != nil {
		return false, errors.ErrServiceUnavailable("refresh token store").WithCause(err)
	}
	n, err := s.store.Del(ctx, refreshActiveKey(tokenID))
	if err != nil {
		return false, errors.ErrServiceUnavailable("refresh token store").WithCause(err)
	}
	if err := s.store.SRem(ctx, refreshUserKey(userID), tokenID); err != nil {
		s.log.Warn(ctx, "failed to untrack refresh token", logger.String("user_id", userID), logger.Error(err))
	}
	return n > 0, nil
}

// Remove drops tokenID without a tombstone. A later presentation is an unknown token, not a reuse.
func (s *RefreshTokenStore) Remove(ctx context.Context, userID, tokenID string) error {
	if _, err := s.store.Del(ctx, refreshActiveKey(tokenID)); err != nil {
		return errors.ErrServiceUnavailable("refresh token store").WithCause(err)
	}
	if err := s.store.SRem(ctx, refreshUserKey(userID), tokenID); err != nil {
		s.log.Warn(ctx, "failed to untrack refresh token", logger.String("user_id", userID), logger.Error(err))
	}
	return nil
}

// InvalidateAll retires every active refresh token of userID and returns their ids.
func (s *RefreshTokenStore) InvalidateAll(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.store.SMembers(ctx, refreshUserKey(userID))
	if err != nil {
		return nil, errors.ErrServiceUnavailable("refresh token store").WithCause(err)
	}
	for _, id := range ids {
		if _, err := s.retire(ctx, userID, id); err != nil {
			return nil, err
		}
	}
	if _, err := s.store.Del(ctx, refreshUserKey(userID)); err != nil {
		s.log.Warn(ctx, "failed to drop refresh token set", logger.String("user_id", userID), logger.Error(err))
	}
	return ids, nil
}
