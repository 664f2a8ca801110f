package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

func statusListCacheKey(year int) string   { return "status-list:" + strconv.Itoa(year) }
func statusListVersionKey(year int) string { return "status-list:version:" + strconv.Itoa(year) }

// StatusListCacheService caches signed status list credentials per year with an ETag.
// StatusListCacheService 按年份缓存已签名的状态列表凭证及其 ETag。
type StatusListCacheService struct {
	store   KVStore
	ttl     time.Duration
	log     logger.Logger
	metrics Metrics
}

func NewStatusListCacheService(store KVStore, ttl time.Duration, log logger.Logger, metrics Metrics) *StatusListCacheService {
	if ttl <= 0 {
		ttl = constants.StatusListCacheTTLDefault
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	return &StatusListCacheService{store: store, ttl: ttl, log: log.WithComponent("StatusListCacheService"), metrics: metrics}
}

// TTL returns the cache lifetime, also used for Cache-Control.
func (s *StatusListCacheService) TTL() time.Duration { return s.ttl }

// ComputeETag returns the first 16 hex chars of sha256 over the serialized credential.
func ComputeETag(vc *models.VerifiableCredential) (string, error) {
	b, err := json.Marshal(vc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16], nil
}

// Get returns the cached list of year, or nil on a miss. Read errors count as a miss.
func (s *StatusListCacheService) Get(ctx context.Context, year int) (*models.CachedStatusList, error) {
	raw, err := s.store.Get(ctx, statusListCacheKey(year))
	if err != nil {
		if !stderrors.Is(err, ErrKeyNotFound) {
			s.log.Warn(ctx, "status list cache read failed", logger.Int("year", year), logger.Error(err))
		}
		s.metrics.RecordCacheAccess("status_list", false)
		return nil, nil
	}
	var cached models.CachedStatusList
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		s.log.Warn(ctx, "discarding corrupt status list cache entry", logger.Int("year", year), logger.Error(err))
		s.metrics.RecordCacheAccess("status_list", false)
		return nil, nil
	}
	s.metrics.RecordCacheAccess("status_list", true)
	return &cached, nil
}

// Set stores vc for year. version is the Version read before vc was generated; when an
// invalidation bumped it in the meantime the entry is not kept, so a list generated before a
// revocation is never served after it.
func (s *StatusListCacheService) Set(ctx context.Context, year int, vc *models.VerifiableCredential, version int64) (*models.CachedStatusList, error) {
	etag, err := ComputeETag(vc)
	if err != nil {
		return nil, errors.ErrInternal("failed to compute etag").WithCause(err)
	}
	cached := &models.CachedStatusList{Credential: vc, ETag: etag, Version: version}
	if s.Version(ctx, year) != version {
		s.log.Debug(ctx, "status list changed during generation, not caching", logger.Int("year", year))
		return cached, nil
	}
	b, err := json.Marshal(cached)
	if err != nil {
		return nil, errors.ErrInternal("failed to encode status list").WithCause(err)
	}
	if err := s.store.Set(ctx, statusListCacheKey(year), string(b), s.ttl); err != nil {
		s.log.Warn(ctx, "status list cache write failed", logger.Int("year", year), logger.Error(err))
		return cached, nil
	}
	// Invalidate bumps before it deletes, so a bump that raced the write is visible here.
	if s.Version(ctx, year) != version {
		if _, err := s.store.Del(ctx, statusListCacheKey(year)); err != nil {
			s.log.Warn(ctx, "status list cache delete failed", logger.Int("year", year), logger.Error(err))
		}
	}
	return cached, nil
}

// ValidateETag reports whether clientETag matches the cached ETag of year. Quotes and a weak
// "W/" prefix are ignored.
func (s *StatusListCacheService) ValidateETag(ctx context.Context, year int, clientETag string) bool {
	if clientETag == "" {
		return false
	}
	cached, _ := s.Get(ctx, year)
	if cached == nil {
		return false
	}
	return NormalizeETag(clientETag) == cached.ETag
}

// NormalizeETag strips a weak prefix and surrounding quotes.
func NormalizeETag(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}

// Invalidate bumps the version of year and drops its cached list. Failures are logged only, so a
// revocation is never blocked by the cache.
func (s *StatusListCacheService) Invalidate(ctx context.Context, year int) {
	if _, err := s.store.Incr(ctx, statusListVersionKey(year)); err != nil {
		s.log.Warn(ctx, "status list version bump failed", logger.Int("year", year), logger.Error(err))
	}
	if _, err := s.store.Del(ctx, statusListCacheKey(year)); err != nil {
		s.log.Warn(ctx, "status list cache delete failed", logger.Int("year", year), logger.Error(err))
	}
}

// InvalidateAll invalidates the window from two years before now through one year after.
func (s *StatusListCacheService) InvalidateAll(ctx context.Context, now time.Time) {
	current := now.Year()
	for year := current - 2; year <= current+1; year++ {
		s.Invalidate(ctx, year)
	}
}

// Version returns the invalidation counter of year, 0 when unknown.
func (s *StatusListCacheService) Version(ctx context.Context, year int) int64 {
	raw, err := s.store.Get(ctx, statusListVersionKey(year))
	if err != nil {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
