package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/turtacn/certguard/internal/config"
	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/repository"
	domainService "github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/internal/domain/service/mocks"
	"github.com/turtacn/certguard/internal/infrastructure/crypto"
	"github.com/turtacn/certguard/internal/infrastructure/persistence/postgres"
	redisstore "github.com/turtacn/certguard/internal/infrastructure/persistence/redis"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/logger"
)

const (
	testDID      = "did:web:certification.dhis2.org"
	testPassword = "correct horse battery"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPurger remembers every purged path.
type recordingPurger struct {
	mu    sync.Mutex
	paths []string
}

func (p *recordingPurger) PurgePaths(_ context.Context, paths ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, paths...)
	return nil
}

func (p *recordingPurger) Paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

type harness struct {
	purger *recordingPurger
	clock  *fakeClock
	mr     *miniredis.Miniredis
	kv     *redisstore.KVStore
	db     *postgres.DBConnection
	audit  *mocks.MockAuditService
	mailer *mocks.MockMailer
	hasher crypto.BcryptHasher
	cipher *crypto.XChaChaCipher
	tokens domainService.TokenManager
	signer *crypto.Signer
	keys   *crypto.KeyStore
	otp    *domainService.OTPService
	log    logger.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{purger: &recordingPurger{}, clock: &fakeClock{now: t0}, log: logger.NewNoopLogger(), hasher: crypto.NewBcryptHasher(4)}

	h.mr = miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: h.mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	h.kv = redisstore.NewKVStore(client)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	// One connection serializes sqlite transactions the way row locks do on postgres.
	db, err := postgres.Open(ctx, sqlite.Open(dsn), &config.DatabaseConfig{MaxOpenConns: 1}, h.log)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(func() { _ = db.Close() })
	h.db = db

	h.audit = &mocks.MockAuditService{}
	h.audit.On("LogEvent", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.mailer = &mocks.MockMailer{}
	h.mailer.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()

	h.cipher, err = crypto.NewXChaChaCipher(strings.Repeat("ab", 32))
	require.NoError(t, err)
	h.tokens, err = crypto.NewJWTManager(crypto.JWTManagerConfig{
		AccessSecret:  strings.Repeat("a", 32),
		RefreshSecret: strings.Repeat("r", 32),
		Issuer:        "certguard",
		Audience:      "certguard-api",
		Now:           h.clock.Now,
	})
	require.NoError(t, err)

	h.keys, err = crypto.OpenKeyStore(crypto.KeyStoreOptions{Dir: t.TempDir(), AutoGenerate: true, Now: h.clock.Now})
	require.NoError(t, err)
	h.signer, err = crypto.NewLocalSigner(ctx, h.keys, crypto.SignerOptions{IssuerDID: testDID, Now: h.clock.Now})
	require.NoError(t, err)

	h.otp = domainService.NewOTPService(h.kv, h.cipher, domainService.OTPConfig{
		Issuer:          "DHIS2 Certification",
		MaxFailures:     constants.OTPMaxFailuresDefault,
		LockoutDuration: 15 * time.Minute,
		Now:             h.clock.Now,
	}, h.log)
	return h
}

func (h *harness) authService(t *testing.T) AuthAppService {
	t.Helper()
	svc, err := NewAuthAppService(AuthDependencies{
		Users:  postgres.NewUserRepository(h.db, h.log),
		Hasher: h.hasher,
		Tokens: h.tokens,
		Blacklist: domainService.NewTokenBlacklistService(h.kv, domainService.BlacklistConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			FallbackMode:     constants.FallbackFailClosed,
			LocalMaxSize:     100,
			MaxEntryTTL:      time.Hour,
			TrackingTTL:      24 * time.Hour,
			Now:              h.clock.Now,
		}, h.log, nil),
		Refreshes: domainService.NewRefreshTokenStore(h.kv, h.tokens.RefreshTokenTTL(), h.log),
		Sessions: domainService.NewSessionTimeoutService(h.kv, domainService.SessionConfig{
			IdleTimeout:     30 * time.Minute,
			AbsoluteTimeout: 12 * time.Hour,
			TTL:             h.tokens.RefreshTokenTTL(),
			Now:             h.clock.Now,
		}, h.log),
		Lockout: domainService.NewPasswordLockoutService(h.kv, domainService.LockoutConfig{
			MaxAttempts: 5,
			Window:      15 * time.Minute,
			Duration:    15 * time.Minute,
		}, h.log),
		OTP:    h.otp,
		Audit:  h.audit,
		Mailer: h.mailer,
		Now:    h.clock.Now,
		Logger: h.log,
	})
	require.NoError(t, err)
	return svc
}

func (h *harness) createUser(t *testing.T, email string) *models.User {
	t.Helper()
	hash, err := h.hasher.Hash(testPassword)
	require.NoError(t, err)
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Ama",
		Role:         models.RoleAssessor,
		IsActive:     true,
	}
	require.NoError(t, postgres.NewUserRepository(h.db, h.log).Create(context.Background(), u))
	return u
}

func (h *harness) certificateService(t *testing.T) *CertificateAppService {
	t.Helper()
	return h.certificateServiceOver(t, postgres.NewCertificateRepository(h.db, h.log))
}

func (h *harness) certificateServiceOver(t *testing.T, certs repository.CertificateRepository) *CertificateAppService {
	t.Helper()
	canon := crypto.NewJCSCanonicalizer()
	issuer := domainService.IssuerProfile{DID: testDID, Name: "DHIS2 Certification", BaseURL: "https://certification.dhis2.org"}
	statuses := domainService.NewStatusListService(certs, h.signer, canon, issuer, h.clock.Now, h.log)
	return NewCertificateAppService(CertificateDependencies{
		Certificates: certs,
		Credentials:  domainService.NewCredentialService(h.signer, canon, issuer, statuses, h.log),
		StatusLists:  statuses,
		Cache:        domainService.NewStatusListCacheService(h.kv, 5*time.Minute, h.log, nil),
		Purger:       h.purger,
		Audit:        h.audit,
		Now:          h.clock.Now,
		Logger:       h.log,
	})
}

func (h *harness) seedSubmission(t *testing.T, status models.SubmissionStatus, score float64) *models.Submission {
	t.Helper()
	sub := &models.Submission{
		ID:                 uuid.NewString(),
		ImplementationID:   uuid.NewString(),
		ImplementationName: "Sierra Leone HMIS",
		ImplementationURL:  "https://hmis.example.org",
		ControlGroup:       models.ControlGroupL1,
		Status:             status,
		FinalScore:         score,
	}
	require.NoError(t, sub.SetCategoryScores([]models.CategoryScore{{Name: "Access Control", Score: 88.4}}))
	require.NoError(t, postgres.NewSubmissionRepository(h.db, h.log).Create(context.Background(), sub))
	return sub
}
