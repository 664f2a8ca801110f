package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/turtacn/certguard/internal/domain/models"
)

// ErrKeyNotFound is returned by KVStore.Get for a missing key.
var ErrKeyNotFound = errors.New("kv: key not found")

//go:generate mockery --name KVStore --output mocks --outpkg mocks
// KVStore is the key-value capability used for counters, session hashes and blacklist sets.
// For Set and SetNX a ttl of zero means no expiry; for HSet and SAdd it leaves the current expiry untouched.
// KVStore 是用于计数器、会话哈希和黑名单集合的键值存储能力。
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	// Scan returns one page of keys matching pattern and the cursor of the next page (0 when done).
	Scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error)
	Ping(ctx context.Context) error
}

//go:generate mockery --name SigningService --output mocks --outpkg mocks
// SigningService produces and verifies Data Integrity proofs with the active Ed25519 key.
// Both the local key store and the vault transit engine implement it.
// SigningService 使用当前 Ed25519 密钥生成并验证数据完整性证明。
type SigningService interface {
	// Sign returns the raw Ed25519 signature of data (the 64-byte proof hash).
	Sign(ctx context.Context, data []byte) ([]byte, error)

	// PublicKey returns the active public key.
	PublicKey(ctx context.Context) (ed25519.PublicKey, error)

	// PublicKeyMultibase returns "z" + base58(0xed01 || publicKey).
	PublicKeyMultibase(ctx context.Context) (string, error)

	// VerificationKeys returns every known public key, archived versions included, by version.
	VerificationKeys(ctx context.Context) (map[int]ed25519.PublicKey, error)

	// KeyVersion returns the version of the active key.
	KeyVersion() int

	// VerificationMethod returns the DID URL of the active key.
	VerificationMethod() string

	// CreateDataIntegrityProof signs an already canonicalized document.
	CreateDataIntegrityProof(ctx context.Context, canonicalDocument []byte) (*models.DataIntegrityProof, error)

	// VerifyDataIntegrityProof checks proof over canonicalDocument. It returns false with an error
	// when the key named by the proof is not available.
	VerifyDataIntegrityProof(ctx context.Context, canonicalDocument []byte, proof *models.DataIntegrityProof) (bool, error)

	// DIDDocument publishes every key version as a Multikey verification method.
	DIDDocument(ctx context.Context) (*models.DIDDocument, error)
}

// Canonicalizer turns a JSON-serializable value into canonical bytes.
type Canonicalizer interface {
	Canonicalize(v interface{}) ([]byte, error)
}

//go:generate mockery --name AuditService --output mocks --outpkg mocks
// AuditService defines the interface for logging security-sensitive audit events.
// AuditService 定义了用于记录安全敏感审计事件的接口。
type AuditService interface {
	// LogEvent records an audit event.
	// LogEvent 记录审计事件。
	LogEvent(ctx context.Context, event models.AuditEvent) error
}

// NotificationKind names a mail template.
type NotificationKind string

const (
	NotifyAccountLocked   NotificationKind = "account_locked"
	NotifyAccountUnlocked NotificationKind = "account_unlocked"
	NotifyTFAEnabled      NotificationKind = "tfa_enabled"
	NotifyTFADisabled     NotificationKind = "tfa_disabled"
	NotifyWelcome         NotificationKind = "welcome"
	NotifyPasswordReset   NotificationKind = "password_reset"
	NotifyPasswordChanged NotificationKind = "password_changed"
)

// Notification is one outgoing mail.
type Notification struct {
	Kind NotificationKind
	To   string
	Data map[string]string
}

//go:generate mockery --name Mailer --output mocks --outpkg mocks
// Mailer sends notifications. Callers log failures and never block on them.
type Mailer interface {
	Notify(ctx context.Context, n Notification) error
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

//go:generate mockery --name TokenManager --output mocks --outpkg mocks
// TokenManager issues and parses signed access and refresh tokens.
type TokenManager interface {
	IssueAccessToken(user *models.User, jti string, now time.Time) (string, time.Time, error)
	IssueRefreshToken(userID, refreshTokenID string, now time.Time) (string, time.Time, error)
	ParseAccessToken(token string) (*models.AccessClaims, error)
	ParseRefreshToken(token string) (*models.RefreshClaims, error)
	AccessTokenTTL() time.Duration
	RefreshTokenTTL() time.Duration
}

// SecretCipher encrypts small secrets (TOTP seeds) at rest.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// KeyLifecycle reports and advances the versions of the signing key. The local key store and the
// vault transit engine both implement it.
type KeyLifecycle interface {
	// Backend names the key backend ("local", "vault").
	Backend() string
	Metadata(ctx context.Context) (*models.KeyMetadata, error)
	// Rotate creates version N+1 and makes it active. Older versions stay available for verification.
	Rotate(ctx context.Context) (models.KeyVersion, error)
}

// CachePurger drops public documents from the edge cache in front of the service. Paths are
// request paths such as "/status-list/2026".
type CachePurger interface {
	PurgePaths(ctx context.Context, paths ...string) error
}
