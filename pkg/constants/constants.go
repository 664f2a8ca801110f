// Package constants defines system-wide constants for the certguard service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Token Constants
// ================================================================================

// TokenType represents the type of authentication token
type TokenType string

const (
	// TokenTypeAccess represents a short-lived access token
	TokenTypeAccess TokenType = "access"

	// TokenTypeRefresh represents a long-lived refresh token
	TokenTypeRefresh TokenType = "refresh"

	// TokenTypeBearer is the scheme used in the HTTP Authorization header
	TokenTypeBearer TokenType = "Bearer"
)

const (
	// AccessTokenDefaultTTL is the default lifetime for access tokens (15 minutes)
	AccessTokenDefaultTTL = 15 * time.Minute

	// RefreshTokenDefaultTTL is the default lifetime for refresh tokens (7 days)
	RefreshTokenDefaultTTL = 7 * 24 * time.Hour
)

// ================================================================================
// Session & Lockout Constants
// ================================================================================

const (
	// SessionIdleTimeoutDefault is the default idle timeout (30 minutes)
	SessionIdleTimeoutDefault = 30 * time.Minute

	// SessionAbsoluteTimeoutDefault is the default absolute session lifetime (12 hours)
	SessionAbsoluteTimeoutDefault = 12 * time.Hour

	// LockoutMaxAttemptsDefault is the number of failed sign-ins before the account is locked
	LockoutMaxAttemptsDefault = 5

	// LockoutWindowDefault is the window over which failed sign-ins are counted
	LockoutWindowDefault = 15 * time.Minute

	// LockoutDurationDefault is how long a locked account stays locked
	LockoutDurationDefault = 15 * time.Minute
)

// ================================================================================
// OTP Constants
// ================================================================================

const (
	// TOTPPeriod is the TOTP time step
	TOTPPeriod = 30 * time.Second

	// TOTPSkew is the number of time steps accepted on either side of now
	TOTPSkew = 1

	// TOTPDigits is the length of a TOTP code
	TOTPDigits = 6

	// OTPMaxFailuresDefault is the number of bad codes before OTP verification is locked
	OTPMaxFailuresDefault = 5

	// OTPLockoutDefault is how long OTP verification stays locked
	OTPLockoutDefault = 15 * time.Minute

	// RecoveryCodeCount is the number of recovery codes issued when 2FA is enabled
	RecoveryCodeCount = 10

	// RecoveryCodeBytes is the random size of one recovery code (8 hex chars)
	RecoveryCodeBytes = 4
)

// ================================================================================
// Blacklist Constants
// ================================================================================

// FallbackMode is the policy applied when the durable blacklist store is unreachable
type FallbackMode string

const (
	// FallbackFailClosed treats unknown tokens as blacklisted
	FallbackFailClosed FallbackMode = "FAIL_CLOSED"

	// FallbackFailOpen treats unknown tokens as valid
	FallbackFailOpen FallbackMode = "FAIL_OPEN"
)

const (
	BlacklistFailureThresholdDefault = 5
	BlacklistRecoveryTimeoutDefault  = 30 * time.Second
	BlacklistLocalMaxSizeDefault     = 10000
	BlacklistSweepInterval           = time.Minute
)

// ================================================================================
// Credential Constants
// ================================================================================

const (
	// ContextW3CCredentialsV2 is the W3C Verifiable Credentials v2 JSON-LD context
	ContextW3CCredentialsV2 = "https://www.w3.org/ns/credentials/v2"

	// ContextOpenBadgesV3 is the Open Badges 3.0 JSON-LD context
	ContextOpenBadgesV3 = "https://purl.imsglobal.org/spec/ob/v3p0/context-3.0.3.json"

	// ProofTypeDataIntegrity is the proof type for Data Integrity proofs
	ProofTypeDataIntegrity = "DataIntegrityProof"

	// CryptosuiteEdDSARDFC2022 is the Ed25519 Data Integrity cryptosuite
	CryptosuiteEdDSARDFC2022 = "eddsa-rdfc-2022"

	// ProofPurposeAssertion is the proof purpose for issued credentials
	ProofPurposeAssertion = "assertionMethod"

	// StatusPurposeRevocation is the only status purpose published
	StatusPurposeRevocation = "revocation"

	// StatusListMinBits is the minimum bitstring length (16KB), which provides herd privacy
	StatusListMinBits = 131072

	// StatusListMaxEntries bounds the index space of one yearly list
	StatusListMaxEntries = 1 << 20

	// StatusListCacheTTLDefault is the default TTL of a cached status list credential
	StatusListCacheTTLDefault = 5 * time.Minute

	// CredentialValidityDefault is the validity period of an issued certificate
	CredentialValidityDefault = 365 * 24 * time.Hour

	// MediaTypeVCLDJSON is the content type of credential documents
	MediaTypeVCLDJSON = "application/vc+ld+json"

	// MediaTypeDIDLDJSON is the content type of the DID document
	MediaTypeDIDLDJSON = "application/did+ld+json"

	// ContextDIDV1 is the DID core JSON-LD context
	ContextDIDV1 = "https://www.w3.org/ns/did/v1"

	// ContextMultikeyV1 is the Multikey verification method context
	ContextMultikeyV1 = "https://w3id.org/security/multikey/v1"

	// VerificationMethodMultikey is the type of published verification methods
	VerificationMethodMultikey = "Multikey"
)

// Ed25519 multicodec prefix (0xed 0x01) used in publicKeyMultibase.
var Ed25519MulticodecPrefix = []byte{0xed, 0x01}

// ================================================================================
// Key Rotation Constants
// ================================================================================

// RotationStatus reports the health of the active signing key
type RotationStatus string

const (
	RotationHealthy  RotationStatus = "HEALTHY"
	RotationWarning  RotationStatus = "WARNING"
	RotationCritical RotationStatus = "CRITICAL"
	RotationUnknown  RotationStatus = "UNKNOWN"
)

const (
	KeyMaxAgeDaysDefault           = 365
	KeyWarningThresholdDaysDefault = 30
)

// ================================================================================
// Error Code Constants
// ================================================================================

// ErrorCode represents a machine-readable error code returned to clients
type ErrorCode string

const (
	ErrCodeUnauthorized            ErrorCode = "unauthorized"
	ErrCodeSessionExpired          ErrorCode = "session_expired"
	ErrCodeInvalidatedRefreshToken ErrorCode = "invalidated_refresh_token"
	ErrCodeForbidden               ErrorCode = "forbidden"
	ErrCodeConflict                ErrorCode = "conflict"
	ErrCodeNotFound                ErrorCode = "not_found"
	ErrCodeValidation              ErrorCode = "validation_error"
	ErrCodeRateLimitExceeded       ErrorCode = "rate_limit_exceeded"
	ErrCodeInternal                ErrorCode = "internal_error"
	ErrCodeServiceUnavailable      ErrorCode = "service_unavailable"
	ErrCodeSigningFailed           ErrorCode = "signing_failed"
	ErrCodeVerificationFailed      ErrorCode = "verification_failed"
)

// ================================================================================
// Audit Event Constants
// ================================================================================

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	AuditSignInSuccess      AuditEventType = "auth.sign_in.success"
	AuditSignInFailure      AuditEventType = "auth.sign_in.failure"
	AuditSignOut            AuditEventType = "auth.sign_out"
	AuditSignOutAll         AuditEventType = "auth.sign_out_all"
	AuditTokenRefresh       AuditEventType = "auth.token.refresh"
	AuditRefreshTokenTheft  AuditEventType = "auth.token.theft_detected"
	AuditPasswordChanged    AuditEventType = "auth.password.changed"
	AuditAccountLocked      AuditEventType = "auth.account.locked"
	AuditAccountUnlocked    AuditEventType = "auth.account.unlocked"
	AuditTFAEnabled         AuditEventType = "auth.2fa.enabled"
	AuditTFADisabled        AuditEventType = "auth.2fa.disabled"
	AuditCertificateIssued  AuditEventType = "certificate.issued"
	AuditCertificateRevoked AuditEventType = "certificate.revoked"
	AuditSigningKeyRotated  AuditEventType = "signing_key.rotated"
)

// ================================================================================
// Logging & Context Constants
// ================================================================================

// LogLevel represents the minimum level emitted by the logger
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ContextKey represents keys used in context.Context
type ContextKey string

const (
	// ContextKeyRequestID is the key for request ID in context
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID is the key for distributed trace ID in context
	ContextKeyTraceID ContextKey = "trace_id"

	// ContextKeyUserID is the key for the authenticated user ID in context
	ContextKeyUserID ContextKey = "user_id"

	// ContextKeyClientIP is the key for the client IP address in context
	ContextKeyClientIP ContextKey = "client_ip"

	// ContextKeyClaims is the key for the verified access token claims in the gin context
	ContextKeyClaims ContextKey = "claims"
)

// ServiceName is reported in logs, traces and the DID document
const ServiceName = "certguard"

// HTTP headers
const (
	HeaderRequestID          = "X-Request-ID"
	HeaderIdempotencyKey     = "Idempotency-Key"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRetryAfter         = "Retry-After"
)

// Rate limit scopes. Each scope is a separate budget.
const (
	RateLimitScopeAuth   = "auth"
	RateLimitScopeVerify = "verify"
)

// IdempotencyKeyTTL is how long an Idempotency-Key stays claimed
const IdempotencyKeyTTL = 24 * time.Hour

// Public document paths. They are cacheable and purged from the CDN when they change.
const (
	PathDIDDocument      = "/.well-known/did.json"
	PathStatusListPrefix = "/status-list/"
)
