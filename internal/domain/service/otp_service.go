package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
	"github.com/turtacn/certguard/pkg/utils"
)

func otpUsedKey(userID, code string) string { return "otp:used:" + userID + ":" + code }
func otpFailuresKey(userID string) string   { return "otp:failures:" + userID }
func otpLockedKey(userID string) string     { return "otp:locked:" + userID }

// OTPConfig configures OTPService.
type OTPConfig struct {
	Issuer          string
	MaxFailures     int
	LockoutDuration time.Duration
	Now             Clock
}

// OTPEnrollment is a freshly generated TOTP secret.
type OTPEnrollment struct {
	// Secret is the base32 seed shown to the user once.
	Secret string
	// EncryptedSecret is what gets persisted on the user.
	EncryptedSecret string
	URL             string
}

// OTPService verifies TOTP codes with replay protection, tracks failures and manages
// single-use recovery codes.
// OTPService 负责 TOTP 校验（含重放保护）、失败计数以及一次性恢复码。
type OTPService struct {
	store  KVStore
	cipher SecretCipher
	cfg    OTPConfig
	now    Clock
	log    logger.Logger
}

func NewOTPService(store KVStore, cipher SecretCipher, cfg OTPConfig, log logger.Logger) *OTPService {
	return &OTPService{
		store:  store,
		cipher: cipher,
		cfg:    cfg,
		now:    cfg.Now.orDefault(),
		log:    log.WithComponent("OTPService"),
	}
}

func (s *OTPService) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(constants.TOTPPeriod / time.Second),
		Skew:      constants.TOTPSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// GenerateSecret creates a new TOTP seed for accountName.
func (s *OTPService) GenerateSecret(accountName string) (*OTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.Issuer,
		AccountName: accountName,
		Period:      uint(constants.TOTPPeriod / time.Second),
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, errors.ErrInternal("failed to generate otp secret").WithCause(err)
	}
	encrypted, err := s.cipher.Encrypt(key.Secret())
	if err != nil {
		return nil, errors.ErrInternal("failed to encrypt otp secret").WithCause(err)
	}
	return &OTPEnrollment{Secret: key.Secret(), EncryptedSecret: encrypted, URL: key.URL()}, nil
}

// VerifyCode checks code against the user's encrypted secret. A correct code that was already
// used inside its validity window is rejected. Failures count towards the OTP lockout.
func (s *OTPService) VerifyCode(ctx context.Context, userID, encryptedSecret, code string) (bool, error) {
	if !utils.IsSixDigitCode(code) {
		return false, s.RecordFailure(ctx, userID)
	}
	secret, err := s.cipher.Decrypt(encryptedSecret)
	if err != nil {
		return false, errors.ErrInternal("failed to decrypt otp secret").WithCause(err)
	}

	valid, err := totp.ValidateCustom(code, secret, s.now().UTC(), s.validateOpts())
	if err != nil || !valid {
		return false, s.RecordFailure(ctx, userID)
	}

	window := constants.TOTPPeriod * time.Duration(2*constants.TOTPSkew+1)
	fresh, err := s.store.SetNX(ctx, otpUsedKey(userID, code), "1", window)
	if err != nil {
		return false, errors.ErrServiceUnavailable("otp store").WithCause(err)
	}
	if !fresh {
		s.log.Warn(ctx, "otp code replay rejected", logger.String("user_id", userID))
		return false, s.RecordFailure(ctx, userID)
	}
	return true, nil
}

// RecordFailure counts one failed second factor attempt and locks OTP verification once
// MaxFailures is reached. Wrong recovery codes count too.
func (s *OTPService) RecordFailure(ctx context.Context, userID string) error {
	n, err := s.store.Incr(ctx, otpFailuresKey(userID))
	if err != nil {
		return errors.ErrServiceUnavailable("otp store").WithCause(err)
	}
	if n == 1 {
		if err := s.store.Expire(ctx, otpFailuresKey(userID), s.cfg.LockoutDuration); err != nil {
			s.log.Warn(ctx, "failed to set otp failure window", logger.Error(err))
		}
	}
	if int(n) >= s.cfg.MaxFailures {
		if _, err := s.store.SetNX(ctx, otpLockedKey(userID), "1", s.cfg.LockoutDuration); err != nil {
			return errors.ErrServiceUnavailable("otp store").WithCause(err)
		}
	}
	return nil
}

// IsLocked reports whether OTP verification is locked for userID.
func (s *OTPService) IsLocked(ctx context.Context, userID string) (bool, error) {
	locked, err := s.store.Exists(ctx, otpLockedKey(userID))
	if err != nil {
		return false, errors.ErrServiceUnavailable("otp store").WithCause(err)
	}
	return locked, nil
}

// ClearState drops the failure counter and lock of userID.
func (s *OTPService) ClearState(ctx context.Context, userID string) error {
	if _, err := s.store.Del(ctx, otpFailuresKey(userID), otpLockedKey(userID)); err != nil {
		return errors.ErrServiceUnavailable("otp store").WithCause(err)
	}
	return nil
}

// GenerateRecoveryCodes returns the plain codes for display and their hashes for storage.
func (s *OTPService) GenerateRecoveryCodes() (codes []string, hashes []string, err error) {
	codes = make([]string, 0, constants.RecoveryCodeCount)
	hashes = make([]string, 0, constants.RecoveryCodeCount)
	for i := 0; i < constants.RecoveryCodeCount; i++ {
		code, err := utils.RandomHex(constants.RecoveryCodeBytes)
		if err != nil {
			return nil, nil, errors.ErrInternal("failed to generate recovery code").WithCause(err)
		}
		codes = append(codes, code)
		hashes = append(hashes, HashRecoveryCode(code))
	}
	return codes, hashes, nil
}

// ConsumeRecoveryCode looks code up in hashes. On a match it returns the remaining hashes
// without the redeemed one.
func (s *OTPService) ConsumeRecoveryCode(hashes []string, code string) ([]string, bool) {
	candidate := []byte(HashRecoveryCode(code))
	for i, h := range hashes {
		if subtle.ConstantTimeCompare([]byte(h), candidate) == 1 {
			remaining := make([]string, 0, len(hashes)-1)
			remaining = append(remaining, hashes[:i]...)
			return append(remaining, hashes[i+1:]...), true
		}
	}
	return hashes, false
}

// HashRecoveryCode normalizes code (case, spaces, dashes) and returns its sha256 hex.
func HashRecoveryCode(code string) string {
	normalized := strings.NewReplacer(" ", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(code)))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
