package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/certguard/internal/application/dto"
	"github.com/turtacn/certguard/internal/domain/models"
	domainService "github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
)

func signIn(t *testing.T, svc AuthAppService, email, password string) *models.TokenPair {
	t.Helper()
	res, err := svc.SignIn(context.Background(), &dto.SignInRequest{Email: email, Password: password})
	require.NoError(t, err)
	require.Equal(t, dto.SignInStateAuthenticated, res.State)
	require.NotNil(t, res.Tokens)
	return res.Tokens
}

func TestSignIn_Success(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	u := h.createUser(t, "ama@example.org")

	pair := signIn(t, svc, " Ama@Example.org ", testPassword)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(15*60), pair.ExpiresIn)
	assert.Equal(t, t0.Add(12*time.Hour), pair.SessionExpiresAt)

	claims, err := svc.ValidateAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)

	stored, err := postgres.NewUserRepository(h.db, h.log).FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.Len(t, h.audit.EventsOf(constants.AuditSignInSuccess), 1)
}

func TestSignIn_NonEnumerable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	h.createUser(t, "ama@example.org")

	_, errUnknown := svc.SignIn(ctx, &dto.SignInRequest{Email: "ghost@example.org", Password: testPassword})
	_, errWrong := svc.SignIn(ctx, &dto.SignInRequest{Email: "ama@example.org", Password: "wrong password"})
	require.Error(t, errUnknown)
	require.Error(t, errWrong)

	statusA, bodyA := errors.ToErrorResponse(errUnknown)
	statusB, bodyB := errors.ToErrorResponse(errWrong)
	assert.Equal(t, statusA, statusB)
	assert.Equal(t, bodyA, bodyB)
	assert.Equal(t, errors.GenericAuthMessage, bodyA.ErrorDescription)

	for _, email := range []string{"ghost@example.org", "ama@example.org"} {
		attempts, err := h.mr.Get("lockout:" + email + ":attempts")
		require.NoError(t, err)
		assert.Equal(t, "1", attempts, email)
	}
}

func TestSignIn_LockoutNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	u := h.createUser(t, "ama@example.org")

	for i := 0; i < 5; i++ {
		_, err := svc.SignIn(ctx, &dto.SignInRequest{Email: u.Email, Password: "wrong password"})
		require.Error(t, err)
	}
	assert.Equal(t, 1, h.mailer.Sent(domainService.NotifyAccountLocked))
	assert.Len(t, h.audit.EventsOf(constants.AuditAccountLocked), 1)

	_, err := svc.SignIn(ctx, &dto.SignInRequest{Email: u.Email, Password: testPassword})
	assert.True(t, errors.IsUnauthorizedError(err), "locked even with the right password")

	stored, err := postgres.NewUserRepository(h.db, h.log).FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.FailedLoginAttempts)
}

func TestSignIn_Validation(t *testing.T) {
	h := newHarness(t)
	svc := h.authService(t)

	_, err := svc.SignIn(context.Background(), &dto.SignInRequest{Email: "not-an-email", Password: "x"})
	assert.True(t, errors.IsValidationError(err))
}

func enableTFA(t *testing.T, h *harness, svc AuthAppService, userID string) (secret string, recovery []string) {
	t.Helper()
	ctx := context.Background()
	setup, err := svc.Setup2FA(ctx, userID)
	require.NoError(t, err)
	assert.Contains(t, setup.URL, "otpauth://totp/")

	code, err := totp.GenerateCode(setup.Secret, h.clock.Now())
	require.NoError(t, err)
	enabled, err := svc.Enable2FA(ctx, userID, &dto.Enable2FARequest{Code: code})
	require.NoError(t, err)
	require.Len(t, enabled.RecoveryCodes, constants.RecoveryCodeCount)
	return setup.Secret, enabled.RecoveryCodes
}

func TestSignIn_TwoFactor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	u := h.createUser(t, "ama@example.org")
	secret, _ := enableTFA(t, h, svc, u.ID)
	assert.Equal(t, 1, h.mailer.Sent(domainService.NotifyTFAEnabled))

	res, err := svc.SignIn(ctx, &dto.SignInRequest{Email: u.Email, Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, dto.SignInStateTFA, res.State)
	assert.Nil(t, res.Tokens)

	// The enrollment code was consumed and cannot be replayed.
	used, err := totp.GenerateCode(secret, h.clock.Now())
	require.NoError(t, err)
	_, err = svc.SignIn(ctx, &dto.SignInRequest{Email: u.Email, Password: testPassword, TFACode: used})
	assert.True(t, errors.IsUnauthorizedError(err))

	h.clock.Advance(30 * time.Second)
	fresh, err := totp.GenerateCode(secret, h.clock.Now())
	require.NoError(t, err)
	res, err = svc.SignIn(ctx, &dto.SignInRequest{Email: u.Email, Password: testPassword, TFACode: fresh})
	require.NoError(t, err)
	assert.Equal(t, dto.SignInStateAuthenticated, res.State)
}

func TestSignIn_RecoveryCodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	u := h.createUser(t, "ama@example.org")
	_, codes := enableTFA(t, h, svc, u.ID)

	res, err := svc.SignIn(ctx, &dto.SignInRequest{Email: u.Email, Password: testPassword, RecoveryCode: codes[0]})
	require.NoError(t, err)
	assert.Equal(t, dto.SignInStateAuthenticated, res.State)

	_, err = svc.SignIn(ctx, &dto.SignInRequest{Email: u.Email, Password: testPassword, RecoveryCode: codes[0]})
	assert.True(t, errors.IsUnauthorizedError(err))

	stored, err := postgres.NewUserRepository(h.db, h.log).FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, stored.RecoveryCodeHashes(), constants.RecoveryCodeCount-1)
}

func TestSignIn_BadRecoveryCodesLockOTP(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	u := h.createUser(t, "ama@example.org")
	_, codes := enableTFA(t, h, svc, u.ID)

	for i := 0; i < constants.OTPMaxFailuresDefault; i++ {
		_, err := svc.SignIn(ctx, &dto.SignInRequest{Email: u.Email, Password: testPassword, RecoveryCode: "00000000"})
		require.True(t, errors.IsUnauthorizedError(err))
	}
	locked, err := h.otp.IsLocked(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, locked)

	_, err = svc.SignIn(ctx, &dto.SignInRequest{Email: u.Email, Password: testPassword, RecoveryCode: codes[0]})
	assert.True(t, errors.IsUnauthorizedError(err), "a locked second factor rejects even a good code")

	stored, err := postgres.NewUserRepository(h.db, h.log).FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, stored.RecoveryCodeHashes(), constants.RecoveryCodeCount, "nothing was redeemed")

	h.clock.Advance(16 * time.Minute)
	h.mr.FastForward(16 * time.Minute)
	res, err := svc.SignIn(ctx, &dto.SignInRequest{Email: u.Email, Password: testPassword, RecoveryCode: codes[0]})
	require.NoError(t, err)
	assert.Equal(t, dto.SignInStateAuthenticated, res.State)
}

func TestSignIn_ConcurrentRecoveryCodeRedeemsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	u := h.createUser(t, "ama@example.org")
	_, codes := enableTFA(t, h, svc, u.ID)

	const n = 4
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.SignIn(ctx, &dto.SignInRequest{Email: u.Email, Password: testPassword, RecoveryCode: codes[0]})
			if err == nil && res.State == dto.SignInStateAuthenticated {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	stored, err := postgres.NewUserRepository(h.db, h.log).FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, stored.RecoveryCodeHashes(), constants.RecoveryCodeCount-1)
}

func TestRefreshTokens_RotationKeepsAbsoluteAnchor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	h.createUser(t, "ama@example.org")
	first := signIn(t, svc, "ama@example.org", testPassword)

	h.clock.Advance(20 * time.Minute)
	second, err := svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, t0.Add(12*time.Hour), second.SessionExpiresAt, "absolute timeout is anchored at sign-in")

	h.clock.Advance(20 * time.Minute)
	_, err = svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: second.RefreshToken})
	require.NoError(t, err, "activity on the rotated session keeps it alive")
}

func TestRefreshTokens_ReuseTriggersTheftResponse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	h.createUser(t, "ama@example.org")
	first := signIn(t, svc, "ama@example.org", testPassword)

	second, err := svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	require.NoError(t, err)

	_, err = svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidatedRefreshTokenError(err))
	assert.Len(t, h.audit.EventsOf(constants.AuditRefreshTokenTheft), 1)

	_, err = svc.ValidateAccessToken(ctx, second.AccessToken)
	assert.True(t, errors.IsUnauthorizedError(err), "access tokens of the chain are blacklisted")
	_, err = svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: second.RefreshToken})
	assert.Error(t, err, "the thief's rotated token is dead too")
}

func TestRefreshTokens_ConcurrentRefreshOfOneToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	h.createUser(t, "ama@example.org")
	first := signIn(t, svc, "ama@example.org", testPassword)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		won  int
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: first.RefreshToken})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				won++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, won, 1, "one refresh token rotates at most once")
	require.NotEmpty(t, errs)
	for _, err := range errs {
		assert.True(t, errors.IsUnauthorizedError(err), err)
	}
	assert.NotEmpty(t, h.audit.EventsOf(constants.AuditRefreshTokenTheft), "losing the race is reuse")
}

func TestRefreshTokens_IdleTimeout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	h.createUser(t, "ama@example.org")
	pair := signIn(t, svc, "ama@example.org", testPassword)

	h.clock.Advance(30*time.Minute + time.Second)
	_, err := svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: pair.RefreshToken})
	require.Error(t, err)
	assert.True(t, errors.IsSessionExpiredError(err))
	assert.Equal(t, errors.SessionExpiredIdle, errors.SessionExpiredReason(err))

	_, err = svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: pair.RefreshToken})
	require.Error(t, err)
	assert.False(t, errors.IsInvalidatedRefreshTokenError(err), "an expired session is not a theft signal")
	assert.Empty(t, h.audit.EventsOf(constants.AuditRefreshTokenTheft))
}

func TestRefreshTokens_LockedAccountRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	u := h.createUser(t, "ama@example.org")
	pair := signIn(t, svc, u.Email, testPassword)

	require.NoError(t, postgres.NewUserRepository(h.db, h.log).SetLocked(ctx, u.ID, true))
	_, err := svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: pair.RefreshToken})
	assert.True(t, errors.IsUnauthorizedError(err))
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	h.createUser(t, "ama@example.org")
	pair := signIn(t, svc, "ama@example.org", testPassword)

	claims, err := svc.ValidateAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.NoError(t, svc.SignOut(ctx, claims, pair.RefreshToken))

	_, err = svc.ValidateAccessToken(ctx, pair.AccessToken)
	assert.True(t, errors.IsUnauthorizedError(err))
	_, err = svc.RefreshTokens(ctx, &dto.RefreshTokenRequest{RefreshToken: pair.RefreshToken})
	assert.True(t, errors.IsUnauthorizedError(err))
	assert.False(t, errors.IsInvalidatedRefreshTokenError(err))
}

func TestSignOutAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	u := h.createUser(t, "ama@example.org")
	laptop := signIn(t, svc, u.Email, testPassword)
	phone := signIn(t, svc, u.Email, testPassword)

	res, err := svc.SignOutAll(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RevokedAccessTokens)
	assert.Equal(t, 2, res.DeletedSessions)

	for _, pair := range []*models.TokenPair{laptop, phone} {
		_, err := svc.ValidateAccessToken(ctx, pair.AccessToken)
		assert.True(t, errors.IsUnauthorizedError(err))
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	u := h.createUser(t, "ama@example.org")
	pair := signIn(t, svc, u.Email, testPassword)
	const next = "a much longer passphrase"

	err := svc.ChangePassword(ctx, u.ID, &dto.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: next, ConfirmPassword: next})
	assert.True(t, errors.IsUnauthorizedError(err))

	err = svc.ChangePassword(ctx, u.ID, &dto.ChangePasswordRequest{CurrentPassword: testPassword, NewPassword: testPassword, ConfirmPassword: testPassword})
	assert.True(t, errors.IsValidationError(err))

	err = svc.ChangePassword(ctx, u.ID, &dto.ChangePasswordRequest{CurrentPassword: testPassword, NewPassword: next, ConfirmPassword: "typo"})
	assert.True(t, errors.IsValidationError(err))

	require.NoError(t, svc.ChangePassword(ctx, u.ID, &dto.ChangePasswordRequest{CurrentPassword: testPassword, NewPassword: next, ConfirmPassword: next}))
	assert.Equal(t, 1, h.mailer.Sent(domainService.NotifyPasswordChanged))

	_, err = svc.ValidateAccessToken(ctx, pair.AccessToken)
	assert.True(t, errors.IsUnauthorizedError(err), "every session ends on a password change")

	_, err = svc.SignIn(ctx, &dto.SignInRequest{Email: u.Email, Password: testPassword})
	assert.Error(t, err)
	signIn(t, svc, u.Email, next)
}

func TestDisable2FA(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	u := h.createUser(t, "ama@example.org")
	secret, _ := enableTFA(t, h, svc, u.ID)

	h.clock.Advance(30 * time.Second)
	code, err := totp.GenerateCode(secret, h.clock.Now())
	require.NoError(t, err)

	err = svc.Disable2FA(ctx, u.ID, "wrong password", code)
	assert.True(t, errors.IsUnauthorizedError(err))

	require.NoError(t, svc.Disable2FA(ctx, u.ID, testPassword, code))
	assert.Equal(t, 1, h.mailer.Sent(domainService.NotifyTFADisabled))

	signIn(t, svc, u.Email, testPassword)

	err = svc.Disable2FA(ctx, u.ID, testPassword, code)
	assert.True(t, errors.IsValidationError(err))
}

func TestUnlockAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.authService(t)
	u := h.createUser(t, "ama@example.org")
	for i := 0; i < 5; i++ {
		_, _ = svc.SignIn(ctx, &dto.SignInRequest{Email: u.Email, Password: "wrong password"})
	}

	require.NoError(t, svc.UnlockAccount(ctx, "admin-1", u.ID))
	signIn(t, svc, u.Email, testPassword)

	events := h.audit.EventsOf(constants.AuditAccountUnlocked)
	require.Len(t, events, 1)
	assert.Equal(t, "admin-1", events[0].Actor)
	assert.Equal(t, 1, h.mailer.Sent(domainService.NotifyAccountUnlocked))
}
