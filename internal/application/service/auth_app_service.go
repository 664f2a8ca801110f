// Package service provides application-level services that orchestrate domain services and repositories
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/certguard/internal/application/dto"
	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/repository"
	domainService "github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
	"github.com/turtacn/certguard/pkg/utils"
)

// AuthAppService defines the interface for the authentication application service
type AuthAppService interface {
	// SignIn authenticates a user by password and, when enabled, a second factor.
	SignIn(ctx context.Context, req *dto.SignInRequest) (*dto.SignInResult, error)

	// GenerateTokens issues a token pair. inheritedCreatedAt carries the absolute-timeout anchor of a rotated session.
	GenerateTokens(ctx context.Context, user *models.User, inheritedCreatedAt *time.Time) (*models.TokenPair, error)

	// RefreshTokens rotates a refresh token into a new token pair.
	RefreshTokens(ctx context.Context, req *dto.RefreshTokenRequest) (*models.TokenPair, error)

	// HandleRefreshTokenTheft revokes everything the user holds after a rotated refresh token was replayed.
	HandleRefreshTokenTheft(ctx context.Context, userID string) error

	// SignOut revokes the presented access token and, if given, its refresh token.
	SignOut(ctx context.Context, claims *models.AccessClaims, refreshToken string) error

	// SignOutAll revokes every token and session of the user.
	SignOutAll(ctx context.Context, userID string) (*dto.SignOutAllResponse, error)

	// ChangePassword replaces the password and signs the user out everywhere.
	ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error

	// Setup2FA starts TOTP enrollment.
	Setup2FA(ctx context.Context, userID string) (*dto.TFASetupResponse, error)

	// Enable2FA confirms enrollment with a first code and returns fresh recovery codes.
	Enable2FA(ctx context.Context, userID string, req *dto.Enable2FARequest) (*dto.TFAEnabledResponse, error)

	// Disable2FA removes the second factor. Both the password and a current code are required.
	Disable2FA(ctx context.Context, userID, password, code string) error

	// ValidateAccessToken checks the signature, expiry and blacklist of an access token.
	ValidateAccessToken(ctx context.Context, token string) (*models.AccessClaims, error)

	// UnlockAccount lifts an administrative or brute-force lock. actorID is the admin performing it.
	UnlockAccount(ctx context.Context, actorID, userID string) error
}

// AuthDependencies wires the collaborators of AuthAppService.
type AuthDependencies struct {
	Users     repository.UserRepository
	Hasher    domainService.PasswordHasher
	Tokens    domainService.TokenManager
	Blacklist *domainService.TokenBlacklistService
	Refreshes *domainService.RefreshTokenStore
	Sessions  *domainService.SessionTimeoutService
	Lockout   *domainService.PasswordLockoutService
	OTP       *domainService.OTPService
	Audit     domainService.AuditService
	Mailer    domainService.Mailer
	Metrics   domainService.Metrics
	Now       domainService.Clock
	Logger    logger.Logger
}

// authAppServiceImpl is the concrete implementation of AuthAppService
type authAppServiceImpl struct {
	users     repository.UserRepository
	hasher    domainService.PasswordHasher
	tokens    domainService.TokenManager
	blacklist *domainService.TokenBlacklistService
	refreshes *domainService.RefreshTokenStore
	sessions  *domainService.SessionTimeoutService
	lockout   *domainService.PasswordLockoutService
	otp       *domainService.OTPService
	audit     domainService.AuditService
	mailer    domainService.Mailer
	metrics   domainService.Metrics
	now       func() time.Time
	logger    logger.Logger

	// dummyHash is compared against when the user does not exist so both paths cost one hash check.
	dummyHash string
}

// NewAuthAppService creates a new instance of AuthAppService
func NewAuthAppService(deps AuthDependencies) (AuthAppService, error) {
	if deps.Users == nil || deps.Hasher == nil || deps.Tokens == nil || deps.Blacklist == nil ||
		deps.Refreshes == nil || deps.Sessions == nil || deps.Lockout == nil || deps.OTP == nil {
		return nil, errors.ErrInternal("auth service dependencies are not initialized")
	}
	if deps.Metrics == nil {
		deps.Metrics = domainService.NewNoopMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoopLogger()
	}
	dummy, err := deps.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, errors.ErrInternal("failed to prepare password hasher").WithCause(err)
	}
	s := &authAppServiceImpl{
		users:     deps.Users,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		blacklist: deps.Blacklist,
		refreshes: deps.Refreshes,
		sessions:  deps.Sessions,
		lockout:   deps.Lockout,
		otp:       deps.OTP,
		audit:     deps.Audit,
		mailer:    deps.Mailer,
		metrics:   deps.Metrics,
		now:       time.Now,
		logger:    deps.Logger.WithComponent("AuthAppService"),
		dummyHash: dummy,
	}
	if deps.Now != nil {
		s.now = deps.Now
	}
	return s, nil
}

// SignIn implements the credentials -> (tfa) -> authenticated flow
func (s *authAppServiceImpl) SignIn(ctx context.Context, req *dto.SignInRequest) (*dto.SignInResult, error) {
	// 1. Validate request payload
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	email := utils.NormalizeEmail(req.Email)

	// 2. Reject locked addresses before touching the database
	locked, err := s.lockout.IsLocked(ctx, email)
	if err != nil {
		s.logger.Error(ctx, "Failed to read lockout state", err, logger.Email("email", email))
		return nil, err
	}
	if locked {
		s.metrics.RecordAuthAttempt("locked")
		s.logAudit(ctx, models.NewAuditEvent(constants.AuditSignInFailure, "", false).
			WithIP(req.IP).WithDetails(map[string]string{"email": email, "reason": "locked"}))
		return nil, errors.ErrUnauthorized("account temporarily locked")
	}

	// 3. Look up the user, treating every unusable account like a wrong password
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.IsNotFoundError(err) {
		s.logger.Error(ctx, "Failed to look up user", err, logger.Email("email", email))
		return nil, err
	}
	if !user.CanSignIn() {
		_ = s.hasher.Compare(s.dummyHash, req.Password)
		return nil, s.failPassword(ctx, email, nil, req.IP)
	}

	// 4. Check the password
	if !s.hasher.Compare(user.PasswordHash, req.Password) {
		return nil, s.failPassword(ctx, email, user, req.IP)
	}

	// 5. Second factor
	if user.TFAEnabled {
		if req.TFACode == "" && req.RecoveryCode == "" {
			s.metrics.RecordAuthAttempt("tfa_required")
			return &dto.SignInResult{State: dto.SignInStateTFA}, nil
		}
		if err := s.verifySecondFactor(ctx, user, req.TFACode, req.RecoveryCode); err != nil {
			s.metrics.RecordAuthAttempt("failure")
			s.logAudit(ctx, models.NewAuditEvent(constants.AuditSignInFailure, user.ID, false).
				WithIP(req.IP).WithDetails(map[string]string{"reason": "second_factor"}))
			return nil, err
		}
	}

	// 6. Success
	if err := s.lockout.ClearFailures(ctx, email); err != nil {
		s.logger.Warn(ctx, "Failed to clear lockout failures", logger.Email("email", email), logger.Error(err))
	}
	if err := s.users.RecordSuccessfulLogin(ctx, user.ID, s.now().UTC()); err != nil {
		s.logger.Error(ctx, "Failed to record successful login", err, logger.String("user_id", user.ID))
		return nil, err
	}
	s.logAudit(ctx, models.NewAuditEvent(constants.AuditSignInSuccess, user.ID, true).WithIP(req.IP))

	tokens, err := s.GenerateTokens(ctx, user, nil)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAuthAttempt("success")
	s.logger.Info(ctx, "User signed in", logger.String("user_id", user.ID), logger.Bool("tfa", user.TFAEnabled))
	return &dto.SignInResult{State: dto.SignInStateAuthenticated, Tokens: tokens}, nil
}

// failPassword records a failed password check. user is nil when the account does not exist or cannot sign in.
func (s *authAppServiceImpl) failPassword(ctx context.Context, email string, user *models.User, ip string) error {
	s.metrics.RecordAuthAttempt("failure")

	res, err := s.lockout.RecordFailure(ctx, email)
	if err != nil {
		s.logger.Error(ctx, "Failed to record lockout failure", err, logger.Email("email", email))
		return err
	}

	userID := ""
	if user != nil {
		userID = user.ID
		if _, err := s.users.IncrementFailedLogins(ctx, user.ID); err != nil {
			s.logger.Warn(ctx, "Failed to increment failed logins", logger.String("user_id", user.ID), logger.Error(err))
		}
	}
	s.logAudit(ctx, models.NewAuditEvent(constants.AuditSignInFailure, userID, false).
		WithIP(ip).WithDetails(map[string]interface{}{"email": email, "attempts": res.Attempts}))

	if res.JustLocked {
		s.logAudit(ctx, models.NewAuditEvent(constants.AuditAccountLocked, userID, true).
			WithIP(ip).WithDetails(map[string]interface{}{"email": email, "duration": s.lockout.LockDuration().String()}))
		if user != nil {
			s.notify(ctx, domainService.NotifyAccountLocked, user.Email, map[string]string{
				"firstName": user.FirstName,
				"duration":  s.lockout.LockDuration().String(),
			})
		}
	}
	return errors.ErrUnauthorized("invalid credentials")
}

// verifySecondFactor checks a recovery code when one is supplied, otherwise the TOTP code.
func (s *authAppServiceImpl) verifySecondFactor(ctx context.Context, user *models.User, code, recoveryCode string) error {
	locked, err := s.otp.IsLocked(ctx, user.ID)
	if err != nil {
		return err
	}
	if locked {
		return errors.ErrUnauthorized("otp verification locked")
	}

	if recoveryCode != "" {
		previous := user.TFARecoveryCodes
		remaining, ok := s.otp.ConsumeRecoveryCode(user.RecoveryCodeHashes(), recoveryCode)
		if !ok {
			if err := s.otp.RecordFailure(ctx, user.ID); err != nil {
				return err
			}
			return errors.ErrUnauthorized("invalid recovery code")
		}
		user.SetRecoveryCodeHashes(remaining)
		swapped, err := s.users.SwapRecoveryCodes(ctx, user.ID, previous, user.TFARecoveryCodes)
		if err != nil {
			return err
		}
		if !swapped {
			// A concurrent sign-in redeemed this or another code first.
			if err := s.otp.RecordFailure(ctx, user.ID); err != nil {
				return err
			}
			return errors.ErrUnauthorized("recovery code already used")
		}
		s.logger.Info(ctx, "Recovery code redeemed",
			logger.String("user_id", user.ID), logger.Int("remaining", len(remaining)))
	} else {
		if code == "" {
			return errors.ErrUnauthorized("otp code required")
		}
		ok, err := s.otp.VerifyCode(ctx, user.ID, user.TFASecret, code)
		if err != nil {
			return err
		}
		if !ok {
			return errors.ErrUnauthorized("invalid otp code")
		}
	}

	if err := s.otp.ClearState(ctx, user.ID); err != nil {
		s.logger.Warn(ctx, "Failed to clear otp state", logger.String("user_id", user.ID), logger.Error(err))
	}
	return nil
}

// GenerateTokens issues the pair and records it in the rotation, tracking and session stores concurrently
func (s *authAppServiceImpl) GenerateTokens(ctx context.Context, user *models.User, inheritedCreatedAt *time.Time) (*models.TokenPair, error) {
	now := s.now()
	jti := uuid.NewString()
	rti := uuid.NewString()

	accessToken, accessExp, err := s.tokens.IssueAccessToken(user, jti, now)
	if err != nil {
		return nil, err
	}
	refreshToken, _, err := s.tokens.IssueRefreshToken(user.ID, rti, now)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.refreshes.Register(gctx, user.ID, rti) })
	g.Go(func() error {
		s.blacklist.TrackToken(gctx, user.ID, jti)
		return nil
	})
	g.Go(func() error { return s.sessions.CreateSession(gctx, user.ID, rti, inheritedCreatedAt) })
	if err := g.Wait(); err != nil {
		s.logger.Error(ctx, "Failed to persist token state", err, logger.String("user_id", user.ID))
		return nil, err
	}

	createdAt := now
	if inheritedCreatedAt != nil {
		createdAt = *inheritedCreatedAt
	}
	sessionExpiresAt := s.sessions.SessionExpiresAt(createdAt)
	if limit := now.Add(s.sessions.AbsoluteTimeout()); sessionExpiresAt.After(limit) {
		sessionExpiresAt = limit
	}

	s.metrics.RecordTokenOperation("issue")
	return &models.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        string(constants.TokenTypeBearer),
		ExpiresIn:        int64(accessExp.Sub(now).Seconds()),
		SessionExpiresAt: sessionExpiresAt.UTC(),
	}, nil
}

// RefreshTokens implements rotation-on-use with reuse detection
func (s *authAppServiceImpl) RefreshTokens(ctx context.Context, req *dto.RefreshTokenRequest) (*models.TokenPair, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	// 1. Verify the token itself
	claims, err := s.tokens.ParseRefreshToken(req.RefreshToken)
	if err != nil {
		return nil, err
	}
	userID, tokenID := claims.Subject, claims.RefreshTokenID

	// 2. Account status changes take effect immediately
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return nil, errors.ErrUnauthorized("refresh token user not found")
		}
		return nil, err
	}
	if !user.IsActive || user.IsLocked {
		s.logger.Warn(ctx, "Refresh rejected for disabled account", logger.String("user_id", userID))
		return nil, errors.ErrUnauthorized("account disabled")
	}

	// 3. Rotation store
	if err := s.refreshes.Validate(ctx, userID, tokenID); err != nil {
		if errors.IsInvalidatedRefreshTokenError(err) {
			if theftErr := s.HandleRefreshTokenTheft(ctx, userID); theftErr != nil {
				s.logger.Error(ctx, "Theft response incomplete", theftErr, logger.String("user_id", userID))
			}
		}
		return nil, err
	}

	// 4. Session timeouts
	if err := s.sessions.ValidateSession(ctx, userID, tokenID); err != nil {
		if errors.IsSessionExpiredError(err) {
			s.retire(ctx, userID, tokenID)
		}
		return nil, err
	}
	createdAt, err := s.sessions.GetSessionCreatedAt(ctx, userID, tokenID)
	if err != nil {
		s.logger.Warn(ctx, "Failed to read session anchor, starting a new one", logger.String("user_id", userID), logger.Error(err))
		createdAt = nil
	}

	// 5. Retire the old id before the new pair exists. Losing the claim to a concurrent
	// refresh of the same id is reuse.
	if err := s.refreshes.Invalidate(ctx, userID, tokenID); err != nil {
		if errors.IsInvalidatedRefreshTokenError(err) {
			if theftErr := s.HandleRefreshTokenTheft(ctx, userID); theftErr != nil {
				s.logger.Error(ctx, "Theft response incomplete", theftErr, logger.String("user_id", userID))
			}
		}
		return nil, err
	}
	if err := s.sessions.DeleteSession(ctx, userID, tokenID); err != nil {
		s.logger.Warn(ctx, "Failed to delete rotated session", logger.String("user_id", userID), logger.Error(err))
	}

	tokens, err := s.GenerateTokens(ctx, user, createdAt)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTokenOperation("refresh")
	s.logAudit(ctx, models.NewAuditEvent(constants.AuditTokenRefresh, userID, true))
	return tokens, nil
}

// retire drops one refresh token id and its session. Failures are logged only.
func (s *authAppServiceImpl) retire(ctx context.Context, userID, tokenID string) {
	if err := s.refreshes.Remove(ctx, userID, tokenID); err != nil {
		s.logger.Warn(ctx, "Failed to invalidate expired refresh token", logger.String("user_id", userID), logger.Error(err))
	}
	if err := s.sessions.DeleteSession(ctx, userID, tokenID); err != nil {
		s.logger.Warn(ctx, "Failed to delete expired session", logger.String("user_id", userID), logger.Error(err))
	}
}

// HandleRefreshTokenTheft blacklists tracked access tokens and drops every refresh token and session
func (s *authAppServiceImpl) HandleRefreshTokenTheft(ctx context.Context, userID string) error {
	s.logger.Warn(ctx, "SECURITY: refresh token reuse detected, revoking all tokens", logger.String("user_id", userID))
	s.metrics.RecordTokenOperation("theft")

	revoked, blacklistErr := s.blacklist.BlacklistAllForUser(ctx, userID, s.tokens.AccessTokenTTL())
	ids, refreshErr := s.refreshes.InvalidateAll(ctx, userID)
	if _, err := s.sessions.DeleteAllSessions(ctx, userID); err != nil {
		s.logger.Warn(ctx, "Failed to delete sessions after theft", logger.String("user_id", userID), logger.Error(err))
	}

	s.logAudit(ctx, models.NewAuditEvent(constants.AuditRefreshTokenTheft, userID, blacklistErr == nil && refreshErr == nil).
		WithDetails(map[string]int{"revokedAccessTokens": revoked, "invalidatedRefreshTokens": len(ids)}))

	if blacklistErr != nil {
		return blacklistErr
	}
	return refreshErr
}

// SignOut blacklists the access token for its remaining lifetime
func (s *authAppServiceImpl) SignOut(ctx context.Context, claims *models.AccessClaims, refreshToken string) error {
	if claims == nil || claims.ID == "" {
		return errors.ErrUnauthorized("missing access token claims")
	}
	userID := claims.Subject

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ttl := s.tokens.AccessTokenTTL()
		if claims.ExpiresAt != nil {
			ttl = claims.ExpiresAt.Sub(s.now())
		}
		if ttl <= 0 {
			return nil
		}
		return s.blacklist.Blacklist(gctx, claims.ID, userID, ttl)
	})
	if refreshToken != "" {
		rc, err := s.tokens.ParseRefreshToken(refreshToken)
		switch {
		case err != nil:
			s.logger.Debug(ctx, "Ignoring unparseable refresh token on sign-out", logger.String("user_id", userID))
		case rc.Subject != userID:
			s.logger.Warn(ctx, "Refresh token on sign-out belongs to another user", logger.String("user_id", userID))
		default:
			g.Go(func() error { return s.refreshes.Remove(gctx, userID, rc.RefreshTokenID) })
			g.Go(func() error {
				if err := s.sessions.DeleteSession(gctx, userID, rc.RefreshTokenID); err != nil {
					s.logger.Warn(gctx, "Failed to delete session on sign-out", logger.String("user_id", userID), logger.Error(err))
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		s.logger.Error(ctx, "Sign-out failed", err, logger.String("user_id", userID))
		return err
	}

	s.metrics.RecordTokenOperation("revoke")
	s.logAudit(ctx, models.NewAuditEvent(constants.AuditSignOut, userID, true))
	return nil
}

// SignOutAll revokes every access token, refresh token and session of the user
func (s *authAppServiceImpl) SignOutAll(ctx context.Context, userID string) (*dto.SignOutAllResponse, error) {
	var revoked, deleted int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.blacklist.BlacklistAllForUser(gctx, userID, s.tokens.AccessTokenTTL())
		revoked = n
		return err
	})
	g.Go(func() error {
		_, err := s.refreshes.InvalidateAll(gctx, userID)
		return err
	})
	g.Go(func() error {
		n, err := s.sessions.DeleteAllSessions(gctx, userID)
		if err != nil {
			s.logger.Warn(gctx, "Failed to delete all sessions", logger.String("user_id", userID), logger.Error(err))
			return nil
		}
		deleted = n
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error(ctx, "Sign-out-all failed", err, logger.String("user_id", userID))
		return nil, err
	}

	s.metrics.RecordTokenOperation("revoke_all")
	s.logAudit(ctx, models.NewAuditEvent(constants.AuditSignOutAll, userID, true).
		WithDetails(map[string]int{"revokedAccessTokens": revoked, "deletedSessions": deleted}))
	s.logger.Info(ctx, "Signed out everywhere", logger.String("user_id", userID), logger.Int("revoked", revoked))
	return &dto.SignOutAllResponse{RevokedAccessTokens: revoked, DeletedSessions: deleted}, nil
}

// ChangePassword verifies the current password, stores the new hash and ends every session
func (s *authAppServiceImpl) ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Compare(user.PasswordHash, req.CurrentPassword) {
		return errors.ErrUnauthorized("current password mismatch")
	}
	if req.NewPassword == req.CurrentPassword {
		return errors.ErrValidation("new password must differ from the current password",
			map[string]string{"new_password": "must differ from current_password"})
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return errors.ErrInternal("failed to hash password").WithCause(err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.lockout.ClearFailures(ctx, user.Email); err != nil {
		s.logger.Warn(ctx, "Failed to clear lockout failures", logger.String("user_id", userID), logger.Error(err))
	}
	if _, err := s.SignOutAll(ctx, userID); err != nil {
		return err
	}

	s.logAudit(ctx, models.NewAuditEvent(constants.AuditPasswordChanged, userID, true))
	s.notify(ctx, domainService.NotifyPasswordChanged, user.Email, map[string]string{"firstName": user.FirstName})
	return nil
}

// Setup2FA stores a new encrypted secret; 2FA stays off until Enable2FA confirms a code
func (s *authAppServiceImpl) Setup2FA(ctx context.Context, userID string) (*dto.TFASetupResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TFAEnabled {
		return nil, errors.ErrConflict("two-factor authentication is already enabled")
	}
	enrollment, err := s.otp.GenerateSecret(user.Email)
	if err != nil {
		return nil, err
	}
	user.TFASecret = enrollment.EncryptedSecret
	if err := s.users.UpdateTFA(ctx, user); err != nil {
		return nil, err
	}
	return &dto.TFASetupResponse{Secret: enrollment.Secret, URL: enrollment.URL}, nil
}

// Enable2FA turns on 2FA after the first valid code and returns the plain recovery codes once
func (s *authAppServiceImpl) Enable2FA(ctx context.Context, userID string, req *dto.Enable2FARequest) (*dto.TFAEnabledResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TFAEnabled {
		return nil, errors.ErrConflict("two-factor authentication is already enabled")
	}
	if user.TFASecret == "" {
		return nil, errors.ErrValidation("two-factor setup has not been started", nil)
	}
	if err := s.verifySecondFactor(ctx, user, req.Code, ""); err != nil {
		return nil, err
	}

	codes, hashes, err := s.otp.GenerateRecoveryCodes()
	if err != nil {
		return nil, err
	}
	user.TFAEnabled = true
	user.SetRecoveryCodeHashes(hashes)
	if err := s.users.UpdateTFA(ctx, user); err != nil {
		return nil, err
	}

	s.logAudit(ctx, models.NewAuditEvent(constants.AuditTFAEnabled, userID, true))
	s.notify(ctx, domainService.NotifyTFAEnabled, user.Email, map[string]string{"firstName": user.FirstName})
	return &dto.TFAEnabledResponse{RecoveryCodes: codes}, nil
}

// Disable2FA clears the second factor and signs out all sessions
func (s *authAppServiceImpl) Disable2FA(ctx context.Context, userID, password, code string) error {
	if err := utils.ValidateStruct(&dto.Disable2FARequest{Password: password, Code: code}); err != nil {
		return err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TFAEnabled {
		return errors.ErrValidation("two-factor authentication is not enabled", nil)
	}
	if !s.hasher.Compare(user.PasswordHash, password) {
		return errors.ErrUnauthorized("password mismatch")
	}
	if err := s.verifySecondFactor(ctx, user, code, ""); err != nil {
		return err
	}

	user.ClearTFA()
	if err := s.users.UpdateTFA(ctx, user); err != nil {
		return err
	}
	if _, err := s.SignOutAll(ctx, userID); err != nil {
		return err
	}

	s.logAudit(ctx, models.NewAuditEvent(constants.AuditTFADisabled, userID, true))
	s.notify(ctx, domainService.NotifyTFADisabled, user.Email, map[string]string{"firstName": user.FirstName})
	return nil
}

// ValidateAccessToken parses the token and rejects blacklisted ids
func (s *authAppServiceImpl) ValidateAccessToken(ctx context.Context, token string) (*models.AccessClaims, error) {
	claims, err := s.tokens.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, errors.ErrUnauthorized("access token revoked")
	}
	return claims, nil
}

// UnlockAccount clears the database lock, the lockout counter and the otp lock
func (s *authAppServiceImpl) UnlockAccount(ctx context.Context, actorID, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.users.SetLocked(ctx, userID, false); err != nil {
		return err
	}
	if err := s.lockout.ClearFailures(ctx, user.Email); err != nil {
		return err
	}
	if err := s.otp.ClearState(ctx, userID); err != nil {
		s.logger.Warn(ctx, "Failed to clear otp state on unlock", logger.String("user_id", userID), logger.Error(err))
	}

	event := models.NewAuditEvent(constants.AuditAccountUnlocked, userID, true)
	event.Actor = actorID
	s.logAudit(ctx, event)
	s.notify(ctx, domainService.NotifyAccountUnlocked, user.Email, map[string]string{"firstName": user.FirstName})
	s.logger.Info(ctx, "Account unlocked", logger.String("user_id", userID), logger.String("actor", actorID))
	return nil
}
