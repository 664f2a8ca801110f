package dto

import (
	"time"

	"github.com/turtacn/certguard/internal/domain/models"
)

// SignInState 登录状态
type SignInState string

const (
	SignInStateCredentials   SignInState = "credentials"
	SignInStateTFA           SignInState = "tfa"
	SignInStateAuthenticated SignInState = "authenticated"
)

// SignInRequest 登录请求 DTO
type SignInRequest struct {
	Email        string `json:"email" validate:"required,email,max=255"`
	Password     string `json:"password" validate:"required,max=256"`
	TFACode      string `json:"tfaCode,omitempty" validate:"omitempty,totp"`
	RecoveryCode string `json:"recoveryCode,omitempty" validate:"omitempty,min=8,max=16"`
	IP           string `json:"-"`
}

// SignInResult 登录结果。State 为 tfa 时 Tokens 为空，客户端需要再次提交验证码。
type SignInResult struct {
	State  SignInState       `json:"state"`
	Tokens *models.TokenPair `json:"tokens,omitempty"`
}

// RefreshTokenRequest 令牌刷新请求 DTO
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// SignOutRequest 登出请求 DTO。RefreshToken 可选，提供时同时作废该刷新令牌。
type SignOutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// ChangePasswordRequest 修改密码请求 DTO
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=12,max=256,nefield=CurrentPassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// Disable2FARequest 关闭双因素认证请求 DTO
type Disable2FARequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required,totp"`
}

// Enable2FARequest 开启双因素认证请求 DTO
type Enable2FARequest struct {
	Code string `json:"code" validate:"required,totp"`
}

// TFASetupResponse carries the otpauth URL for the authenticator app. The secret is shown once.
type TFASetupResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauthUrl"`
}

// TFAEnabledResponse returns the recovery codes in clear text, the only time they are visible.
type TFAEnabledResponse struct {
	RecoveryCodes []string `json:"recoveryCodes"`
}

// SignOutAllResponse reports how much was revoked.
type SignOutAllResponse struct {
	RevokedAccessTokens int `json:"revokedAccessTokens"`
	DeletedSessions     int `json:"deletedSessions"`
}

// UserDTO is the public view of a user.
type UserDTO struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	Role        models.Role `json:"role"`
	TFAEnabled  bool        `json:"tfaEnabled"`
	LastLoginAt *time.Time  `json:"lastLoginAt,omitempty"`
}

// NewUserDTO converts a user.
func NewUserDTO(u *models.User) *UserDTO {
	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		TFAEnabled:  u.TFAEnabled,
		LastLoginAt: u.LastLoginAt,
	}
}
