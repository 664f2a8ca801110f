package models

import (
	"encoding/json"
	"time"
)

// Role is the authorization role of a user.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleAssessor Role = "assessor"
	RoleUser     Role = "user"
)

// User is an account that can sign in to the certification service.
// User 是可以登录认证服务的账户。
type User struct {
	ID                  string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email               string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash        string     `gorm:"size:255" json:"-"`
	FirstName           string     `gorm:"size:100" json:"firstName"`
	LastName            string     `gorm:"size:100" json:"lastName"`
	Role                Role       `gorm:"size:32;not null;default:user" json:"role"`
	IsActive            bool       `gorm:"not null;default:true" json:"isActive"`
	IsLocked            bool       `gorm:"not null;default:false" json:"isLocked"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LastLoginAt         *time.Time `json:"lastLoginAt,omitempty"`
	TFAEnabled          bool       `gorm:"column:tfa_enabled;not null;default:false" json:"tfaEnabled"`
	TFASecret           string     `gorm:"column:tfa_secret;type:text" json:"-"`
	TFARecoveryCodes    string     `gorm:"column:tfa_recovery_codes;type:text" json:"-"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// TableName implements gorm's tabler interface.
func (User) TableName() string { return "users" }

// CanSignIn reports whether the account may authenticate at all.
func (u *User) CanSignIn() bool {
	return u != nil && u.IsActive && !u.IsLocked && u.PasswordHash != ""
}

// RecoveryCodeHashes returns the stored hashed recovery codes.
func (u *User) RecoveryCodeHashes() []string {
	if u.TFARecoveryCodes == "" {
		return nil
	}
	var hashes []string
	if err := json.Unmarshal([]byte(u.TFARecoveryCodes), &hashes); err != nil {
		return nil
	}
	return hashes
}

// SetRecoveryCodeHashes replaces the stored hashed recovery codes.
func (u *User) SetRecoveryCodeHashes(hashes []string) {
	if len(hashes) == 0 {
		u.TFARecoveryCodes = ""
		return
	}
	b, _ := json.Marshal(hashes)
	u.TFARecoveryCodes = string(b)
}

// ClearTFA removes all second factor state.
func (u *User) ClearTFA() {
	u.TFAEnabled = false
	u.TFASecret = ""
	u.TFARecoveryCodes = ""
}
