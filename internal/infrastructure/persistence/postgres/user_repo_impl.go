package postgres

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/repository"
	"github.com/turtacn/certguard/pkg/logger"
)

// UserRepoImpl implements repository.UserRepository on gorm.
type UserRepoImpl struct {
	conn   *DBConnection
	logger logger.Logger
}

// NewUserRepository creates a gorm-backed user repository.
func NewUserRepository(conn *DBConnection, log logger.Logger) repository.UserRepository {
	return &UserRepoImpl{conn: conn, logger: log.WithComponent("user_repository")}
}

func (r *UserRepoImpl) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.conn.DB(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translateError(err, "user", id)
	}
	return &user, nil
}

func (r *UserRepoImpl) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	var user models.User
	if err := r.conn.DB(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translateError(err, "user", email)
	}
	return &user, nil
}

func (r *UserRepoImpl) Create(ctx context.Context, user *models.User) error {
	user.Email = normalizeEmail(user.Email)
	if err := r.conn.DB(ctx).Create(user).Error; err != nil {
		r.logger.Warn(ctx, "Failed to create user", logger.Email("email", user.Email), logger.Error(err))
		return translateError(err, "user", user.Email)
	}
	r.logger.Info(ctx, "User created", logger.String("user_id", user.ID))
	return nil
}

// IncrementFailedLogins bumps the counter in SQL so concurrent failures are not lost.
func (r *UserRepoImpl) IncrementFailedLogins(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.conn.DB(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", id).
			UpdateColumn("failed_login_attempts", gorm.Expr("failed_login_attempts + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.User{}).Where("id = ?", id).
			Pluck("failed_login_attempts", &attempts).Error
	})
	if err != nil {
		return 0, translateError(err, "user", id)
	}
	return attempts, nil
}

func (r *UserRepoImpl) RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"failed_login_attempts": 0,
		"last_login_at":         at.UTC(),
	})
}

func (r *UserRepoImpl) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	return r.update(ctx, id, map[string]interface{}{
		"password_hash":         passwordHash,
		"failed_login_attempts": 0,
	})
}

func (r *UserRepoImpl) UpdateTFA(ctx context.Context, user *models.User) error {
	return r.update(ctx, user.ID, map[string]interface{}{
		"tfa_enabled":        user.TFAEnabled,
		"tfa_secret":         user.TFASecret,
		"tfa_recovery_codes": user.TFARecoveryCodes,
	})
}

// SwapRecoveryCodes is a compare-and-set on tfa_recovery_codes so one code redeems once.
func (r *UserRepoImpl) SwapRecoveryCodes(ctx context.Context, id string, expected, replacement string) (bool, error) {
	res := r.conn.DB(ctx).Model(&models.User{}).
		Where("id = ? AND tfa_recovery_codes = ?", id, expected).
		Update("tfa_recovery_codes", replacement)
	if res.Error != nil {
		r.logger.Error(ctx, "Failed to swap recovery codes", res.Error, logger.String("user_id", id))
		return false, translateError(res.Error, "user", id)
	}
	return res.RowsAffected == 1, nil
}

func (r *UserRepoImpl) SetLocked(ctx context.Context, id string, locked bool) error {
	fields := map[string]interface{}{"is_locked": locked}
	if !locked {
		fields["failed_login_attempts"] = 0
	}
	return r.update(ctx, id, fields)
}

func (r *UserRepoImpl) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}

// update uses a map so zero values (false, 0, "") are written.
func (r *UserRepoImpl) update(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.conn.DB(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		r.logger.Error(ctx, "Failed to update user", res.Error, logger.String("user_id", id))
		return translateError(res.Error, "user", id)
	}
	if res.RowsAffected == 0 {
		return translateError(gorm.ErrRecordNotFound, "user", id)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
