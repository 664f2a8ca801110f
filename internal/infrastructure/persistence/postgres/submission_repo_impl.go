package postgres

import (
	"context"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/repository"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

// SubmissionRepoImpl implements repository.SubmissionRepository on gorm.
type SubmissionRepoImpl struct {
	conn   *DBConnection
	logger logger.Logger
}

// NewSubmissionRepository creates a gorm-backed submission repository.
func NewSubmissionRepository(conn *DBConnection, log logger.Logger) repository.SubmissionRepository {
	return &SubmissionRepoImpl{conn: conn, logger: log.WithComponent("submission_repository")}
}

func (r *SubmissionRepoImpl) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	var sub models.Submission
	if err := r.conn.DB(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, translateError(err, "submission", id)
	}
	return &sub, nil
}

func (r *SubmissionRepoImpl) Create(ctx context.Context, submission *models.Submission) error {
	if err := r.conn.DB(ctx).Create(submission).Error; err != nil {
		return translateError(err, "submission", submission.ID)
	}
	return nil
}

// UpdateStatus records the assessment outcome. A submission that already has a certificate keeps its status.
func (r *SubmissionRepoImpl) UpdateStatus(ctx context.Context, id string, status models.SubmissionStatus, finalScore float64) error {
	res := r.conn.DB(ctx).Model(&models.Submission{}).
		Where("id = ? AND certificate_issued = ?", id, false).
		Updates(map[string]interface{}{"status": status, "final_score": finalScore})
	if res.Error != nil {
		return translateError(res.Error, "submission", id)
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return errors.ErrConflict("submission already has a certificate")
	}
	r.logger.Info(ctx, "Submission assessed",
		logger.String("submission_id", id), logger.String("status", string(status)))
	return nil
}
