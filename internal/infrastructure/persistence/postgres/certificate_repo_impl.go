package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/repository"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

const certificateCounter = "certificates"

// statusListCounter hands out status list indices. Indices are never reused, even when the
// certificate they were assigned to is revoked.
type statusListCounter struct {
	Name      string `gorm:"primaryKey;size:32"`
	NextIndex int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (statusListCounter) TableName() string { return "status_list_counters" }

func seedCounter(db *gorm.DB) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&statusListCounter{Name: certificateCounter}).Error
}

// CertificateRepoImpl implements repository.CertificateRepository on gorm.
type CertificateRepoImpl struct {
	conn   *DBConnection
	logger logger.Logger
}

// NewCertificateRepository creates a gorm-backed certificate repository.
func NewCertificateRepository(conn *DBConnection, log logger.Logger) repository.CertificateRepository {
	return &CertificateRepoImpl{conn: conn, logger: log.WithComponent("certificate_repository")}
}

// IssueWithinTx runs the whole issuance in one transaction. The submission row and the counter
// row are locked FOR UPDATE, so two concurrent issuances for one submission serialize and the
// second sees certificate_issued.
func (r *CertificateRepoImpl) IssueWithinTx(ctx context.Context, submissionID string, build repository.CertificateBuilder) (*models.Certificate, error) {
	var issued *models.Certificate
	err := r.conn.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Submission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", submissionID).First(&sub).Error; err != nil {
			return translateError(err, "submission", submissionID)
		}
		if sub.Status != models.SubmissionPassed {
			return errors.ErrValidation("submission has not passed assessment",
				map[string]string{"status": string(sub.Status)})
		}
		if sub.CertificateIssued {
			return errors.ErrConflict("certificate already issued for submission")
		}

		index, err := nextStatusListIndex(tx)
		if err != nil {
			return err
		}

		cert, err := build(ctx, &sub, index)
		if err != nil {
			return err
		}
		cert.SubmissionID = sub.ID
		cert.StatusListIndex = index
		if err := tx.Create(cert).Error; err != nil {
			return translateError(err, "certificate", cert.ID)
		}
		if err := tx.Model(&models.Submission{}).Where("id = ?", sub.ID).
			Update("certificate_issued", true).Error; err != nil {
			return translateError(err, "submission", sub.ID)
		}
		issued = cert
		return nil
	})
	if err != nil {
		r.logger.Warn(ctx, "Certificate issuance rolled back",
			logger.String("submission_id", submissionID), logger.Error(err))
		return nil, translateError(err, "certificate", submissionID)
	}

	r.logger.Info(ctx, "Certificate persisted",
		logger.String("certificate_id", issued.ID),
		logger.Int64("status_list_index", issued.StatusListIndex),
	)
	return issued, nil
}

func nextStatusListIndex(tx *gorm.DB) (int64, error) {
	var counter statusListCounter
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", certificateCounter).First(&counter).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		counter = statusListCounter{Name: certificateCounter}
		if err := tx.Create(&counter).Error; err != nil {
			return 0, translateError(err, "status list counter", certificateCounter)
		}
	} else if err != nil {
		return 0, translateError(err, "status list counter", certificateCounter)
	}

	index := counter.NextIndex
	if index >= constants.StatusListMaxEntries {
		// A larger index has no bit in any published list, so its revocation could never be seen.
		return 0, errors.ErrConflict("status list index space exhausted")
	}
	if err := tx.Model(&statusListCounter{}).Where("name = ?", certificateCounter).
		Update("next_index", index+1).Error; err != nil {
		return 0, translateError(err, "status list counter", certificateCounter)
	}
	return index, nil
}

func (r *CertificateRepoImpl) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *CertificateRepoImpl) FindByVerificationCode(ctx context.Context, code string) (*models.Certificate, error) {
	return r.findOne(ctx, "verification_code = ?", code)
}

func (r *CertificateRepoImpl) FindByCertificateNumber(ctx context.Context, number string) (*models.Certificate, error) {
	return r.findOne(ctx, "certificate_number = ?", number)
}

func (r *CertificateRepoImpl) findOne(ctx context.Context, where string, arg string) (*models.Certificate, error) {
	var cert models.Certificate
	if err := r.conn.DB(ctx).Where(where, arg).First(&cert).Error; err != nil {
		return nil, translateError(err, "certificate", arg)
	}
	return &cert, nil
}

func (r *CertificateRepoImpl) FindRevokedIndicesByYear(ctx context.Context, year int) ([]int64, error) {
	var indices []int64
	err := r.conn.DB(ctx).Model(&models.Certificate{}).
		Where("year = ? AND revoked = ?", year, true).
		Order("status_list_index").
		Pluck("status_list_index", &indices).Error
	if err != nil {
		return nil, translateError(err, "certificate", "")
	}
	return indices, nil
}

func (r *CertificateRepoImpl) IsIndexRevoked(ctx context.Context, year int, index int64) (bool, error) {
	var count int64
	err := r.conn.DB(ctx).Model(&models.Certificate{}).
		Where("year = ? AND status_list_index = ? AND revoked = ?", year, index, true).
		Count(&count).Error
	if err != nil {
		return false, translateError(err, "certificate", "")
	}
	return count > 0, nil
}

// Revoke only updates rows that are not yet revoked, which makes it exactly-once under concurrency.
func (r *CertificateRepoImpl) Revoke(ctx context.Context, id string, reason string, at time.Time) (*models.Certificate, error) {
	at = at.UTC()
	res := r.conn.DB(ctx).Model(&models.Certificate{}).
		Where("id = ? AND revoked = ?", id, false).
		Updates(map[string]interface{}{
			"revoked":           true,
			"revoked_at":        at,
			"revocation_reason": reason,
		})
	if res.Error != nil {
		return nil, translateError(res.Error, "certificate", id)
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, errors.ErrConflict("certificate already revoked")
	}

	r.logger.Info(ctx, "Certificate revoked", logger.String("certificate_id", id))
	return r.FindByID(ctx, id)
}
