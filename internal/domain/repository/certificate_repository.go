package repository

import (
	"context"
	"time"

	"github.com/turtacn/certguard/internal/domain/models"
)

// CertificateBuilder builds the certificate for a locked, passed submission and its freshly assigned
// status list index. It runs inside the issuance transaction; returning an error rolls it back.
type CertificateBuilder func(ctx context.Context, submission *models.Submission, statusListIndex int64) (*models.Certificate, error)

// CertificateRepository defines the persistence operations for issued certificates.
type CertificateRepository interface {
	// IssueWithinTx locks the submission, checks it is PASSED with no certificate yet, assigns the next
	// status list index, inserts the certificate returned by build and marks the submission issued,
	// all in one transaction.
	IssueWithinTx(ctx context.Context, submissionID string, build CertificateBuilder) (*models.Certificate, error)

	FindByID(ctx context.Context, id string) (*models.Certificate, error)
	FindByVerificationCode(ctx context.Context, code string) (*models.Certificate, error)
	FindByCertificateNumber(ctx context.Context, number string) (*models.Certificate, error)

	// FindRevokedIndicesByYear returns statusListIndex of every revoked certificate issued in year.
	FindRevokedIndicesByYear(ctx context.Context, year int) ([]int64, error)

	// IsIndexRevoked reports whether the certificate at (year, index) is revoked.
	IsIndexRevoked(ctx context.Context, year int, index int64) (bool, error)

	// Revoke sets the revocation fields exactly once. Revoking twice is a conflict error.
	Revoke(ctx context.Context, id string, reason string, at time.Time) (*models.Certificate, error)
}

// SubmissionRepository defines the persistence operations for assessed submissions.
type SubmissionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	UpdateStatus(ctx context.Context, id string, status models.SubmissionStatus, finalScore float64) error
}
