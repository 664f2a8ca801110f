package dto

import (
	"time"

	"github.com/turtacn/certguard/internal/domain/models"
)

// IssueCertificateRequest 颁发证书请求 DTO
type IssueCertificateRequest struct {
	SubmissionID string `json:"submissionId" validate:"required,uuid"`
}

// RevokeCertificateRequest 吊销证书请求 DTO
type RevokeCertificateRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=512"`
}

// CertificateDTO is the public view of an issued certificate.
type CertificateDTO struct {
	ID                 string                       `json:"id"`
	CertificateNumber  string                       `json:"certificateNumber"`
	VerificationCode   string                       `json:"verificationCode"`
	ImplementationName string                       `json:"implementationName"`
	ControlGroup       models.ControlGroup          `json:"controlGroup"`
	FinalScore         float64                      `json:"finalScore"`
	IssuedAt           time.Time                    `json:"issuedAt"`
	ValidUntil         time.Time                    `json:"validUntil"`
	Revoked            bool                         `json:"revoked"`
	RevokedAt          *time.Time                   `json:"revokedAt,omitempty"`
	RevocationReason   string                       `json:"revocationReason,omitempty"`
	CertificateHash    string                       `json:"certificateHash"`
	KeyVersion         int                          `json:"keyVersion"`
	Credential         *models.VerifiableCredential `json:"credential,omitempty"`
}

// NewCertificateDTO converts a certificate. vc may be nil.
func NewCertificateDTO(c *models.Certificate, vc *models.VerifiableCredential) *CertificateDTO {
	return &CertificateDTO{
		ID:                 c.ID,
		CertificateNumber:  c.CertificateNumber,
		VerificationCode:   c.VerificationCode,
		ImplementationName: c.ImplementationName,
		ControlGroup:       c.ControlGroup,
		FinalScore:         c.FinalScore,
		IssuedAt:           c.IssuedAt,
		ValidUntil:         c.ValidUntil,
		Revoked:            c.Revoked,
		RevokedAt:          c.RevokedAt,
		RevocationReason:   c.RevocationReason,
		CertificateHash:    c.CertificateHash,
		KeyVersion:         c.KeyVersion,
		Credential:         vc,
	}
}

// VerificationResponse 证书验证结果 DTO
type VerificationResponse struct {
	Certificate  *CertificateDTO           `json:"certificate"`
	Verification models.VerificationResult `json:"verification"`
	CheckedAt    time.Time                 `json:"checkedAt"`
}
