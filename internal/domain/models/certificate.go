package models

import "time"

// Certificate is an issued, signed credential for a submission.
// Everything except the revocation fields is immutable after issuance.
// Certificate 是为提交颁发的已签名凭证。除撤销字段外，颁发后均不可变。
type Certificate struct {
	ID                 string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CertificateNumber  string       `gorm:"uniqueIndex;size:32;not null" json:"certificateNumber"`
	VerificationCode   string       `gorm:"uniqueIndex;size:16;not null" json:"verificationCode"`
	SubmissionID       string       `gorm:"uniqueIndex;size:36;not null" json:"submissionId"`
	ImplementationID   string       `gorm:"index;size:36;not null" json:"implementationId"`
	ImplementationName string       `gorm:"size:255" json:"implementationName"`
	ControlGroup       ControlGroup `gorm:"size:8;not null" json:"controlGroup"`
	FinalScore         float64      `json:"finalScore"`
	StatusListIndex    int64        `gorm:"uniqueIndex;not null" json:"statusListIndex"`
	Year               int          `gorm:"index;not null" json:"year"`
	CredentialJSON     string       `gorm:"column:credential;type:text;not null" json:"-"`
	CertificateHash    string       `gorm:"size:64;not null" json:"certificateHash"`
	Signature          string       `gorm:"type:text;not null" json:"-"`
	KeyVersion         int          `gorm:"not null" json:"keyVersion"`
	IssuedAt           time.Time    `gorm:"not null" json:"issuedAt"`
	ValidUntil         time.Time    `gorm:"not null" json:"validUntil"`
	Revoked            bool         `gorm:"index;not null;default:false" json:"revoked"`
	RevokedAt          *time.Time   `json:"revokedAt,omitempty"`
	RevocationReason   string       `gorm:"size:512" json:"revocationReason,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

func (Certificate) TableName() string { return "certificates" }

// IsExpired reports whether the certificate is past its validUntil at now.
func (c *Certificate) IsExpired(now time.Time) bool {
	return now.After(c.ValidUntil)
}
