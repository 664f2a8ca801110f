package models

import (
	"encoding/json"
	"time"
)

// SubmissionStatus is the assessment state of a submission.
type SubmissionStatus string

const (
	SubmissionDraft     SubmissionStatus = "DRAFT"
	SubmissionSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionPassed    SubmissionStatus = "PASSED"
	SubmissionFailed    SubmissionStatus = "FAILED"
)

// ControlGroup is the certification level a submission was assessed against.
type ControlGroup string

const (
	ControlGroupL1 ControlGroup = "L1"
	ControlGroupL2 ControlGroup = "L2"
	ControlGroupL3 ControlGroup = "L3"
)

// CategoryScore is the score of one control category, in percent.
type CategoryScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Submission is an assessed DHIS2 implementation awaiting or holding a certificate.
type Submission struct {
	ID                 string           `gorm:"primaryKey;type:varchar(36)"`
	ImplementationID   string           `gorm:"index;size:36;not null"`
	ImplementationName string           `gorm:"size:255"`
	ImplementationURL  string           `gorm:"size:512"`
	ControlGroup       ControlGroup     `gorm:"size:8;not null"`
	Status             SubmissionStatus `gorm:"size:16;not null"`
	FinalScore         float64
	CategoryScoresJSON string `gorm:"column:category_scores;type:text"`
	CertificateIssued  bool   `gorm:"not null;default:false"`
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (Submission) TableName() string { return "submissions" }

// CategoryScores decodes the per-category scores.
func (s *Submission) CategoryScores() ([]CategoryScore, error) {
	if s.CategoryScoresJSON == "" {
		return nil, nil
	}
	var scores []CategoryScore
	if err := json.Unmarshal([]byte(s.CategoryScoresJSON), &scores); err != nil {
		return nil, err
	}
	return scores, nil
}

// SetCategoryScores encodes the per-category scores.
func (s *Submission) SetCategoryScores(scores []CategoryScore) error {
	b, err := json.Marshal(scores)
	if err != nil {
		return err
	}
	s.CategoryScoresJSON = string(b)
	return nil
}
