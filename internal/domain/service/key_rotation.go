package service

import (
	"time"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/pkg/constants"
)

const day = 24 * time.Hour

// EvaluateRotation grades the active key of meta against policy at now.
// A key is WARNING once it is within WarningThresholdDays of MaxAgeDays, and CRITICAL past MaxAgeDays.
func EvaluateRotation(meta *models.KeyMetadata, policy models.RotationPolicy, now time.Time) models.RotationReport {
	if policy.MaxAgeDays <= 0 {
		policy.MaxAgeDays = constants.KeyMaxAgeDaysDefault
	}
	if policy.WarningThresholdDays <= 0 {
		policy.WarningThresholdDays = constants.KeyWarningThresholdDaysDefault
	}
	if meta == nil {
		return models.RotationReport{Status: constants.RotationUnknown}
	}
	active, ok := meta.Active()
	if !ok || active.CreatedAt.IsZero() {
		return models.RotationReport{Status: constants.RotationUnknown, ActiveVersion: meta.ActiveVersion}
	}

	ageDays := int(now.Sub(active.CreatedAt) / day)
	createdAt := active.CreatedAt
	report := models.RotationReport{
		ActiveVersion:     active.Version,
		CreatedAt:         &createdAt,
		AgeDays:           ageDays,
		DaysUntilCritical: policy.MaxAgeDays - ageDays,
	}
	switch {
	case ageDays > policy.MaxAgeDays:
		report.Status = constants.RotationCritical
	case ageDays >= policy.MaxAgeDays-policy.WarningThresholdDays:
		report.Status = constants.RotationWarning
	default:
		report.Status = constants.RotationHealthy
	}
	return report
}
