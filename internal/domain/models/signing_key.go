package models

import (
	"time"

	"github.com/turtacn/certguard/pkg/constants"
)

// KeyMetadata is the persisted state of the signing key store.
type KeyMetadata struct {
	ActiveVersion int          `json:"activeVersion"`
	Algorithm     string       `json:"algorithm"`
	Versions      []KeyVersion `json:"versions"`
}

// KeyVersion describes one generation of the signing key. Archived versions remain
// available for verifying credentials signed before a rotation.
type KeyVersion struct {
	Version    int        `json:"version"`
	CreatedAt  time.Time  `json:"createdAt"`
	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
}

// Active returns the active version entry.
func (m *KeyMetadata) Active() (KeyVersion, bool) {
	for _, v := range m.Versions {
		if v.Version == m.ActiveVersion {
			return v, true
		}
	}
	return KeyVersion{}, false
}

// RotationPolicy bounds the age of the active key.
type RotationPolicy struct {
	MaxAgeDays           int
	WarningThresholdDays int
}

// RotationReport is the health of the active key at a point in time.
type RotationReport struct {
	Status            constants.RotationStatus `json:"status"`
	ActiveVersion     int                      `json:"activeVersion"`
	CreatedAt         *time.Time               `json:"createdAt,omitempty"`
	AgeDays           int                      `json:"ageDays"`
	DaysUntilCritical int                      `json:"daysUntilCritical"`
}
