package models

import (
	"time"

	"gorm.io/datatypes"
)

// Action identifiers recorded by mutating operations.
const (
	ActionAddProvider       = "add_provider"
	ActionUpdateProvider    = "update_provider"
	ActionDeleteProvider    = "delete_provider"
	ActionToggleProvider    = "toggle_provider"
	ActionAuthorizeProvider = "authorize_provider"
	ActionRefreshToken      = "refresh_token"
	ActionAddRule           = "add_rule"
	ActionDeleteRule        = "delete_rule"
	ActionUpdateDefaults    = "update_defaults"
)

// ActivityEntry is an immutable audit record. Rows are append-only and only
// removed by a bulk clear.
type ActivityEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key; insertion order equals chronological order.

	Timestamp time.Time      `gorm:"not null;index"`                  // Time the action occurred.
	Action    string         `gorm:"type:varchar(64);not null;index"` // Action identifier.
	Success   bool           `gorm:"not null"`                        // Whether the action succeeded.
	Message   string         `gorm:"type:text"`                       // Human-readable outcome.
	Details   datatypes.JSON `gorm:"type:jsonb"`                      // Structured action details.
}
