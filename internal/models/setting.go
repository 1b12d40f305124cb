package models

import "gorm.io/datatypes"

// Setting stores a keyed JSON configuration value.
type Setting struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Key   string         `gorm:"type:varchar(255);not null;uniqueIndex"` // Setting key.
	Value datatypes.JSON `gorm:"type:jsonb"`                             // JSON value payload.
}

// SettingKeyRoutingDefaults holds the process-wide routing defaults.
const SettingKeyRoutingDefaults = "routing-defaults"

// RoutingDefaults is the process-wide default routing configuration.
// Empty strings mean unset.
type RoutingDefaults struct {
	DefaultProvider string `json:"default_provider"` // Provider name used without a matching rule.
	DefaultModel    string `json:"default_model"`    // Model used without a matching rule.
	RequestModel    string `json:"request_model"`    // Exposed request model name.
	ResponseModel   string `json:"response_model"`   // Exposed response model name.
}
