package models

import "time"

// RuleMatchAny is the wildcard match-model value.
const RuleMatchAny = "*"

// Rule is a scenario-scoped routing override.
type Rule struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UUID           string `gorm:"type:varchar(64);not null;uniqueIndex"` // Opaque identifier.
	Scenario       string `gorm:"type:varchar(64);not null;index"`       // Scenario name (openai, anthropic, claude_code).
	MatchModel     string `gorm:"type:varchar(255);not null"`            // Requested model to match, "*" matches any.
	TargetProvider string `gorm:"type:text;not null;index"`              // Target provider name.
	TargetModel    string `gorm:"type:varchar(255);not null"`            // Model sent upstream.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp; evaluation order.
}

// Matches reports whether the rule applies to the requested model.
func (r *Rule) Matches(requestedModel string) bool {
	return r.MatchModel == RuleMatchAny || r.MatchModel == requestedModel
}
