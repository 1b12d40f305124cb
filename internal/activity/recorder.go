// Package activity keeps the append-only audit log of mutating operations.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	dbutil "github.com/tingly-box/relayadmin/internal/db"
	"github.com/tingly-box/relayadmin/internal/models"
	"gorm.io/gorm"
)

// Recorder appends audit entries and serves read-side queries. Appends are
// best-effort: a recorder failure must never abort the triggering operation.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder constructs a Recorder backed by GORM.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends one audit entry. Failures are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, action string, success bool, message string, details map[string]any) {
	if r == nil || r.db == nil {
		return
	}

	var payload []byte
	if len(details) > 0 {
		encoded, errMarshal := json.Marshal(details)
		if errMarshal != nil {
			log.WithError(errMarshal).Warn("activity: failed to encode details")
		} else {
			payload = encoded
		}
	}

	entry := models.ActivityEntry{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Success:   success,
		Message:   message,
		Details:   payload,
	}
	if errCreate := r.db.WithContext(ctx).Create(&entry).Error; errCreate != nil {
		log.WithError(errCreate).WithField("action", action).Warn("activity: failed to append entry")
	}
}

// Filter narrows Query results. All set fields apply conjunctively.
type Filter struct {
	Search      string // Case-insensitive substring match on action and message.
	Action      string // Exact action identifier.
	SuccessOnly bool   // Keep only successful entries.
}

// Query returns matching entries in insertion order.
func (r *Recorder) Query(ctx context.Context, filter Filter) ([]models.ActivityEntry, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("activity: not initialized")
	}

	q := r.db.WithContext(ctx).Model(&models.ActivityEntry{})
	if action := strings.TrimSpace(filter.Action); action != "" {
		q = q.Where("action = ?", action)
	}
	if filter.SuccessOnly {
		q = q.Where("success = ?", true)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := dbutil.NormalizeLikePattern(r.db, "%"+search+"%")
		q = q.Where(
			dbutil.CaseInsensitiveLikeExpr(r.db, "action")+" OR "+dbutil.CaseInsensitiveLikeExpr(r.db, "message"),
			pattern,
			pattern,
		)
	}

	var rows []models.ActivityEntry
	if errFind := q.Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("activity: query: %w", errFind)
	}
	return rows, nil
}

// Stats summarizes the current log contents.
type Stats struct {
	Total        int `json:"total"`         // All entries.
	SuccessCount int `json:"success_count"` // Entries with success=true.
	ErrorCount   int `json:"error_count"`   // Entries with success=false.
	TodayCount   int `json:"today_count"`   // Entries from the caller's current calendar day.
}

// Stats computes log totals in a single pass. Today is evaluated against the
// calendar day of now in its own location.
func (r *Recorder) Stats(ctx context.Context, now time.Time) (Stats, error) {
	if r == nil || r.db == nil {
		return Stats{}, fmt.Errorf("activity: not initialized")
	}

	var rows []models.ActivityEntry
	if errFind := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; errFind != nil {
		return Stats{}, fmt.Errorf("activity: load entries: %w", errFind)
	}

	loc := now.Location()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	todayEnd := todayStart.Add(24 * time.Hour)

	out := Stats{Total: len(rows)}
	for _, row := range rows {
		if row.Success {
			out.SuccessCount++
		} else {
			out.ErrorCount++
		}
		ts := row.Timestamp.In(loc)
		if !ts.Before(todayStart) && ts.Before(todayEnd) {
			out.TodayCount++
		}
	}
	return out, nil
}

// Clear bulk-deletes every entry. Individual entries are never deleted.
func (r *Recorder) Clear(ctx context.Context) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("activity: not initialized")
	}
	if errDelete := r.db.WithContext(ctx).Where("1 = 1").Delete(&models.ActivityEntry{}).Error; errDelete != nil {
		return fmt.Errorf("activity: clear: %w", errDelete)
	}
	return nil
}
