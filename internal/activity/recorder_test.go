package activity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/tingly-box/relayadmin/internal/models"
	"gorm.io/gorm"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.ActivityEntry{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewRecorder(db)
}

func TestRecord_AppendsInOrder(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	rec.Record(ctx, models.ActionAddProvider, true, "Provider a added successfully", map[string]any{"name": "a"})
	rec.Record(ctx, models.ActionAddProvider, false, "probe: invalid credential", map[string]any{"name": "b"})
	rec.Record(ctx, models.ActionDeleteProvider, true, "Provider a deleted successfully", nil)

	entries, errQuery := rec.Query(ctx, Filter{})
	if errQuery != nil {
		t.Fatalf("query: %v", errQuery)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Action != models.ActionAddProvider || entries[2].Action != models.ActionDeleteProvider {
		t.Fatalf("entries out of order: %+v", entries)
	}
	if len(entries[0].Details) == 0 {
		t.Fatalf("expected details payload on first entry")
	}
	if len(entries[2].Details) != 0 {
		t.Fatalf("expected no details on third entry")
	}
}

func TestQuery_Filters(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	rec.Record(ctx, models.ActionAddProvider, true, "Provider alpha added successfully", nil)
	rec.Record(ctx, models.ActionDeleteProvider, true, "Provider alpha deleted successfully", nil)
	rec.Record(ctx, models.ActionAddRule, false, "target provider not found", nil)

	byAction, errQuery := rec.Query(ctx, Filter{Action: models.ActionAddProvider})
	if errQuery != nil {
		t.Fatalf("query: %v", errQuery)
	}
	if len(byAction) != 1 || byAction[0].Action != models.ActionAddProvider {
		t.Fatalf("action filter failed: %+v", byAction)
	}

	successOnly, errQuery := rec.Query(ctx, Filter{SuccessOnly: true})
	if errQuery != nil {
		t.Fatalf("query: %v", errQuery)
	}
	if len(successOnly) != 2 {
		t.Fatalf("expected 2 successful entries, got %d", len(successOnly))
	}

	bySearch, errQuery := rec.Query(ctx, Filter{Search: "ALPHA"})
	if errQuery != nil {
		t.Fatalf("query: %v", errQuery)
	}
	if len(bySearch) != 2 {
		t.Fatalf("expected case-insensitive search to hit 2 entries, got %d", len(bySearch))
	}
}

func TestStats(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()
	now := time.Now()

	empty, errStats := rec.Stats(ctx, now)
	if errStats != nil {
		t.Fatalf("stats: %v", errStats)
	}
	if empty != (Stats{}) {
		t.Fatalf("expected zero stats, got %+v", empty)
	}

	rec.Record(ctx, models.ActionAddProvider, true, "ok", nil)
	rec.Record(ctx, models.ActionAddProvider, false, "failed", nil)

	stats, errStats := rec.Stats(ctx, now)
	if errStats != nil {
		t.Fatalf("stats: %v", errStats)
	}
	want := Stats{Total: 2, SuccessCount: 1, ErrorCount: 1, TodayCount: 2}
	if stats != want {
		t.Fatalf("expected %+v, got %+v", want, stats)
	}
}

func TestClear(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	rec.Record(ctx, models.ActionAddProvider, true, "ok", nil)
	if errClear := rec.Clear(ctx); errClear != nil {
		t.Fatalf("clear: %v", errClear)
	}

	entries, errQuery := rec.Query(ctx, Filter{})
	if errQuery != nil {
		t.Fatalf("query: %v", errQuery)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty log after clear, got %d entries", len(entries))
	}
}
