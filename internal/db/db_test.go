package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tingly-box/relayadmin/internal/models"
	"gorm.io/gorm"
)

func TestOpenAndMigrate_SQLite(t *testing.T) {
	conn, errOpen := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %s", DialectName(conn))
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	// Migration seeds the routing defaults setting row.
	var count int64
	if errCount := conn.Model(&models.Setting{}).
		Where("key = ?", models.SettingKeyRoutingDefaults).
		Count(&count).Error; errCount != nil {
		t.Fatalf("count settings: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected seeded defaults row, got %d", count)
	}

	// Re-running the migration must not duplicate the seed.
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}
	if errCount := conn.Model(&models.Setting{}).
		Where("key = ?", models.SettingKeyRoutingDefaults).
		Count(&count).Error; errCount != nil {
		t.Fatalf("count settings: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected single defaults row after second migrate, got %d", count)
	}
}

func TestCaseInsensitiveLikeExpr(t *testing.T) {
	conn, errOpen := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}

	if got := CaseInsensitiveLikeExpr(conn, "message"); got != "LOWER(message) LIKE ?" {
		t.Fatalf("unexpected sqlite expr %q", got)
	}
	if got := NormalizeLikePattern(conn, "%Alpha%"); got != "%alpha%" {
		t.Fatalf("unexpected sqlite pattern %q", got)
	}
}

func TestIsDuplicateKey(t *testing.T) {
	if IsDuplicateKey(nil) {
		t.Fatalf("nil is not a duplicate key error")
	}
	if !IsDuplicateKey(gorm.ErrDuplicatedKey) {
		t.Fatalf("gorm duplicate key error not detected")
	}
	if !IsDuplicateKey(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("postgres unique violation not detected")
	}
	if IsDuplicateKey(errors.New("connection reset")) {
		t.Fatalf("unrelated error misclassified")
	}
	if !IsDuplicateKey(errors.New("UNIQUE constraint failed: providers.uuid")) {
		t.Fatalf("sqlite unique constraint message not detected")
	}
}
