package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/vibewatch/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// every pooled connection to :memory: would open a fresh database
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(context.Background(), db, shared.DialectSQLite, nil); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestIsUniqueViolation(t *testing.T) {
	db := setupTestDB(t)

	insert := `INSERT INTO user_items (user_id, item_key, type, value, updated_at) VALUES ('u1', 'k', 'watched', '{}', CURRENT_TIMESTAMP)`
	if _, err := db.Exec(insert); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	_, err := db.Exec(insert)
	if !isUniqueViolation(err) {
		t.Errorf("expected unique violation, got %v", err)
	}

	if isUniqueViolation(nil) {
		t.Error("nil is not a violation")
	}
	if isUniqueViolation(errors.New("disk I/O error")) {
		t.Error("unrelated errors are not violations")
	}
}

func TestPlaceholders(t *testing.T) {
	if got := placeholders(3); got != "?, ?, ?" {
		t.Errorf("placeholders(3) = %q", got)
	}
	if got := placeholders(0); got != "" {
		t.Errorf("placeholders(0) = %q", got)
	}
}
