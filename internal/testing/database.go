package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/teranos/ghostwrite/db"
)

// CreateTestDB creates a migrated SQLite database in a temp directory.
// A file is used rather than :memory: so pooled connections share one schema.
// Cleanup is registered via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "ghostwrite-test.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}
