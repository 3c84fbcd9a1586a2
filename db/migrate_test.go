package db

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ghostwrite/errors"
)

func TestOpenWithMigrations(t *testing.T) {
	t.Run("creates every table", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		for _, table := range []string{"schema_migrations", "ai_model_usage", "completion_events"} {
			var n int
			err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
			require.NoError(t, err)
			assert.Equal(t, 1, n, table)
		}

		var applied int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
		assert.Equal(t, 3, applied)
	})

	t.Run("open errors carry stack traces", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		first, err := Open(dbPath, nil)
		require.NoError(t, err)
		first.Close()

		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		require.NoError(t, os.Chmod(tmpDir, 0555))
		defer os.Chmod(tmpDir, 0755)

		db, err := OpenWithMigrations(dbPath, nil)
		require.Error(t, err)
		assert.Nil(t, db)
		assert.NotNil(t, errors.GetReportableStackTrace(err))
		assert.Contains(t, fmt.Sprintf("%+v", err), "connection.go")
	})
}

func TestMigrate(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil), "running migrations twice should be safe")

		var applied int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
		assert.Equal(t, 3, applied)
	})

	t.Run("fails on closed database", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		assert.Error(t, Migrate(db, nil))
	})
}
