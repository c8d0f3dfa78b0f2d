package db

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/dataloader/errors"
)

func TestOpen(t *testing.T) {
	t.Run("opens database successfully", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open("sqlite", dbPath, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		var journalMode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", journalMode)

		var foreignKeys int
		require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
		assert.Equal(t, 1, foreignKeys)

		var busyTimeout int
		require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)

		assert.Equal(t, SQLite, DialectOf(db))
	})

	t.Run("empty driver defaults to sqlite", func(t *testing.T) {
		db, err := Open("", filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		_, err := Open("oracle", "x", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oracle")
	})

	t.Run("postgres requires a DSN", func(t *testing.T) {
		_, err := Open("postgres", "", nil)
		require.Error(t, err)
	})

	t.Run("returns error with stack for invalid path", func(t *testing.T) {
		db, err := Open("sqlite", "/invalid/nonexistent/path/db.sqlite", nil)
		if err == nil && db != nil {
			db.Close()
		}
		require.Error(t, err)
		assert.NotNil(t, errors.GetStack(err), "error should have stack trace from errors.Wrap")
	})
}

func TestOpenWithMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := OpenWithMigrations("sqlite", dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"schema_migrations", "resources", "mappings", "mapping_fields", "job_configs", "job_references", "activity_log", "scheduled_deployments"} {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s should exist after migrations", table)
	}
}

func TestMigrate(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open("sqlite", filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil), "running migrations multiple times should be safe")

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
		entries, err := migrations.ReadDir(migrationDir(SQLite))
		require.NoError(t, err)
		assert.Equal(t, len(entries), count)
	})

	t.Run("postgres migrations mirror sqlite", func(t *testing.T) {
		lite, err := migrations.ReadDir(migrationDir(SQLite))
		require.NoError(t, err)
		pg, err := migrations.ReadDir(migrationDir(Postgres))
		require.NoError(t, err)

		require.Equal(t, len(lite), len(pg))
		for i := range lite {
			assert.Equal(t, lite[i].Name(), pg[i].Name())
		}
	})

	t.Run("closed database", func(t *testing.T) {
		db, err := Open("sqlite", filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		err = Migrate(db, nil)
		require.Error(t, err)
		assert.True(t, IsDatabaseClosed(err))
		assert.Contains(t, fmt.Sprintf("%+v", err), "migrate.go")
	})
}
