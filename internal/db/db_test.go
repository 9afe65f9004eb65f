package db_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/quill/internal/db"
)

func TestOpen_FreshDatabaseIsCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "quill.db")

	conn, err := db.Open(path)
	require.NoError(t, err)
	defer conn.Close()

	v, err := db.CurrentVersion(conn)
	require.NoError(t, err)
	assert.Equal(t, db.LatestVersion(), v)

	var fk int
	require.NoError(t, conn.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var mode string
	require.NoError(t, conn.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.db")

	first, err := db.Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := db.Open(path)
	require.NoError(t, err)
	defer second.Close()

	var count int
	require.NoError(t, second.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, db.LatestVersion(), count)
}

func TestRunMigrations_UpgradesUnversionedDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	raw, err := sql.Open("sqlite3", db.DSN(path))
	require.NoError(t, err)
	defer raw.Close()

	_, err = raw.Exec(db.GetSchemaSQL())
	require.NoError(t, err)

	require.NoError(t, db.RunMigrations(raw))

	v, err := db.CurrentVersion(raw)
	require.NoError(t, err)
	assert.Equal(t, db.LatestVersion(), v)

	// Running again applies nothing.
	require.NoError(t, db.RunMigrations(raw))
}
