package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n))
	return n > 0
}

func TestMigrations(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	defer db.Close()
	migrations := MigrationsFS()

	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(migrations))
	latest, err := LatestMigrationVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)

	version, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.True(t, tableExists(t, db, "gps_fixes"))
	assert.True(t, tableExists(t, db, "events"))

	// second run is a no-op
	require.NoError(t, db.MigrateUp(migrations))

	require.NoError(t, db.MigrateDown(migrations))
	assert.False(t, tableExists(t, db, "events"))
	assert.True(t, tableExists(t, db, "gps_fixes"))

	require.NoError(t, db.MigrateForce(migrations, 2))
	version, dirty, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

func TestNewDB_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, path, db.Path())
}
