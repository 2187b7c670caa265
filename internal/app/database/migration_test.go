package database_test

import (
	"bytes"
	"context"
	"fabtracker/internal/app/database"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *database.Sqlite, table string) bool {
	var count int

	err := db.Connection.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&count)
	require.NoError(t, err)

	return count == 1
}

func TestSqliteMigrateAndRollback(t *testing.T) {
	ctx := context.Background()

	db, err := database.NewSqlite(":memory:")
	require.NoError(t, err)
	defer db.CloseConnection()

	migrator, err := database.NewSqliteMigrator(db)
	require.NoError(t, err)

	output := &bytes.Buffer{}
	migrator.SetOutput(output)

	require.NoError(t, migrator.Migrate(ctx))
	assert.Contains(t, output.String(), "create_tracking_tables")
	assert.Contains(t, output.String(), "create_check_locks_table")

	for _, table := range []string{"guilds", "sellers", "subscriptions", "products", "check_locks"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	output.Reset()
	require.NoError(t, migrator.Migrate(ctx))
	assert.Contains(t, output.String(), "Nothing to migrate.")

	output.Reset()
	require.NoError(t, migrator.RollbackMigrations(ctx))
	assert.Contains(t, output.String(), "Rolling back migrations.")
	assert.False(t, tableExists(t, db, "products"))
	assert.False(t, tableExists(t, db, "check_locks"))
	assert.True(t, tableExists(t, db, "migrations"))

	output.Reset()
	require.NoError(t, migrator.RollbackMigrations(ctx))
	assert.Contains(t, output.String(), "Nothing to rollback.")
}

func TestSqliteForeignKeysEnabled(t *testing.T) {
	db := database.NewTestSqlite(t)

	var enabled int
	require.NoError(t, db.Connection.QueryRow("PRAGMA foreign_keys").Scan(&enabled))
	assert.Equal(t, 1, enabled)
}

func TestCreateMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	paths, err := database.CreateMigrationFiles(dir, "AddProductIndex", date)
	require.NoError(t, err)

	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "2026_03_04_050607_add_product_index.up.sql"), paths[0])
	assert.Equal(t, filepath.Join(dir, "2026_03_04_050607_add_product_index.down.sql"), paths[1])

	for _, path := range paths {
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}
}
