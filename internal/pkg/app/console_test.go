package app

import (
	"bytes"
	"context"
	"fabtracker/internal/app/config"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsole(t *testing.T) (ConsoleApp, *bytes.Buffer) {
	output := &bytes.Buffer{}

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver:     config.DriverSqlite,
			SqlitePath: filepath.Join(t.TempDir(), "data", "fabtracker.db"),
		},
	}

	return ConsoleApp{config: cfg, output: output}, output
}

func TestIsConsoleMode(t *testing.T) {
	assert.True(t, IsConsoleMode([]string{ConsoleAppKeyword, "migrate"}))
	assert.False(t, IsConsoleMode([]string{ConsoleAppKeyword}))
	assert.False(t, IsConsoleMode([]string{"migrate", "now"}))
	assert.False(t, IsConsoleMode(nil))
}

func TestConsoleMigrateAndRollback(t *testing.T) {
	ctx := context.Background()
	console, output := newTestConsole(t)

	require.NoError(t, console.Run(ctx, []string{ConsoleAppKeyword, "migrate"}))
	assert.Contains(t, output.String(), "Running migrations.")
	assert.Contains(t, output.String(), "create_tracking_tables")

	output.Reset()
	require.NoError(t, console.Run(ctx, []string{ConsoleAppKeyword, "migrate"}))
	assert.Contains(t, output.String(), "Nothing to migrate.")

	output.Reset()
	require.NoError(t, console.Run(ctx, []string{ConsoleAppKeyword, "migrate:rollback"}))
	assert.Contains(t, output.String(), "Rolling back migrations.")
}

func TestConsoleRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	console, _ := newTestConsole(t)

	assert.EqualError(t, console.Run(ctx, []string{ConsoleAppKeyword}), "not enough arguments")
	assert.EqualError(t, console.Run(ctx, []string{"abracadabra", "migrate"}), "invalid keyword")
	assert.EqualError(t, console.Run(ctx, []string{ConsoleAppKeyword, "seed"}), `unknown command "seed"`)
	assert.EqualError(t, console.Run(ctx, []string{ConsoleAppKeyword, "create:migration", " "}), "no migration name given")
}
