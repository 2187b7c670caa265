package database

import (
	"context"
	"io"
	"testing"
)

// Migrated in-memory SQLite database closed with the test.
func NewTestSqlite(t testing.TB) *Sqlite {
	t.Helper()

	db, err := NewSqlite(":memory:")
	if err != nil {
		t.Fatalf("Unable to open test database: %v", err)
	}

	t.Cleanup(db.CloseConnection)

	migrator, err := NewSqliteMigrator(db)
	if err != nil {
		t.Fatalf("Unable to create migrator: %v", err)
	}

	migrator.SetOutput(io.Discard)

	if err := migrator.Migrate(context.Background()); err != nil {
		t.Fatalf("Unable to migrate test database: %v", err)
	}

	return db
}
