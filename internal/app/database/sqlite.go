package database

import (
	"context"
	"database/sql"
	"fabtracker/internal/app/helpers"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

type Sqlite struct {
	Connection *sql.DB
}

// Open SQLite database file (":memory:" for a private in-memory database).
func NewSqlite(path string) (*Sqlite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("unable to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", helpers.ConcatStrings("file:", path, "?", sqlitePragmas))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}

	// single writer, also keeps in-memory database alive between queries
	db.SetMaxOpenConns(1)

	return &Sqlite{Connection: db}, nil
}

func (db *Sqlite) Ping(ctx context.Context) error {
	return db.Connection.PingContext(ctx)
}

func (db *Sqlite) CloseConnection() {
	db.Connection.Close()
}
