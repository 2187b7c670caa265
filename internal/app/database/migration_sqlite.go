package database

import (
	"context"
	"database/sql"
	"errors"
	"fabtracker/schema"
)

type sqliteMigrations struct {
	db *Sqlite
}

func NewSqliteMigrator(db *Sqlite) (*Migrator, error) {
	return newMigrator(&sqliteMigrations{db: db}, schema.Files, "sqlite")
}

func (t *sqliteMigrations) prepareTables(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS migrations(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		migration TEXT NOT NULL,
		batch INTEGER NOT NULL
	);`

	_, err := t.db.Connection.ExecContext(ctx, query)

	return err
}

func (t *sqliteMigrations) isMigrated(ctx context.Context, migration string) (bool, error) {
	var isMigrated bool

	query := "SELECT EXISTS(SELECT 1 FROM migrations WHERE migration = ?);"
	err := t.db.Connection.QueryRowContext(ctx, query, migration).Scan(&isMigrated)

	return isMigrated, err
}

func (t *sqliteMigrations) latestBatch(ctx context.Context) (int, error) {
	var latestBatch int

	query := "SELECT batch FROM migrations ORDER BY id DESC LIMIT 1;"
	err := t.db.Connection.QueryRowContext(ctx, query).Scan(&latestBatch)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	return latestBatch, err
}

func (t *sqliteMigrations) batchMigrations(ctx context.Context, batch int) ([]string, error) {
	query := "SELECT migration FROM migrations WHERE batch = ? ORDER BY id DESC;"

	rows, err := t.db.Connection.QueryContext(ctx, query, batch)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var migrations []string

	for rows.Next() {
		var migration string
		if err := rows.Scan(&migration); err != nil {
			return nil, err
		}

		migrations = append(migrations, migration)
	}

	return migrations, rows.Err()
}

func (t *sqliteMigrations) apply(ctx context.Context, query string, migration string, batch int) error {
	return t.inTransaction(ctx, query, "INSERT INTO migrations (migration, batch) VALUES (?, ?);", migration, batch)
}

func (t *sqliteMigrations) revert(ctx context.Context, query string, migration string) error {
	return t.inTransaction(ctx, query, "DELETE FROM migrations WHERE migration = ?;", migration)
}

// Run migration body and bookkeeping statement as one transaction.
func (t *sqliteMigrations) inTransaction(ctx context.Context, body string, bookkeeping string, args ...any) error {
	transaction, err := t.db.Connection.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer transaction.Rollback()

	if _, err := transaction.ExecContext(ctx, body); err != nil {
		return err
	}

	if _, err := transaction.ExecContext(ctx, bookkeeping, args...); err != nil {
		return err
	}

	return transaction.Commit()
}
