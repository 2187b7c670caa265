package database

import (
	"context"
	"errors"
	"fabtracker/schema"

	"github.com/jackc/pgx/v5"
)

type postgresMigrations struct {
	db *Postgres
}

func NewPostgresMigrator(db *Postgres) (*Migrator, error) {
	return newMigrator(&postgresMigrations{db: db}, schema.Files, "postgres")
}

func (t *postgresMigrations) prepareTables(ctx context.Context) error {
	sql := `CREATE TABLE IF NOT EXISTS migrations(
		id SERIAL PRIMARY KEY,
		migration VARCHAR(255) NOT NULL,
		batch INTEGER NOT NULL
	);`

	_, err := t.db.Connection.Exec(ctx, sql)

	return err
}

// Check if migration has been applied.
func (t *postgresMigrations) isMigrated(ctx context.Context, migration string) (bool, error) {
	var isMigrated bool

	sql := "SELECT EXISTS(SELECT 1 FROM migrations WHERE migration = $1);"
	err := t.db.Connection.QueryRow(ctx, sql, migration).Scan(&isMigrated)

	return isMigrated, err
}

// Get latest migration batch number.
func (t *postgresMigrations) latestBatch(ctx context.Context) (int, error) {
	var latestBatch int

	sql := "SELECT batch FROM migrations ORDER BY id DESC LIMIT 1;"
	err := t.db.Connection.QueryRow(ctx, sql).Scan(&latestBatch)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}

	return latestBatch, err
}

func (t *postgresMigrations) batchMigrations(ctx context.Context, batch int) ([]string, error) {
	sql := "SELECT migration FROM migrations WHERE batch = $1 ORDER BY id DESC;"

	rows, err := t.db.Connection.Query(ctx, sql, batch)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Migrate single file within transaction.
func (t *postgresMigrations) apply(ctx context.Context, sql string, migration string, batch int) error {
	transaction, err := t.db.Connection.Begin(ctx)
	if err != nil {
		return err
	}

	defer transaction.Rollback(ctx)

	if _, err := transaction.Exec(ctx, sql); err != nil {
		return err
	}

	insert := "INSERT INTO migrations (migration, batch) VALUES ($1, $2);"

	if _, err := transaction.Exec(ctx, insert, migration, batch); err != nil {
		return err
	}

	return transaction.Commit(ctx)
}

// Rollback single file within transaction.
func (t *postgresMigrations) revert(ctx context.Context, sql string, migration string) error {
	transaction, err := t.db.Connection.Begin(ctx)
	if err != nil {
		return err
	}

	defer transaction.Rollback(ctx)

	if _, err := transaction.Exec(ctx, sql); err != nil {
		return err
	}

	if _, err := transaction.Exec(ctx, "DELETE FROM migrations WHERE migration = $1;", migration); err != nil {
		return err
	}

	return transaction.Commit(ctx)
}
