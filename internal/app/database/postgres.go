package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	Connection *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	return &Postgres{Connection: pool}, nil
}

func (db *Postgres) Ping(ctx context.Context) error {
	return db.Connection.Ping(ctx)
}

func (db *Postgres) CloseConnection() {
	db.Connection.Close()
}
