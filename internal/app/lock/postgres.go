package lock

import (
	"context"
	"errors"
	"fabtracker/internal/app/database"
	"fabtracker/internal/app/logger"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Lock rows shared by every process using the same database.
type PostgresLocker struct {
	db         *database.Postgres
	staleAfter time.Duration
	now        func() time.Time
	logger     logger.LoggerInterface
}

func NewPostgresLocker(db *database.Postgres, staleAfter time.Duration, logger logger.LoggerInterface) *PostgresLocker {
	return &PostgresLocker{
		db:         db,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

func (l *PostgresLocker) TryAcquire(ctx context.Context, key string) (Handle, error) {
	currentTime := l.now().UTC()

	handle := Handle{
		Key:        key,
		Token:      newToken(),
		AcquiredAt: currentTime,
	}

	// xmax is set on the conflicting row only when it was updated
	sql := `INSERT INTO check_locks (key, token, acquired_at) VALUES (@key, @token, @acquired_at)
		ON CONFLICT (key) DO UPDATE SET token = EXCLUDED.token, acquired_at = EXCLUDED.acquired_at
		WHERE check_locks.acquired_at <= @stale_before
		RETURNING (xmax <> 0) AS recovered`

	args := pgx.NamedArgs{
		"key":          key,
		"token":        handle.Token,
		"acquired_at":  currentTime,
		"stale_before": currentTime.Add(-l.staleAfter),
	}

	err := l.db.Connection.QueryRow(ctx, sql, args).Scan(&handle.Recovered)
	if errors.Is(err, pgx.ErrNoRows) {
		return Handle{}, ErrBusy
	}

	if err != nil {
		return Handle{}, fmt.Errorf("unable to acquire lock %s: %w", key, err)
	}

	if handle.Recovered {
		reportRecovered(l.logger, handle)
	}

	return handle, nil
}

func (l *PostgresLocker) Release(ctx context.Context, handle Handle) error {
	sql := "DELETE FROM check_locks WHERE key = @key AND token = @token"

	tag, err := l.db.Connection.Exec(ctx, sql, pgx.NamedArgs{"key": handle.Key, "token": handle.Token})
	if err != nil {
		return fmt.Errorf("unable to release lock %s: %w", handle.Key, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotHeld
	}

	return nil
}
