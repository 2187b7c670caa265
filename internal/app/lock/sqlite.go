package lock

import (
	"context"
	"database/sql"
	"errors"
	"fabtracker/internal/app/database"
	"fabtracker/internal/app/helpers"
	"fabtracker/internal/app/logger"
	"fmt"
	"time"
)

type SqliteLocker struct {
	db         *database.Sqlite
	staleAfter time.Duration
	now        func() time.Time
	logger     logger.LoggerInterface
}

func NewSqliteLocker(db *database.Sqlite, staleAfter time.Duration, logger logger.LoggerInterface) *SqliteLocker {
	return &SqliteLocker{
		db:         db,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

func (l *SqliteLocker) WithClock(now func() time.Time) *SqliteLocker {
	l.now = now
	return l
}

func (l *SqliteLocker) TryAcquire(ctx context.Context, key string) (Handle, error) {
	currentTime := l.now().UTC().Truncate(time.Second)

	handle := Handle{
		Key:        key,
		Token:      newToken(),
		AcquiredAt: currentTime,
	}

	transaction, err := l.db.Connection.BeginTx(ctx, nil)
	if err != nil {
		return Handle{}, err
	}

	defer transaction.Rollback()

	var acquiredAt string

	err = transaction.QueryRowContext(ctx, "SELECT acquired_at FROM check_locks WHERE key = ?", key).Scan(&acquiredAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = transaction.ExecContext(
			ctx,
			"INSERT INTO check_locks (key, token, acquired_at) VALUES (?, ?, ?)",
			key, handle.Token, helpers.TimeToDatabase(currentTime),
		)
	case err != nil:
		return Handle{}, fmt.Errorf("unable to read lock %s: %w", key, err)
	default:
		heldSince, parseErr := helpers.TimeFromDatabase(acquiredAt)
		if parseErr == nil && currentTime.Sub(heldSince) < l.staleAfter {
			return Handle{}, ErrBusy
		}

		handle.Recovered = true

		_, err = transaction.ExecContext(
			ctx,
			"UPDATE check_locks SET token = ?, acquired_at = ? WHERE key = ?",
			handle.Token, helpers.TimeToDatabase(currentTime), key,
		)
	}

	if err != nil {
		return Handle{}, fmt.Errorf("unable to acquire lock %s: %w", key, err)
	}

	if err := transaction.Commit(); err != nil {
		return Handle{}, fmt.Errorf("unable to acquire lock %s: %w", key, err)
	}

	if handle.Recovered {
		reportRecovered(l.logger, handle)
	}

	return handle, nil
}

func (l *SqliteLocker) Release(ctx context.Context, handle Handle) error {
	result, err := l.db.Connection.ExecContext(ctx, "DELETE FROM check_locks WHERE key = ? AND token = ?", handle.Key, handle.Token)
	if err != nil {
		return fmt.Errorf("unable to release lock %s: %w", handle.Key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return ErrNotHeld
	}

	return nil
}
