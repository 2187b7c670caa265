package lock

import (
	"context"
	"fabtracker/internal/app/logger"
	"fabtracker/internal/app/metrics"
	"sync"
	"time"
)

type MemoryLocker struct {
	mutex      sync.Mutex
	holders    map[string]Handle
	staleAfter time.Duration
	now        func() time.Time
	logger     logger.LoggerInterface
}

func NewMemoryLocker(staleAfter time.Duration, logger logger.LoggerInterface) *MemoryLocker {
	return &MemoryLocker{
		holders:    map[string]Handle{},
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// Replace time source.
func (l *MemoryLocker) WithClock(now func() time.Time) *MemoryLocker {
	l.now = now
	return l
}

func (l *MemoryLocker) TryAcquire(ctx context.Context, key string) (Handle, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	currentTime := l.now()
	recovered := false

	if holder, ok := l.holders[key]; ok {
		if currentTime.Sub(holder.AcquiredAt) < l.staleAfter {
			return Handle{}, ErrBusy
		}

		recovered = true
	}

	handle := Handle{
		Key:        key,
		Token:      newToken(),
		AcquiredAt: currentTime,
		Recovered:  recovered,
	}

	l.holders[key] = handle

	if recovered {
		reportRecovered(l.logger, handle)
	}

	return handle, nil
}

func (l *MemoryLocker) Release(ctx context.Context, handle Handle) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	holder, ok := l.holders[handle.Key]
	if !ok || holder.Token != handle.Token {
		return ErrNotHeld
	}

	delete(l.holders, handle.Key)

	return nil
}

func reportRecovered(logger logger.LoggerInterface, handle Handle) {
	metrics.StaleLocksRecovered.Inc()
	logger.Warn("Recovered stale lock", handle.Key)
}
