package lock_test

import (
	"context"
	"fabtracker/internal/app/database"
	"fabtracker/internal/app/lock"
	"fabtracker/internal/app/logger"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const staleAfter = 2 * time.Hour

type clock struct {
	mutex   sync.Mutex
	current time.Time
}

func (c *clock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.current
}

func (c *clock) Advance(duration time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.current = c.current.Add(duration)
}

func newClock() *clock {
	return &clock{current: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func lockers(t *testing.T, now func() time.Time) map[string]lock.Locker {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	testLogger := logger.NewTestLogger(t)

	return map[string]lock.Locker{
		"memory": lock.NewMemoryLocker(staleAfter, testLogger).WithClock(now),
		"redis":  lock.NewRedisLocker(client, staleAfter, testLogger).WithClock(now),
		"sqlite": lock.NewSqliteLocker(database.NewTestSqlite(t), staleAfter, testLogger).WithClock(now),
	}
}

func TestMutualExclusion(t *testing.T) {
	ctx := context.Background()
	c := newClock()

	for name, locker := range lockers(t, c.Now) {
		t.Run(name, func(t *testing.T) {
			handle, err := locker.TryAcquire(ctx, lock.GuildKey("1"))
			require.NoError(t, err)
			assert.False(t, handle.Recovered)

			_, err = locker.TryAcquire(ctx, lock.GuildKey("1"))
			assert.ErrorIs(t, err, lock.ErrBusy)

			other, err := locker.TryAcquire(ctx, lock.GuildKey("2"))
			require.NoError(t, err)
			require.NoError(t, locker.Release(ctx, other))

			require.NoError(t, locker.Release(ctx, handle))

			again, err := locker.TryAcquire(ctx, lock.GuildKey("1"))
			require.NoError(t, err)
			assert.NotEqual(t, handle.Token, again.Token)
			require.NoError(t, locker.Release(ctx, again))
		})
	}
}

func TestStaleRecovery(t *testing.T) {
	ctx := context.Background()
	c := newClock()

	for name, locker := range lockers(t, c.Now) {
		t.Run(name, func(t *testing.T) {
			key := lock.SellerKey("fab.com/sellers/" + name)

			stale, err := locker.TryAcquire(ctx, key)
			require.NoError(t, err)

			c.Advance(staleAfter - time.Minute)

			_, err = locker.TryAcquire(ctx, key)
			assert.ErrorIs(t, err, lock.ErrBusy)

			c.Advance(time.Minute)

			recovered, err := locker.TryAcquire(ctx, key)
			require.NoError(t, err)
			assert.True(t, recovered.Recovered)

			// stale holder lost ownership and can't release the new one
			assert.ErrorIs(t, locker.Release(ctx, stale), lock.ErrNotHeld)
			require.NoError(t, locker.Release(ctx, recovered))
		})
	}
}

func TestReleaseUnknownHandle(t *testing.T) {
	ctx := context.Background()
	c := newClock()

	for name, locker := range lockers(t, c.Now) {
		t.Run(name, func(t *testing.T) {
			err := locker.Release(ctx, lock.Handle{Key: lock.GuildKey("404"), Token: "missing"})
			assert.ErrorIs(t, err, lock.ErrNotHeld)
		})
	}
}

func TestConcurrentAcquireHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	c := newClock()

	for name, locker := range lockers(t, c.Now) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			var mutex sync.Mutex

			winners := 0

			for i := 0; i < 8; i++ {
				wg.Add(1)

				go func() {
					defer wg.Done()

					if _, err := locker.TryAcquire(ctx, lock.GuildKey("race")); err == nil {
						mutex.Lock()
						winners++
						mutex.Unlock()
					}
				}()
			}

			wg.Wait()

			assert.Equal(t, 1, winners)
		})
	}
}
