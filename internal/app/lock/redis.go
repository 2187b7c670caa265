package lock

import (
	"context"
	"errors"
	"fabtracker/internal/app/logger"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "fabtracker:lock:"

// Value is "<token>:<acquired at, unix ms>". Returns 1 acquired, 2 stale holder replaced, 0 busy.
var acquireScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current then
	local separator = string.find(current, ":[^:]*$")
	local acquiredAt = tonumber(string.sub(current, separator + 1))
	if acquiredAt and tonumber(ARGV[2]) - acquiredAt < tonumber(ARGV[3]) then
		return 0
	end
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[4])
	return 2
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[4])
return 1
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client     redis.UniversalClient
	staleAfter time.Duration
	now        func() time.Time
	logger     logger.LoggerInterface
}

func NewRedisLocker(client redis.UniversalClient, staleAfter time.Duration, logger logger.LoggerInterface) *RedisLocker {
	return &RedisLocker{
		client:     client,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

func (l *RedisLocker) WithClock(now func() time.Time) *RedisLocker {
	l.now = now
	return l
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (Handle, error) {
	currentTime := l.now()

	handle := Handle{
		Key:        key,
		Token:      newToken(),
		AcquiredAt: currentTime,
	}

	// expiry only cleans keys of crashed holders, staleness is decided by the script
	expiry := 2 * l.staleAfter

	result, err := acquireScript.Run(
		ctx,
		l.client,
		[]string{redisKeyPrefix + key},
		encodeRedisValue(handle),
		currentTime.UnixMilli(),
		l.staleAfter.Milliseconds(),
		expiry.Milliseconds(),
	).Int()

	if err != nil {
		return Handle{}, fmt.Errorf("unable to acquire lock %s: %w", key, err)
	}

	switch result {
	case 0:
		return Handle{}, ErrBusy
	case 2:
		handle.Recovered = true
		reportRecovered(l.logger, handle)
	}

	return handle, nil
}

func (l *RedisLocker) Release(ctx context.Context, handle Handle) error {
	deleted, err := releaseScript.Run(ctx, l.client, []string{redisKeyPrefix + handle.Key}, encodeRedisValue(handle)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("unable to release lock %s: %w", handle.Key, err)
	}

	if deleted == 0 {
		return ErrNotHeld
	}

	return nil
}

func encodeRedisValue(handle Handle) string {
	return handle.Token + ":" + strconv.FormatInt(handle.AcquiredAt.UnixMilli(), 10)
}
