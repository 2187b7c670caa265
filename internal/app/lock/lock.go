package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBusy    = errors.New("lock is busy")
	ErrNotHeld = errors.New("lock is not held")
)

// Proof of ownership returned by a successful acquire.
type Handle struct {
	Key        string
	Token      string
	AcquiredAt time.Time
	// Previous holder exceeded the stale threshold and was taken over.
	Recovered bool
}

type Locker interface {
	// Acquire without waiting, ErrBusy when held by someone else.
	TryAcquire(ctx context.Context, key string) (Handle, error)
	// Release held lock, ErrNotHeld when the handle lost ownership.
	Release(ctx context.Context, handle Handle) error
}

func GuildKey(guildId string) string {
	return "guild:" + guildId
}

func SellerKey(sellerId string) string {
	return "seller:" + sellerId
}

func newToken() string {
	return uuid.NewString()
}
