package notification

import (
	"context"
	"fabtracker/internal/app/guild"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	Url         string
	Color       int
	Fields      []Field
	ImageUrl    string
	Footer      string
	Timestamp   time.Time
}

// Rendered message ready to be posted to a channel.
type Message struct {
	ChannelId string
	Content   string
	Embed     Embed
	// Cross-post to followers when the channel is an announcement one.
	Announce bool
}

type Notification struct {
	Id         uuid.UUID
	GuildId    string
	Type       guild.NotificationType
	Payload    Message
	EnqueuedAt time.Time
}

type SentMessage struct {
	Id        string
	ChannelId string
}

type Sender interface {
	Send(ctx context.Context, message Message) (SentMessage, error)
	IsAnnouncementChannel(ctx context.Context, channelId string) (bool, error)
	Crosspost(ctx context.Context, channelId string, messageId string) error
}

// Send failure a sender can classify.
type DeliveryError interface {
	error
	// Retrying can't succeed, e.g. access to the channel was lost.
	IsPermanent() bool
	// Minimum wait before retrying, zero when unknown.
	Backoff() time.Duration
}

// Notification dropped after exhausting its delivery attempts.
type DispatchFailure struct {
	Notification Notification
	Attempts     int
	Err          error
}

func (f *DispatchFailure) Error() string {
	return fmt.Sprintf(
		"notification %s of guild %s dropped after %d attempt(s): %v",
		f.Notification.Id, f.Notification.GuildId, f.Attempts, f.Err,
	)
}

func (f *DispatchFailure) Unwrap() error {
	return f.Err
}
