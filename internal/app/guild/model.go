package guild

import (
	"errors"
	"fabtracker/internal/app/helpers"
	"fabtracker/internal/app/marketplace"
	"fmt"
	"strings"
	"time"

	"github.com/stoewer/go-strcase"
)

var (
	ErrNotFound                = errors.New("guild not found")
	ErrUnknownNotificationType = errors.New("unknown notification type")
)

type NotificationType string

const (
	NotificationNew     NotificationType = "new"
	NotificationUpdated NotificationType = "updated"
	NotificationWarning NotificationType = "warning"
)

var NotificationTypes = []NotificationType{NotificationNew, NotificationUpdated, NotificationWarning}

// Parse user supplied type name ("New", "updated", "WARNING").
func ParseNotificationType(value string) (NotificationType, error) {
	key := NotificationType(strcase.SnakeCase(strings.TrimSpace(value)))

	for _, notificationType := range NotificationTypes {
		if key == notificationType {
			return key, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownNotificationType, value)
}

type MentionRule struct {
	Enabled bool     `json:"enabled"`
	Roles   []string `json:"roles"`
}

type Defaults struct {
	Timezone string
	Language string
	Currency string
}

// Tenant (Discord guild) settings.
type Config struct {
	Id                   string
	Timezone             string
	Language             string
	Currency             string
	Frequency            Frequency
	Channels             map[NotificationType]string
	Mentions             map[NotificationType]MentionRule
	PublishAnnouncements bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func NewConfig(id string, defaults Defaults) Config {
	return Config{
		Id:        id,
		Timezone:  defaults.Timezone,
		Language:  defaults.Language,
		Currency:  defaults.Currency,
		Frequency: DefaultFrequency(),
		Channels:  map[NotificationType]string{},
		Mentions:  map[NotificationType]MentionRule{},
	}
}

func (c *Config) Location() *time.Location {
	return helpers.LoadLocation(c.Timezone)
}

// Next due time strictly after given moment.
func (c *Config) NextDueAt(after time.Time) time.Time {
	return c.Frequency.Next(after, c.Location())
}

// Destination channel, warnings fall back to the updated then the new channel.
func (c *Config) ChannelFor(notificationType NotificationType) string {
	if channel := c.Channels[notificationType]; channel != "" {
		return channel
	}

	if notificationType == NotificationWarning {
		if channel := c.Channels[NotificationUpdated]; channel != "" {
			return channel
		}

		return c.Channels[NotificationNew]
	}

	return ""
}

// Roles to mention for notification type, empty when mentions are disabled.
func (c *Config) MentionsFor(notificationType NotificationType) []string {
	rule, ok := c.Mentions[notificationType]
	if !ok || !rule.Enabled {
		return nil
	}

	return rule.Roles
}

func (c *Config) SetChannel(notificationType NotificationType, channelId string) {
	if c.Channels == nil {
		c.Channels = map[NotificationType]string{}
	}

	if channelId == "" {
		delete(c.Channels, notificationType)
		return
	}

	c.Channels[notificationType] = channelId
}

func (c *Config) SetMention(notificationType NotificationType, rule MentionRule) {
	if c.Mentions == nil {
		c.Mentions = map[NotificationType]MentionRule{}
	}

	c.Mentions[notificationType] = rule
}

type Subscription struct {
	GuildId   string
	SellerId  marketplace.SellerIdentity
	CreatedAt time.Time
}
