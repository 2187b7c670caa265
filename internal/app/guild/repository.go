package guild

import (
	"context"
	"encoding/json"
	"fabtracker/internal/app/marketplace"
)

type Repository interface {
	FindById(ctx context.Context, id string) (Config, error)
	FindAll(ctx context.Context) ([]Config, error)
	Save(ctx context.Context, config Config) (Config, error)
	// Load config (initial when not stored yet), mutate and save it in one transaction.
	Update(ctx context.Context, initial Config, mutate func(config *Config) error) (Config, error)
	// Returns false when the subscription already existed.
	Subscribe(ctx context.Context, guildId string, sellerId marketplace.SellerIdentity) (bool, error)
	// Returns false when there was nothing to remove.
	Unsubscribe(ctx context.Context, guildId string, sellerId marketplace.SellerIdentity) (bool, error)
	FindSubscriptions(ctx context.Context, guildId string) ([]Subscription, error)
	FindSubscriptionsPaginated(ctx context.Context, guildId string, page int, perPage int) ([]Subscription, error)
	CountSubscriptions(ctx context.Context, guildId string) (int, error)
	FindSubscribers(ctx context.Context, sellerId marketplace.SellerIdentity) ([]Config, error)
	CountSubscribers(ctx context.Context, sellerId marketplace.SellerIdentity) (int, error)
}

type configRow struct {
	channels []byte
	mentions []byte
}

func (r configRow) decode(config *Config) error {
	config.Channels = map[NotificationType]string{}
	config.Mentions = map[NotificationType]MentionRule{}

	if len(r.channels) > 0 {
		if err := json.Unmarshal(r.channels, &config.Channels); err != nil {
			return err
		}
	}

	if len(r.mentions) > 0 {
		if err := json.Unmarshal(r.mentions, &config.Mentions); err != nil {
			return err
		}
	}

	return nil
}

func encodeConfig(config Config) (configRow, error) {
	channels, err := json.Marshal(nonNilMap(config.Channels))
	if err != nil {
		return configRow{}, err
	}

	mentions, err := json.Marshal(nonNilMap(config.Mentions))
	if err != nil {
		return configRow{}, err
	}

	return configRow{channels: channels, mentions: mentions}, nil
}

func nonNilMap[V any](value map[NotificationType]V) map[NotificationType]V {
	if value == nil {
		return map[NotificationType]V{}
	}

	return value
}
