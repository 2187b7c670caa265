package guild

import (
	"context"
	"errors"
	"fabtracker/internal/app/core"
	"fabtracker/internal/app/database"
	"fabtracker/internal/app/marketplace"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const configColumns = `g.id, g.timezone, g.language, g.currency,
	g.frequency_kind, g.frequency_weekday, g.frequency_day, g.frequency_hour, g.frequency_minute,
	g.channels, g.mentions, g.publish_announcements, g.created_at, g.updated_at`

type PostgresRepository struct {
	db *database.Postgres
}

func NewPostgresRepository(db *database.Postgres) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Find guild config by id.
func (r *PostgresRepository) FindById(ctx context.Context, id string) (Config, error) {
	sql := "SELECT " + configColumns + " FROM guilds g WHERE g.id = @id"

	rows, err := r.db.Connection.Query(ctx, sql, pgx.NamedArgs{"id": id})
	if err != nil {
		return Config{}, err
	}

	config, err := pgx.CollectExactlyOneRow(rows, r.rowToConfig)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, ErrNotFound
	}

	return config, err
}

func (r *PostgresRepository) FindAll(ctx context.Context) ([]Config, error) {
	rows, err := r.db.Connection.Query(ctx, "SELECT "+configColumns+" FROM guilds g ORDER BY g.id")
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, r.rowToConfig)
}

// Pool or transaction.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Insert or update guild config.
func (r *PostgresRepository) Save(ctx context.Context, config Config) (Config, error) {
	return r.save(ctx, r.db.Connection, config, true)
}

// Row is created from initial first so concurrent updates of a new guild serialize on it too.
func (r *PostgresRepository) Update(ctx context.Context, initial Config, mutate func(config *Config) error) (Config, error) {
	transaction, err := r.db.Connection.Begin(ctx)
	if err != nil {
		return Config{}, err
	}

	defer transaction.Rollback(ctx)

	if _, err := r.save(ctx, transaction, initial, false); err != nil {
		return Config{}, fmt.Errorf("unable to create guild %s: %w", initial.Id, err)
	}

	sql := "SELECT " + configColumns + " FROM guilds g WHERE g.id = @id FOR UPDATE"

	rows, err := transaction.Query(ctx, sql, pgx.NamedArgs{"id": initial.Id})
	if err != nil {
		return Config{}, err
	}

	config, err := pgx.CollectExactlyOneRow(rows, r.rowToConfig)
	if err != nil {
		return Config{}, fmt.Errorf("unable to lock guild %s: %w", initial.Id, err)
	}

	if err := mutate(&config); err != nil {
		return Config{}, err
	}

	if config, err = r.save(ctx, transaction, config, true); err != nil {
		return Config{}, err
	}

	if err := transaction.Commit(ctx); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Upsert guild config, or insert only when overwrite is false.
func (r *PostgresRepository) save(ctx context.Context, executor pgExecutor, config Config, overwrite bool) (Config, error) {
	encoded, err := encodeConfig(config)
	if err != nil {
		return Config{}, err
	}

	currentTime := time.Now().UTC()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = currentTime
	}

	config.UpdatedAt = currentTime

	sql := `INSERT INTO guilds (
		id, timezone, language, currency,
		frequency_kind, frequency_weekday, frequency_day, frequency_hour, frequency_minute,
		channels, mentions, publish_announcements, created_at, updated_at
	) VALUES (
		@id, @timezone, @language, @currency,
		@frequency_kind, @frequency_weekday, @frequency_day, @frequency_hour, @frequency_minute,
		@channels, @mentions, @publish_announcements, @created_at, @updated_at
	)`

	if overwrite {
		sql += ` ON CONFLICT (id) DO UPDATE SET
		timezone = EXCLUDED.timezone,
		language = EXCLUDED.language,
		currency = EXCLUDED.currency,
		frequency_kind = EXCLUDED.frequency_kind,
		frequency_weekday = EXCLUDED.frequency_weekday,
		frequency_day = EXCLUDED.frequency_day,
		frequency_hour = EXCLUDED.frequency_hour,
		frequency_minute = EXCLUDED.frequency_minute,
		channels = EXCLUDED.channels,
		mentions = EXCLUDED.mentions,
		publish_announcements = EXCLUDED.publish_announcements,
		updated_at = EXCLUDED.updated_at`
	} else {
		sql += " ON CONFLICT (id) DO NOTHING"
	}

	args := pgx.NamedArgs{
		"id":                    config.Id,
		"timezone":              config.Timezone,
		"language":              config.Language,
		"currency":              config.Currency,
		"frequency_kind":        string(config.Frequency.Kind),
		"frequency_weekday":     int(config.Frequency.Weekday),
		"frequency_day":         config.Frequency.Day,
		"frequency_hour":        config.Frequency.Hour,
		"frequency_minute":      config.Frequency.Minute,
		"channels":              encoded.channels,
		"mentions":              encoded.mentions,
		"publish_announcements": config.PublishAnnouncements,
		"created_at":            config.CreatedAt,
		"updated_at":            config.UpdatedAt,
	}

	if _, err := executor.Exec(ctx, sql, args); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (r *PostgresRepository) Subscribe(ctx context.Context, guildId string, sellerId marketplace.SellerIdentity) (bool, error) {
	sql := `INSERT INTO subscriptions (guild_id, seller_id, created_at)
		VALUES (@guild_id, @seller_id, @created_at)
		ON CONFLICT (guild_id, seller_id) DO NOTHING`

	args := pgx.NamedArgs{
		"guild_id":   guildId,
		"seller_id":  string(sellerId),
		"created_at": time.Now().UTC(),
	}

	tag, err := r.db.Connection.Exec(ctx, sql, args)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) Unsubscribe(ctx context.Context, guildId string, sellerId marketplace.SellerIdentity) (bool, error) {
	sql := "DELETE FROM subscriptions WHERE guild_id = @guild_id AND seller_id = @seller_id"

	tag, err := r.db.Connection.Exec(ctx, sql, pgx.NamedArgs{"guild_id": guildId, "seller_id": string(sellerId)})
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) FindSubscriptions(ctx context.Context, guildId string) ([]Subscription, error) {
	sql := "SELECT guild_id, seller_id, created_at FROM subscriptions WHERE guild_id = @guild_id ORDER BY seller_id"

	rows, err := r.db.Connection.Query(ctx, sql, pgx.NamedArgs{"guild_id": guildId})
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, r.rowToSubscription)
}

// Find guild subscriptions with page navigation.
func (r *PostgresRepository) FindSubscriptionsPaginated(ctx context.Context, guildId string, page int, perPage int) ([]Subscription, error) {
	if perPage < 1 {
		perPage = core.PerPageDefault
	}

	_, offset := core.PageOffset(page, perPage)

	sql := `SELECT guild_id, seller_id, created_at FROM subscriptions WHERE guild_id = @guild_id
		ORDER BY seller_id LIMIT @limit OFFSET @offset`

	args := pgx.NamedArgs{
		"guild_id": guildId,
		"limit":    perPage,
		"offset":   offset,
	}

	rows, err := r.db.Connection.Query(ctx, sql, args)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, r.rowToSubscription)
}

func (r *PostgresRepository) CountSubscriptions(ctx context.Context, guildId string) (int, error) {
	count := 0
	err := r.db.Connection.QueryRow(ctx, "SELECT COUNT(*) FROM subscriptions WHERE guild_id = @guild_id", pgx.NamedArgs{"guild_id": guildId}).Scan(&count)

	return count, err
}

// Find configs of every guild subscribed to seller.
func (r *PostgresRepository) FindSubscribers(ctx context.Context, sellerId marketplace.SellerIdentity) ([]Config, error) {
	sql := "SELECT " + configColumns + ` FROM guilds g
		INNER JOIN subscriptions s ON s.guild_id = g.id
		WHERE s.seller_id = @seller_id ORDER BY g.id`

	rows, err := r.db.Connection.Query(ctx, sql, pgx.NamedArgs{"seller_id": string(sellerId)})
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, r.rowToConfig)
}

func (r *PostgresRepository) CountSubscribers(ctx context.Context, sellerId marketplace.SellerIdentity) (int, error) {
	count := 0
	err := r.db.Connection.QueryRow(ctx, "SELECT COUNT(*) FROM subscriptions WHERE seller_id = @seller_id", pgx.NamedArgs{"seller_id": string(sellerId)}).Scan(&count)

	return count, err
}

// Convert database row to guild config.
func (r *PostgresRepository) rowToConfig(row pgx.CollectableRow) (Config, error) {
	var kind string
	var weekday int
	var encoded configRow

	config := Config{}

	err := row.Scan(
		&config.Id,
		&config.Timezone,
		&config.Language,
		&config.Currency,
		&kind,
		&weekday,
		&config.Frequency.Day,
		&config.Frequency.Hour,
		&config.Frequency.Minute,
		&encoded.channels,
		&encoded.mentions,
		&config.PublishAnnouncements,
		&config.CreatedAt,
		&config.UpdatedAt,
	)

	if err != nil {
		return Config{}, err
	}

	config.Frequency.Kind = FrequencyKind(kind)
	config.Frequency.Weekday = time.Weekday(weekday)

	if err := encoded.decode(&config); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (r *PostgresRepository) rowToSubscription(row pgx.CollectableRow) (Subscription, error) {
	var sellerId string

	subscription := Subscription{}

	if err := row.Scan(&subscription.GuildId, &sellerId, &subscription.CreatedAt); err != nil {
		return Subscription{}, err
	}

	subscription.SellerId = marketplace.SellerIdentity(sellerId)

	return subscription, nil
}
