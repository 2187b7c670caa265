package guild

import (
	"context"
	"database/sql"
	"errors"
	"fabtracker/internal/app/core"
	"fabtracker/internal/app/database"
	"fabtracker/internal/app/helpers"
	"fabtracker/internal/app/marketplace"
	"fmt"
	"time"
)

type SqliteRepository struct {
	db *database.Sqlite
}

func NewSqliteRepository(db *database.Sqlite) *SqliteRepository {
	return &SqliteRepository{db: db}
}

func (r *SqliteRepository) FindById(ctx context.Context, id string) (Config, error) {
	row := r.db.Connection.QueryRowContext(ctx, "SELECT "+configColumns+" FROM guilds g WHERE g.id = ?", id)

	config, err := r.scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Config{}, ErrNotFound
	}

	return config, err
}

func (r *SqliteRepository) FindAll(ctx context.Context) ([]Config, error) {
	rows, err := r.db.Connection.QueryContext(ctx, "SELECT "+configColumns+" FROM guilds g ORDER BY g.id")
	if err != nil {
		return nil, err
	}

	return r.collectConfigs(rows)
}

type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SqliteRepository) Save(ctx context.Context, config Config) (Config, error) {
	return r.save(ctx, r.db.Connection, config)
}

// Single connection serializes the transaction against every other writer.
func (r *SqliteRepository) Update(ctx context.Context, initial Config, mutate func(config *Config) error) (Config, error) {
	transaction, err := r.db.Connection.BeginTx(ctx, nil)
	if err != nil {
		return Config{}, err
	}

	defer transaction.Rollback()

	row := transaction.QueryRowContext(ctx, "SELECT "+configColumns+" FROM guilds g WHERE g.id = ?", initial.Id)

	config, err := r.scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		config, err = initial, nil
	}

	if err != nil {
		return Config{}, err
	}

	if err := mutate(&config); err != nil {
		return Config{}, err
	}

	if config, err = r.save(ctx, transaction, config); err != nil {
		return Config{}, err
	}

	if err := transaction.Commit(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (r *SqliteRepository) save(ctx context.Context, executor sqlExecutor, config Config) (Config, error) {
	encoded, err := encodeConfig(config)
	if err != nil {
		return Config{}, err
	}

	currentTime := time.Now().UTC()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = currentTime
	}

	config.UpdatedAt = currentTime

	query := `INSERT INTO guilds (
		id, timezone, language, currency,
		frequency_kind, frequency_weekday, frequency_day, frequency_hour, frequency_minute,
		channels, mentions, publish_announcements, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		timezone = excluded.timezone,
		language = excluded.language,
		currency = excluded.currency,
		frequency_kind = excluded.frequency_kind,
		frequency_weekday = excluded.frequency_weekday,
		frequency_day = excluded.frequency_day,
		frequency_hour = excluded.frequency_hour,
		frequency_minute = excluded.frequency_minute,
		channels = excluded.channels,
		mentions = excluded.mentions,
		publish_announcements = excluded.publish_announcements,
		updated_at = excluded.updated_at`

	_, err = executor.ExecContext(
		ctx,
		query,
		config.Id,
		config.Timezone,
		config.Language,
		config.Currency,
		string(config.Frequency.Kind),
		int(config.Frequency.Weekday),
		config.Frequency.Day,
		config.Frequency.Hour,
		config.Frequency.Minute,
		string(encoded.channels),
		string(encoded.mentions),
		config.PublishAnnouncements,
		helpers.TimeToDatabase(config.CreatedAt),
		helpers.TimeToDatabase(config.UpdatedAt),
	)

	if err != nil {
		return Config{}, err
	}

	return config, nil
}

func (r *SqliteRepository) Subscribe(ctx context.Context, guildId string, sellerId marketplace.SellerIdentity) (bool, error) {
	query := `INSERT INTO subscriptions (guild_id, seller_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (guild_id, seller_id) DO NOTHING`

	result, err := r.db.Connection.ExecContext(ctx, query, guildId, string(sellerId), helpers.TimeToDatabase(time.Now()))
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()

	return affected > 0, err
}

func (r *SqliteRepository) Unsubscribe(ctx context.Context, guildId string, sellerId marketplace.SellerIdentity) (bool, error) {
	result, err := r.db.Connection.ExecContext(ctx, "DELETE FROM subscriptions WHERE guild_id = ? AND seller_id = ?", guildId, string(sellerId))
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()

	return affected > 0, err
}

func (r *SqliteRepository) FindSubscriptions(ctx context.Context, guildId string) ([]Subscription, error) {
	query := "SELECT guild_id, seller_id, created_at FROM subscriptions WHERE guild_id = ? ORDER BY seller_id"

	rows, err := r.db.Connection.QueryContext(ctx, query, guildId)
	if err != nil {
		return nil, err
	}

	return r.collectSubscriptions(rows)
}

func (r *SqliteRepository) FindSubscriptionsPaginated(ctx context.Context, guildId string, page int, perPage int) ([]Subscription, error) {
	if perPage < 1 {
		perPage = core.PerPageDefault
	}

	_, offset := core.PageOffset(page, perPage)

	query := `SELECT guild_id, seller_id, created_at FROM subscriptions WHERE guild_id = ?
		ORDER BY seller_id LIMIT ? OFFSET ?`

	rows, err := r.db.Connection.QueryContext(ctx, query, guildId, perPage, offset)
	if err != nil {
		return nil, err
	}

	return r.collectSubscriptions(rows)
}

func (r *SqliteRepository) CountSubscriptions(ctx context.Context, guildId string) (int, error) {
	count := 0
	err := r.db.Connection.QueryRowContext(ctx, "SELECT COUNT(*) FROM subscriptions WHERE guild_id = ?", guildId).Scan(&count)

	return count, err
}

func (r *SqliteRepository) FindSubscribers(ctx context.Context, sellerId marketplace.SellerIdentity) ([]Config, error) {
	query := "SELECT " + configColumns + ` FROM guilds g
		INNER JOIN subscriptions s ON s.guild_id = g.id
		WHERE s.seller_id = ? ORDER BY g.id`

	rows, err := r.db.Connection.QueryContext(ctx, query, string(sellerId))
	if err != nil {
		return nil, err
	}

	return r.collectConfigs(rows)
}

func (r *SqliteRepository) CountSubscribers(ctx context.Context, sellerId marketplace.SellerIdentity) (int, error) {
	count := 0
	err := r.db.Connection.QueryRowContext(ctx, "SELECT COUNT(*) FROM subscriptions WHERE seller_id = ?", string(sellerId)).Scan(&count)

	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SqliteRepository) scanConfig(row rowScanner) (Config, error) {
	var kind, channels, mentions, createdAt, updatedAt string
	var weekday int

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
		&channels,
		&mentions,
		&config.PublishAnnouncements,
		&createdAt,
		&updatedAt,
	)

	if err != nil {
		return Config{}, err
	}

	config.Frequency.Kind = FrequencyKind(kind)
	config.Frequency.Weekday = time.Weekday(weekday)

	if err := (configRow{channels: []byte(channels), mentions: []byte(mentions)}).decode(&config); err != nil {
		return Config{}, fmt.Errorf("invalid routing of guild %s: %w", config.Id, err)
	}

	if config.CreatedAt, err = helpers.TimeFromDatabase(createdAt); err != nil {
		return Config{}, err
	}

	if config.UpdatedAt, err = helpers.TimeFromDatabase(updatedAt); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (r *SqliteRepository) collectConfigs(rows *sql.Rows) ([]Config, error) {
	defer rows.Close()

	configs := []Config{}

	for rows.Next() {
		config, err := r.scanConfig(rows)
		if err != nil {
			return nil, err
		}

		configs = append(configs, config)
	}

	return configs, rows.Err()
}

func (r *SqliteRepository) collectSubscriptions(rows *sql.Rows) ([]Subscription, error) {
	defer rows.Close()

	subscriptions := []Subscription{}

	for rows.Next() {
		var sellerId, createdAt string

		subscription := Subscription{}

		if err := rows.Scan(&subscription.GuildId, &sellerId, &createdAt); err != nil {
			return nil, err
		}

		subscription.SellerId = marketplace.SellerIdentity(sellerId)

		var err error
		if subscription.CreatedAt, err = helpers.TimeFromDatabase(createdAt); err != nil {
			return nil, err
		}

		subscriptions = append(subscriptions, subscription)
	}

	return subscriptions, rows.Err()
}
