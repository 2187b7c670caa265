package marketplace

import (
	"context"
	"errors"
	"fabtracker/internal/app/core"
	"fabtracker/internal/app/database"
	"fabtracker/internal/app/logger"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type PostgresRepository struct {
	db     *database.Postgres
	logger logger.LoggerInterface
}

func NewPostgresRepository(db *database.Postgres, logger logger.LoggerInterface) *PostgresRepository {
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}
}

// Register seller if unknown and return stored record.
func (r *PostgresRepository) EnsureSeller(ctx context.Context, id SellerIdentity, url string) (Seller, error) {
	sql := `INSERT INTO sellers (id, url, created_at, last_status)
		VALUES (@id, @url, @created_at, @last_status)
		ON CONFLICT (id) DO NOTHING`

	args := pgx.NamedArgs{
		"id":          string(id),
		"url":         url,
		"created_at":  time.Now().UTC(),
		"last_status": string(StatusPending),
	}

	if _, err := r.db.Connection.Exec(ctx, sql, args); err != nil {
		return Seller{}, fmt.Errorf("unable to insert seller: %w", err)
	}

	return r.FindSeller(ctx, id)
}

// Find seller by identity.
func (r *PostgresRepository) FindSeller(ctx context.Context, id SellerIdentity) (Seller, error) {
	sql := "SELECT id, url, created_at, last_checked_at, last_status, last_error FROM sellers WHERE id = @id"

	rows, err := r.db.Connection.Query(ctx, sql, pgx.NamedArgs{"id": string(id)})
	if err != nil {
		return Seller{}, err
	}

	seller, err := pgx.CollectExactlyOneRow(rows, r.rowToSeller)
	if errors.Is(err, pgx.ErrNoRows) {
		return Seller{}, ErrSellerNotFound
	}

	return seller, err
}

// Find sellers by identities, unknown ones are skipped.
func (r *PostgresRepository) FindSellers(ctx context.Context, ids []SellerIdentity) ([]Seller, error) {
	if len(ids) == 0 {
		return []Seller{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}

	sql := `SELECT id, url, created_at, last_checked_at, last_status, last_error
		FROM sellers WHERE id = ANY(@ids) ORDER BY id`

	rows, err := r.db.Connection.Query(ctx, sql, pgx.NamedArgs{"ids": keys})
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, r.rowToSeller)
}

// Delete seller together with its snapshots.
func (r *PostgresRepository) DeleteSeller(ctx context.Context, id SellerIdentity) error {
	sql := "DELETE FROM sellers WHERE id = @id"

	_, err := r.db.Connection.Exec(ctx, sql, pgx.NamedArgs{"id": string(id)})

	return err
}

// Find seller products with page navigation.
func (r *PostgresRepository) FindProducts(ctx context.Context, sellerId SellerIdentity, page int, perPage int) ([]Product, error) {
	if perPage < 1 {
		perPage = core.PerPageDefault
	}

	_, offset := core.PageOffset(page, perPage)

	sql := `SELECT data FROM products WHERE seller_id = @seller_id
		ORDER BY title, id LIMIT @limit OFFSET @offset`

	args := pgx.NamedArgs{
		"seller_id": string(sellerId),
		"limit":     perPage,
		"offset":    offset,
	}

	rows, err := r.db.Connection.Query(ctx, sql, args)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, r.rowToProduct)
}

// Get count of seller products.
func (r *PostgresRepository) CountProducts(ctx context.Context, sellerId SellerIdentity) (int, error) {
	sql := "SELECT COUNT(*) FROM products WHERE seller_id = @seller_id"

	count := 0
	err := r.db.Connection.QueryRow(ctx, sql, pgx.NamedArgs{"seller_id": string(sellerId)}).Scan(&count)

	return count, err
}

func (r *PostgresRepository) UpdateSellerSnapshot(ctx context.Context, sellerId SellerIdentity, apply SnapshotFunc) error {
	transaction, err := r.db.Connection.Begin(ctx)
	if err != nil {
		r.logger.Error("Unable to begin transaction:", err)
		return err
	}

	defer transaction.Rollback(ctx)

	args := pgx.NamedArgs{"seller_id": string(sellerId)}

	var lockedId string

	err = transaction.QueryRow(ctx, "SELECT id FROM sellers WHERE id = @seller_id FOR UPDATE", args).Scan(&lockedId)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSellerNotFound
	}

	if err != nil {
		return fmt.Errorf("unable to lock seller: %w", err)
	}

	rows, err := transaction.Query(ctx, "SELECT data FROM products WHERE seller_id = @seller_id", args)
	if err != nil {
		return err
	}

	previousList, err := pgx.CollectRows(rows, r.rowToProduct)
	if err != nil {
		return fmt.Errorf("unable to collect products: %w", err)
	}

	previous := make(map[ProductIdentity]Product, len(previousList))
	for _, product := range previousList {
		previous[product.Id] = product
	}

	products, err := apply(previous)
	if err != nil {
		return err
	}

	sql := `INSERT INTO products (seller_id, id, url, title, data, checked_at)
		VALUES (@seller_id, @id, @url, @title, @data, @checked_at)
		ON CONFLICT (seller_id, id) DO UPDATE SET
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			data = EXCLUDED.data,
			checked_at = EXCLUDED.checked_at`

	for _, product := range products {
		data, err := encodeProduct(product)
		if err != nil {
			return fmt.Errorf("unable to encode product %s: %w", product.Id, err)
		}

		productArgs := pgx.NamedArgs{
			"seller_id":  string(sellerId),
			"id":         string(product.Id),
			"url":        product.Url,
			"title":      product.Title,
			"data":       data,
			"checked_at": product.CheckedAt.UTC(),
		}

		if _, err := transaction.Exec(ctx, sql, productArgs); err != nil {
			return fmt.Errorf("unable to save product %s: %w", product.Id, err)
		}
	}

	return transaction.Commit(ctx)
}

func (r *PostgresRepository) SaveSellerStatus(ctx context.Context, sellerId SellerIdentity, status SellerStatus, message string, checkedAt time.Time) error {
	sql := `UPDATE sellers SET last_checked_at = @checked_at, last_status = @status, last_error = @message
		WHERE id = @id`

	args := pgx.NamedArgs{
		"id":         string(sellerId),
		"checked_at": checkedAt.UTC(),
		"status":     string(status),
		"message":    message,
	}

	tag, err := r.db.Connection.Exec(ctx, sql, args)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrSellerNotFound
	}

	return nil
}

// Convert database row to seller.
func (r *PostgresRepository) rowToSeller(row pgx.CollectableRow) (Seller, error) {
	var id string
	var status string
	var lastCheckedAt *time.Time

	seller := Seller{}

	err := row.Scan(&id, &seller.Url, &seller.CreatedAt, &lastCheckedAt, &status, &seller.LastError)
	if err != nil {
		return Seller{}, err
	}

	seller.Id = SellerIdentity(id)
	seller.LastStatus = SellerStatus(status)

	if lastCheckedAt != nil {
		seller.LastCheckedAt = lastCheckedAt.UTC()
	}

	return seller, nil
}

// Convert database row to product.
func (r *PostgresRepository) rowToProduct(row pgx.CollectableRow) (Product, error) {
	var data []byte

	if err := row.Scan(&data); err != nil {
		return Product{}, err
	}

	return decodeProduct(data)
}
