package marketplace

import (
	"context"
	"database/sql"
	"errors"
	"fabtracker/internal/app/core"
	"fabtracker/internal/app/database"
	"fabtracker/internal/app/helpers"
	"fabtracker/internal/app/logger"
	"fmt"
	"strings"
	"time"
)

type SqliteRepository struct {
	db     *database.Sqlite
	logger logger.LoggerInterface
}

func NewSqliteRepository(db *database.Sqlite, logger logger.LoggerInterface) *SqliteRepository {
	return &SqliteRepository{
		db:     db,
		logger: logger,
	}
}

const sellerColumns = "id, url, created_at, last_checked_at, last_status, last_error"

func (r *SqliteRepository) EnsureSeller(ctx context.Context, id SellerIdentity, url string) (Seller, error) {
	query := `INSERT INTO sellers (id, url, created_at, last_status) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.Connection.ExecContext(ctx, query, string(id), url, helpers.TimeToDatabase(time.Now()), string(StatusPending))
	if err != nil {
		return Seller{}, fmt.Errorf("unable to insert seller: %w", err)
	}

	return r.FindSeller(ctx, id)
}

func (r *SqliteRepository) FindSeller(ctx context.Context, id SellerIdentity) (Seller, error) {
	query := helpers.ConcatStrings("SELECT ", sellerColumns, " FROM sellers WHERE id = ?")

	seller, err := r.scanSeller(r.db.Connection.QueryRowContext(ctx, query, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return Seller{}, ErrSellerNotFound
	}

	return seller, err
}

func (r *SqliteRepository) FindSellers(ctx context.Context, ids []SellerIdentity) ([]Seller, error) {
	if len(ids) == 0 {
		return []Seller{}, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := helpers.ConcatStrings("SELECT ", sellerColumns, " FROM sellers WHERE id IN (", placeholders, ") ORDER BY id")

	rows, err := r.db.Connection.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	sellers := make([]Seller, 0, len(ids))

	for rows.Next() {
		seller, err := r.scanSeller(rows)
		if err != nil {
			return nil, err
		}

		sellers = append(sellers, seller)
	}

	return sellers, rows.Err()
}

func (r *SqliteRepository) DeleteSeller(ctx context.Context, id SellerIdentity) error {
	_, err := r.db.Connection.ExecContext(ctx, "DELETE FROM sellers WHERE id = ?", string(id))

	return err
}

func (r *SqliteRepository) FindProducts(ctx context.Context, sellerId SellerIdentity, page int, perPage int) ([]Product, error) {
	if perPage < 1 {
		perPage = core.PerPageDefault
	}

	_, offset := core.PageOffset(page, perPage)

	query := "SELECT data FROM products WHERE seller_id = ? ORDER BY title, id LIMIT ? OFFSET ?"

	rows, err := r.db.Connection.QueryContext(ctx, query, string(sellerId), perPage, offset)
	if err != nil {
		return nil, err
	}

	return r.collectProducts(rows)
}

func (r *SqliteRepository) CountProducts(ctx context.Context, sellerId SellerIdentity) (int, error) {
	count := 0
	err := r.db.Connection.QueryRowContext(ctx, "SELECT COUNT(*) FROM products WHERE seller_id = ?", string(sellerId)).Scan(&count)

	return count, err
}

// Single connection database serializes writers, transaction keeps read and write together.
func (r *SqliteRepository) UpdateSellerSnapshot(ctx context.Context, sellerId SellerIdentity, apply SnapshotFunc) error {
	transaction, err := r.db.Connection.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Unable to begin transaction:", err)
		return err
	}

	defer transaction.Rollback()

	var lockedId string

	err = transaction.QueryRowContext(ctx, "SELECT id FROM sellers WHERE id = ?", string(sellerId)).Scan(&lockedId)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSellerNotFound
	}

	if err != nil {
		return fmt.Errorf("unable to lock seller: %w", err)
	}

	rows, err := transaction.QueryContext(ctx, "SELECT data FROM products WHERE seller_id = ?", string(sellerId))
	if err != nil {
		return err
	}

	previousList, err := r.collectProducts(rows)
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

	query := `INSERT INTO products (seller_id, id, url, title, data, checked_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (seller_id, id) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			data = excluded.data,
			checked_at = excluded.checked_at`

	for _, product := range products {
		data, err := encodeProduct(product)
		if err != nil {
			return fmt.Errorf("unable to encode product %s: %w", product.Id, err)
		}

		_, err = transaction.ExecContext(
			ctx,
			query,
			string(sellerId),
			string(product.Id),
			product.Url,
			product.Title,
			string(data),
			helpers.TimeToDatabase(product.CheckedAt),
		)

		if err != nil {
			return fmt.Errorf("unable to save product %s: %w", product.Id, err)
		}
	}

	return transaction.Commit()
}

func (r *SqliteRepository) SaveSellerStatus(ctx context.Context, sellerId SellerIdentity, status SellerStatus, message string, checkedAt time.Time) error {
	query := "UPDATE sellers SET last_checked_at = ?, last_status = ?, last_error = ? WHERE id = ?"

	result, err := r.db.Connection.ExecContext(ctx, query, helpers.TimeToDatabase(checkedAt), string(status), message, string(sellerId))
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return ErrSellerNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SqliteRepository) scanSeller(row rowScanner) (Seller, error) {
	var id, status, createdAt, lastCheckedAt string

	seller := Seller{}

	if err := row.Scan(&id, &seller.Url, &createdAt, &lastCheckedAt, &status, &seller.LastError); err != nil {
		return Seller{}, err
	}

	seller.Id = SellerIdentity(id)
	seller.LastStatus = SellerStatus(status)

	var err error

	if seller.CreatedAt, err = helpers.TimeFromDatabase(createdAt); err != nil {
		return Seller{}, fmt.Errorf("invalid created_at of seller %s: %w", id, err)
	}

	if lastCheckedAt != "" {
		if seller.LastCheckedAt, err = helpers.TimeFromDatabase(lastCheckedAt); err != nil {
			return Seller{}, fmt.Errorf("invalid last_checked_at of seller %s: %w", id, err)
		}
	}

	return seller, nil
}

func (r *SqliteRepository) collectProducts(rows *sql.Rows) ([]Product, error) {
	defer rows.Close()

	products := []Product{}

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}

		product, err := decodeProduct([]byte(data))
		if err != nil {
			return nil, err
		}

		products = append(products, product)
	}

	return products, rows.Err()
}
