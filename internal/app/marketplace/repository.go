package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrSellerNotFound = errors.New("seller not found")

// Build the new snapshot from the previous one; returned products are upserted.
type SnapshotFunc func(previous map[ProductIdentity]Product) ([]Product, error)

type Repository interface {
	EnsureSeller(ctx context.Context, id SellerIdentity, url string) (Seller, error)
	FindSeller(ctx context.Context, id SellerIdentity) (Seller, error)
	FindSellers(ctx context.Context, ids []SellerIdentity) ([]Seller, error)
	DeleteSeller(ctx context.Context, id SellerIdentity) error
	FindProducts(ctx context.Context, sellerId SellerIdentity, page int, perPage int) ([]Product, error)
	CountProducts(ctx context.Context, sellerId SellerIdentity) (int, error)
	// Read, rebuild and write seller snapshot atomically, seller row stays locked meanwhile.
	UpdateSellerSnapshot(ctx context.Context, sellerId SellerIdentity, apply SnapshotFunc) error
	SaveSellerStatus(ctx context.Context, sellerId SellerIdentity, status SellerStatus, message string, checkedAt time.Time) error
}

func encodeProduct(product Product) ([]byte, error) {
	return json.Marshal(product)
}

func decodeProduct(data []byte) (Product, error) {
	var product Product

	err := json.Unmarshal(data, &product)

	return product, err
}
