package marketplace

import (
	"context"
	"errors"
	"fabtracker/internal/app/core"
	"fabtracker/internal/app/logger"
	"fmt"
	"time"
)

type Service struct {
	repository Repository
	logger     logger.LoggerInterface
}

func NewService(repository Repository, logger logger.LoggerInterface) *Service {
	return &Service{
		repository: repository,
		logger:     logger,
	}
}

// Register seller by storefront URL.
func (s *Service) RegisterSeller(ctx context.Context, rawUrl string) (Seller, error) {
	id, url, err := NormalizeSellerUrl(rawUrl)
	if err != nil {
		return Seller{}, err
	}

	return s.repository.EnsureSeller(ctx, id, url)
}

func (s *Service) FindSeller(ctx context.Context, id SellerIdentity) (Seller, error) {
	return s.repository.FindSeller(ctx, id)
}

func (s *Service) FindSellers(ctx context.Context, ids []SellerIdentity) ([]Seller, error) {
	return s.repository.FindSellers(ctx, ids)
}

func (s *Service) DeleteSeller(ctx context.Context, id SellerIdentity) error {
	return s.repository.DeleteSeller(ctx, id)
}

// Remember outcome of the latest check, message is kept for failures only.
func (s *Service) SaveStatus(ctx context.Context, sellerId SellerIdentity, status SellerStatus, message string, checkedAt time.Time) error {
	if status == StatusSuccess {
		message = ""
	}

	return s.repository.SaveSellerStatus(ctx, sellerId, status, message, checkedAt)
}

func (s *Service) FindProductsPaginated(ctx context.Context, sellerId SellerIdentity, page int, perPage int) (core.PaginatedResult[Product], error) {
	if perPage == 0 {
		perPage = core.PerPageDefault
	}

	page, _ = core.PageOffset(page, perPage)

	products, err := s.repository.FindProducts(ctx, sellerId, page, perPage)
	if err != nil {
		return core.PaginatedResult[Product]{}, err
	}

	count, err := s.repository.CountProducts(ctx, sellerId)
	if err != nil {
		return core.PaginatedResult[Product]{}, err
	}

	return core.NewPaginatedResult(products, page, perPage, count), nil
}

// Diff scraped catalog against stored snapshots and persist it, changes are returned in scrape order.
func (s *Service) ApplyScrape(ctx context.Context, seller Seller, products []Product) ([]Change, error) {
	var changes []Change

	err := s.repository.UpdateSellerSnapshot(ctx, seller.Id, func(previous map[ProductIdentity]Product) ([]Product, error) {
		changes = make([]Change, 0)
		snapshot := make([]Product, 0, len(products))
		seen := make(map[ProductIdentity]bool, len(products))

		for _, product := range products {
			if product.Id == "" || seen[product.Id] {
				continue
			}

			seen[product.Id] = true
			product.SellerId = seller.Id

			var previousProduct *Product
			if stored, ok := previous[product.Id]; ok {
				previousProduct = &stored
				product = mergeMissingFields(stored, product)
			}

			result := Detect(previousProduct, product)

			if result.Kind != ChangeUnchanged {
				changes = append(changes, Change{
					Seller:   seller,
					Product:  product,
					Previous: previousProduct,
					Result:   result,
				})
			}

			snapshot = append(snapshot, product)
		}

		return snapshot, nil
	})

	if errors.Is(err, ErrSellerNotFound) {
		return nil, err
	}

	if err != nil {
		s.logger.Error("Unable to save snapshot of", seller.Id, err)
		return nil, fmt.Errorf("unable to save snapshot: %w", err)
	}

	return changes, nil
}

// Keep stored values of fields the latest scrape failed to extract.
func mergeMissingFields(stored Product, current Product) Product {
	if current.LastUpdate.IsZero() {
		current.LastUpdate = stored.LastUpdate
	}

	if current.Published.IsZero() {
		current.Published = stored.Published
	}

	if len(current.Changelog) == 0 {
		current.Changelog = stored.Changelog
	}

	if len(current.Versions) == 0 {
		current.Versions = stored.Versions
	}

	if !current.Price.IsValid() {
		current.Price = stored.Price
	}

	if current.ImageUrl == "" {
		current.ImageUrl = stored.ImageUrl
	}

	if current.Description == "" {
		current.Description = stored.Description
	}

	return current
}
