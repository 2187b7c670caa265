package marketplace_test

import (
	"context"
	"errors"
	"fabtracker/internal/app/database"
	"fabtracker/internal/app/logger"
	"fabtracker/internal/app/marketplace"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSellerId = marketplace.SellerIdentity("fab.com/sellers/acme")

func newSqliteRepository(t *testing.T) *marketplace.SqliteRepository {
	return marketplace.NewSqliteRepository(database.NewTestSqlite(t), logger.NewTestLogger(t))
}

func testProduct(id string, title string) marketplace.Product {
	return marketplace.Product{
		Id:         marketplace.ProductIdentity("fab.com/listings/" + id),
		SellerId:   testSellerId,
		Url:        "https://www.fab.com/listings/" + id,
		Title:      title,
		LastUpdate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Versions:   []string{"5.3", "5.4"},
		Price:      marketplace.Price{Amount: 1999, Currency: "USD"},
		CheckedAt:  time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC),
	}
}

func TestSqliteEnsureSeller(t *testing.T) {
	ctx := context.Background()
	repository := newSqliteRepository(t)

	seller, err := repository.EnsureSeller(ctx, testSellerId, "https://www.fab.com/sellers/Acme")
	require.NoError(t, err)

	assert.Equal(t, testSellerId, seller.Id)
	assert.Equal(t, marketplace.StatusPending, seller.LastStatus)
	assert.True(t, seller.LastCheckedAt.IsZero())

	again, err := repository.EnsureSeller(ctx, testSellerId, "https://www.fab.com/sellers/other")
	require.NoError(t, err)
	assert.Equal(t, "https://www.fab.com/sellers/Acme", again.Url)

	_, err = repository.FindSeller(ctx, "fab.com/sellers/unknown")
	assert.ErrorIs(t, err, marketplace.ErrSellerNotFound)
}

func TestSqliteFindSellers(t *testing.T) {
	ctx := context.Background()
	repository := newSqliteRepository(t)

	_, err := repository.EnsureSeller(ctx, "fab.com/sellers/b", "https://www.fab.com/sellers/b")
	require.NoError(t, err)
	_, err = repository.EnsureSeller(ctx, "fab.com/sellers/a", "https://www.fab.com/sellers/a")
	require.NoError(t, err)

	sellers, err := repository.FindSellers(ctx, []marketplace.SellerIdentity{"fab.com/sellers/b", "fab.com/sellers/a", "fab.com/sellers/c"})
	require.NoError(t, err)

	require.Len(t, sellers, 2)
	assert.Equal(t, marketplace.SellerIdentity("fab.com/sellers/a"), sellers[0].Id)
	assert.Equal(t, marketplace.SellerIdentity("fab.com/sellers/b"), sellers[1].Id)

	empty, err := repository.FindSellers(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSqliteSellerStatus(t *testing.T) {
	ctx := context.Background()
	repository := newSqliteRepository(t)

	_, err := repository.EnsureSeller(ctx, testSellerId, "https://www.fab.com/sellers/Acme")
	require.NoError(t, err)

	checkedAt := time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC)
	require.NoError(t, repository.SaveSellerStatus(ctx, testSellerId, marketplace.StatusNotFound, "gone", checkedAt))

	seller, err := repository.FindSeller(ctx, testSellerId)
	require.NoError(t, err)

	assert.Equal(t, marketplace.StatusNotFound, seller.LastStatus)
	assert.Equal(t, "gone", seller.LastError)
	assert.True(t, checkedAt.Equal(seller.LastCheckedAt))
	assert.True(t, seller.IsDegraded())

	err = repository.SaveSellerStatus(ctx, "fab.com/sellers/unknown", marketplace.StatusSuccess, "", checkedAt)
	assert.ErrorIs(t, err, marketplace.ErrSellerNotFound)
}

func TestSqliteUpdateSellerSnapshot(t *testing.T) {
	ctx := context.Background()
	repository := newSqliteRepository(t)

	_, err := repository.EnsureSeller(ctx, testSellerId, "https://www.fab.com/sellers/Acme")
	require.NoError(t, err)

	err = repository.UpdateSellerSnapshot(ctx, testSellerId, func(previous map[marketplace.ProductIdentity]marketplace.Product) ([]marketplace.Product, error) {
		assert.Empty(t, previous)
		return []marketplace.Product{testProduct("1", "Rocks"), testProduct("2", "Trees")}, nil
	})
	require.NoError(t, err)

	updated := testProduct("1", "Rocks Pack")
	updated.Price.Amount = 999

	err = repository.UpdateSellerSnapshot(ctx, testSellerId, func(previous map[marketplace.ProductIdentity]marketplace.Product) ([]marketplace.Product, error) {
		require.Len(t, previous, 2)
		assert.Equal(t, 1999, previous["fab.com/listings/1"].Price.Amount)
		assert.Equal(t, []string{"5.3", "5.4"}, previous["fab.com/listings/2"].Versions)

		return []marketplace.Product{updated}, nil
	})
	require.NoError(t, err)

	count, err := repository.CountProducts(ctx, testSellerId)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	products, err := repository.FindProducts(ctx, testSellerId, 1, 10)
	require.NoError(t, err)

	require.Len(t, products, 2)
	assert.Equal(t, "Rocks Pack", products[0].Title)
	assert.Equal(t, 999, products[0].Price.Amount)
	assert.Equal(t, "Trees", products[1].Title)

	secondPage, err := repository.FindProducts(ctx, testSellerId, 2, 1)
	require.NoError(t, err)
	require.Len(t, secondPage, 1)
	assert.Equal(t, "Trees", secondPage[0].Title)
}

func TestSqliteUpdateSellerSnapshotRollsBack(t *testing.T) {
	ctx := context.Background()
	repository := newSqliteRepository(t)

	_, err := repository.EnsureSeller(ctx, testSellerId, "https://www.fab.com/sellers/Acme")
	require.NoError(t, err)

	failure := errors.New("diff failed")

	err = repository.UpdateSellerSnapshot(ctx, testSellerId, func(previous map[marketplace.ProductIdentity]marketplace.Product) ([]marketplace.Product, error) {
		return nil, failure
	})
	assert.ErrorIs(t, err, failure)

	err = repository.UpdateSellerSnapshot(ctx, "fab.com/sellers/unknown", func(previous map[marketplace.ProductIdentity]marketplace.Product) ([]marketplace.Product, error) {
		t.Fatal("snapshot of unknown seller must not be built")
		return nil, nil
	})
	assert.ErrorIs(t, err, marketplace.ErrSellerNotFound)
}

func TestSqliteDeleteSellerCascades(t *testing.T) {
	ctx := context.Background()
	repository := newSqliteRepository(t)

	_, err := repository.EnsureSeller(ctx, testSellerId, "https://www.fab.com/sellers/Acme")
	require.NoError(t, err)

	err = repository.UpdateSellerSnapshot(ctx, testSellerId, func(previous map[marketplace.ProductIdentity]marketplace.Product) ([]marketplace.Product, error) {
		return []marketplace.Product{testProduct("1", "Rocks")}, nil
	})
	require.NoError(t, err)

	require.NoError(t, repository.DeleteSeller(ctx, testSellerId))

	count, err := repository.CountProducts(ctx, testSellerId)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSqliteUpdateSellerSnapshotCommitFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repository := marketplace.NewSqliteRepository(&database.Sqlite{Connection: db}, logger.NewTestLogger(t))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM sellers").
		WithArgs(string(testSellerId)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(string(testSellerId)))
	mock.ExpectQuery("SELECT data FROM products").
		WithArgs(string(testSellerId)).
		WillReturnRows(sqlmock.NewRows([]string{"data"}))
	mock.ExpectExec("INSERT INTO products").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	err = repository.UpdateSellerSnapshot(context.Background(), testSellerId, func(previous map[marketplace.ProductIdentity]marketplace.Product) ([]marketplace.Product, error) {
		return []marketplace.Product{testProduct("1", "Rocks")}, nil
	})

	assert.EqualError(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}
