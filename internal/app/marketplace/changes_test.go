package marketplace_test

import (
	"fabtracker/internal/app/marketplace"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sampleProduct() marketplace.Product {
	return marketplace.Product{
		Id:         "fab.com/listings/6c0c7c1e",
		SellerId:   "fab.com/sellers/studio",
		Url:        "https://www.fab.com/listings/6c0c7c1e",
		Title:      "Medieval Village",
		LastUpdate: time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC),
		Changelog: []marketplace.ChangelogEntry{
			{Version: "1.2", Notes: "Added UE 5.5 support", Date: "2025-01-31"},
			{Version: "1.1", Notes: "Fixed lightmaps", Date: "2024-10-02"},
		},
		Versions: []string{"5.3", "5.4", "5.5"},
		Price:    marketplace.Price{Amount: 1999, Currency: "USD", VatExclusive: true},
	}
}

func TestDetectNew(t *testing.T) {
	result := marketplace.Detect(nil, sampleProduct())

	assert.Equal(t, marketplace.ChangeNew, result.Kind)
	assert.Empty(t, result.Reasons)
}

func TestDetectUnchangedForSameSnapshot(t *testing.T) {
	product := sampleProduct()
	previous := sampleProduct()

	result := marketplace.Detect(&previous, product)

	assert.Equal(t, marketplace.ChangeUnchanged, result.Kind)
	assert.Empty(t, result.Reasons)
}

func TestDetectPriceOnly(t *testing.T) {
	previous := sampleProduct()
	current := sampleProduct()
	current.Price.Amount = 2499

	result := marketplace.Detect(&previous, current)

	assert.Equal(t, marketplace.ChangeUpdated, result.Kind)
	assert.Equal(t, []marketplace.Reason{marketplace.ReasonPrice}, result.Reasons)
}

func TestDetectReportsAllReasonsInOrder(t *testing.T) {
	previous := sampleProduct()
	current := sampleProduct()
	current.LastUpdate = current.LastUpdate.AddDate(0, 1, 0)
	current.Changelog = append([]marketplace.ChangelogEntry{{Version: "1.3", Notes: "Reverted price"}}, current.Changelog...)
	current.Versions = []string{"5.4", "5.5", "5.6"}
	current.Price.Amount = 1499

	result := marketplace.Detect(&previous, current)

	assert.Equal(t, marketplace.ChangeUpdated, result.Kind)
	assert.Equal(t, []marketplace.Reason{
		marketplace.ReasonLastUpdateDate,
		marketplace.ReasonChangelog,
		marketplace.ReasonUEVersions,
		marketplace.ReasonPrice,
	}, result.Reasons)
}

func TestDetectChangelogNotesEdit(t *testing.T) {
	previous := sampleProduct()
	current := sampleProduct()
	current.Changelog[0].Notes = "Added UE 5.5 support and Nanite meshes"

	result := marketplace.Detect(&previous, current)

	assert.Equal(t, []marketplace.Reason{marketplace.ReasonChangelog}, result.Reasons)
}

func TestDetectIgnoresWhitespaceOnlyRerender(t *testing.T) {
	previous := sampleProduct()
	current := sampleProduct()
	current.Changelog[1].Notes = "  Fixed\n lightmaps "
	current.Versions = []string{"5.5", "5.3", "5.4"}

	result := marketplace.Detect(&previous, current)

	assert.Equal(t, marketplace.ChangeUnchanged, result.Kind)
}

func TestDetectSkipsUnparsedFields(t *testing.T) {
	cases := map[string]func(product *marketplace.Product){
		"price failed to parse":  func(product *marketplace.Product) { product.Price = marketplace.Price{} },
		"price in other currency": func(product *marketplace.Product) {
			product.Price = marketplace.Price{Amount: 1899, Currency: "EUR", VatExclusive: true}
		},
		"price on other vat basis": func(product *marketplace.Product) {
			product.Price = marketplace.Price{Amount: 2399, Currency: "USD"}
		},
		"last update missing": func(product *marketplace.Product) { product.LastUpdate = time.Time{} },
		"versions missing":    func(product *marketplace.Product) { product.Versions = nil },
		"changelog missing":   func(product *marketplace.Product) { product.Changelog = nil },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			previous := sampleProduct()
			current := sampleProduct()
			mutate(&current)

			result := marketplace.Detect(&previous, current)

			assert.Equal(t, marketplace.ChangeUnchanged, result.Kind)
		})
	}
}

func TestDetectLastUpdateMissingFromBaseline(t *testing.T) {
	previous := sampleProduct()
	previous.LastUpdate = time.Time{}
	current := sampleProduct()

	result := marketplace.Detect(&previous, current)

	assert.Equal(t, marketplace.ChangeUnchanged, result.Kind)
	assert.Empty(t, result.Reasons)
}

func TestDetectVersionRemoval(t *testing.T) {
	previous := sampleProduct()
	current := sampleProduct()
	current.Versions = []string{"5.4", "5.5"}

	result := marketplace.Detect(&previous, current)

	assert.True(t, result.Has(marketplace.ReasonUEVersions))
	assert.False(t, result.Has(marketplace.ReasonPrice))
}
