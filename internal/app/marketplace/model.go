package marketplace

import (
	"fabtracker/internal/app/helpers"
	"time"
)

type SellerStatus string

const (
	StatusPending  SellerStatus = "pending"
	StatusSuccess  SellerStatus = "success"
	StatusError    SellerStatus = "error"
	StatusNotFound SellerStatus = "not_found"
)

type Seller struct {
	Id            SellerIdentity
	Url           string
	CreatedAt     time.Time
	LastCheckedAt time.Time
	LastStatus    SellerStatus
	LastError     string
}

func (s *Seller) GetName() string {
	return SellerNameFromUrl(s.Url)
}

// Last check failed or storefront disappeared.
func (s *Seller) IsDegraded() bool {
	return s.LastStatus == StatusError || s.LastStatus == StatusNotFound
}

type Price struct {
	Amount       int    `json:"amount"`
	Currency     string `json:"currency"`
	VatExclusive bool   `json:"vat_exclusive"`
}

func (p Price) IsValid() bool {
	return p.Currency != "" && p.Amount >= 0
}

// Both prices are valid and expressed on the same basis.
func (p Price) IsComparableTo(other Price) bool {
	return p.IsValid() && other.IsValid() &&
		p.Currency == other.Currency &&
		p.VatExclusive == other.VatExclusive
}

func (p Price) String() string {
	if !p.IsValid() {
		return ""
	}

	return helpers.CurrencyFormat(p.Amount, p.Currency)
}

type LicensePrice struct {
	Name   string           `json:"name"`
	Prices map[string]Price `json:"prices"`
}

type ChangelogEntry struct {
	Version string `json:"version"`
	Notes   string `json:"notes"`
	Date    string `json:"date,omitempty"`
}

type Product struct {
	Id          ProductIdentity  `json:"id"`
	SellerId    SellerIdentity   `json:"seller_id"`
	Url         string           `json:"url"`
	Title       string           `json:"title"`
	ImageUrl    string           `json:"image_url,omitempty"`
	Description string           `json:"description,omitempty"`
	LastUpdate  time.Time        `json:"last_update,omitempty"`
	Published   time.Time        `json:"published,omitempty"`
	Changelog   []ChangelogEntry `json:"changelog,omitempty"`
	Versions    []string         `json:"versions,omitempty"`
	// Price in base currency, used for change detection.
	Price       Price            `json:"price"`
	Prices      map[string]Price `json:"prices,omitempty"`
	Licenses    []LicensePrice   `json:"licenses,omitempty"`
	Rating      float64          `json:"rating,omitempty"`
	ReviewCount int              `json:"review_count,omitempty"`
	CheckedAt   time.Time        `json:"checked_at"`
}

// Price in requested currency, falling back to base price.
func (p *Product) GetPriceIn(currency string) Price {
	if price, ok := p.Prices[currency]; ok && price.IsValid() {
		return price
	}

	return p.Price
}

func (p *Product) GetLatestChangelog() (ChangelogEntry, bool) {
	if len(p.Changelog) == 0 {
		return ChangelogEntry{}, false
	}

	return p.Changelog[0], true
}
