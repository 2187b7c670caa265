package marketplace

import (
	"context"
	"errors"
	"fmt"
)

type FetchErrorKind string

const (
	FetchTimeout          FetchErrorKind = "timeout"
	FetchBlockedByAntiBot FetchErrorKind = "blocked"
	FetchNotFound         FetchErrorKind = "not_found"
	FetchParseFailure     FetchErrorKind = "parse_failure"
)

type FetchError struct {
	Kind FetchErrorKind
	Url  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.Url, e.Kind)
	}

	return fmt.Sprintf("fetch %s: %s: %v", e.Url, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetch error kind, empty when err is not a FetchError.
func FetchErrorKindOf(err error) FetchErrorKind {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}

	return ""
}

type FetchOptions struct {
	Currency string
	Locale   string
	Timezone string
}

type CatalogFetcher interface {
	FetchCatalog(ctx context.Context, seller Seller, options FetchOptions) ([]Product, error)
}

type regionalSettings struct {
	locale   string
	timezone string
}

// Browser region forcing the storefront to render prices in given currency.
var currencyRegions = map[string]regionalSettings{
	"USD": {locale: "en-US", timezone: "America/New_York"},
	"EUR": {locale: "fr-FR", timezone: "Europe/Paris"},
	"GBP": {locale: "en-GB", timezone: "Europe/London"},
	"JPY": {locale: "ja-JP", timezone: "Asia/Tokyo"},
	"CAD": {locale: "en-CA", timezone: "America/Toronto"},
	"AUD": {locale: "en-AU", timezone: "Australia/Sydney"},
	"PLN": {locale: "pl-PL", timezone: "Europe/Warsaw"},
	"BRL": {locale: "pt-BR", timezone: "America/Sao_Paulo"},
}

// Fetch options overriding IP based geo-lock for currency (unknown ones fall back to USD region).
func OptionsForCurrency(currency string) FetchOptions {
	region, ok := currencyRegions[currency]
	if !ok {
		currency = "USD"
		region = currencyRegions[currency]
	}

	return FetchOptions{
		Currency: currency,
		Locale:   region.locale,
		Timezone: region.timezone,
	}
}
