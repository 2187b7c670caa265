package helpers

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
)

const DefaultCurrency string = "USD"

var ErrUnknownCurrency = errors.New("unknown currency code")

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CNY": "¥",
	"KRW": "₩",
	"INR": "₹",
	"BRL": "R$",
	"CAD": "CA$",
	"AUD": "A$",
	"PLN": "zł",
	"CHF": "CHF",
}

// Symbols written after the amount.
var suffixCurrencies = map[string]bool{
	"EUR": true,
	"PLN": true,
	"CHF": true,
}

// Validate ISO 4217 code and return it upper-cased (e.g. "eur" to "EUR").
func ParseCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", ErrUnknownCurrency
	}

	return unit.String(), nil
}

// Get count of minor units in one major unit (100 for USD, 1 for JPY).
func CurrencySubunit(code string) int {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 100
	}

	scale, _ := currency.Standard.Rounding(unit)

	return int(math.Pow10(scale))
}

// Convert major currency to minor (e.g. 24.99 USD to 2499).
func CurrencyToMinor(majorValue float64, code string) int {
	return int(math.Round(majorValue * float64(CurrencySubunit(code))))
}

// Convert minor currency to major (e.g. 2499 USD to 24.99).
func CurrencyToMajor(minorValue int, code string) float64 {
	return float64(minorValue) / float64(CurrencySubunit(code))
}

// Get display symbol, falling back to the code itself.
func CurrencySymbol(code string) string {
	if symbol, ok := currencySymbols[code]; ok {
		return symbol
	}

	return code
}

// Format minor currency as string (e.g. 2499 USD to "$24.99", 1999 EUR to "19.99\u00A0€").
func CurrencyFormat(minorValue int, code string) string {
	subunit := CurrencySubunit(code)
	digits := len(strconv.Itoa(subunit)) - 1

	value := strconv.FormatFloat(CurrencyToMajor(minorValue, code), 'f', digits, 64)
	symbol := CurrencySymbol(code)

	if suffixCurrencies[code] || symbol == code {
		return ConcatStrings(value, "\u00A0", symbol)
	}

	return ConcatStrings(symbol, value)
}
