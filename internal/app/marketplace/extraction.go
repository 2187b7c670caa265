package marketplace

import (
	"encoding/json"
	"errors"
	"fabtracker/internal/app/helpers"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	changelogLimit      = 3
	changelogNotesLimit = 200
	descriptionLimit    = 500
)

var ErrNoPrice = errors.New("no price found")
var ErrNoDate = errors.New("no date found")

var (
	patternUsdTier       = regexp.MustCompile(`_USD_(\d+)_`)
	patternNumber        = regexp.MustCompile(`\d[\d.,\s\x{00A0}\x{202F}]*\d|\d`)
	patternIsoCode       = regexp.MustCompile(`\b[A-Z]{3}\b`)
	patternPriceText     = regexp.MustCompile(`(?i)(?:from\s*)?(?:[€$£¥]\s?\d[\d.,]*|\d[\d.,]*\s?[€$£¥])`)
	patternLastUpdate    = regexp.MustCompile(`(?i)Last\s+update\s*[:\s]*([A-Za-z]+\s+\d{1,2},?\s*\d{4})`)
	patternPublished     = regexp.MustCompile(`(?i)Published\s*[:\s]*([A-Za-z]+\s+\d{1,2},?\s*\d{4})`)
	patternHumanDate     = regexp.MustCompile(`[A-Za-z]+\s+\d{1,2},?\s*\d{4}`)
	patternVersionsBlock = regexp.MustCompile(`(?i:Supported\s+Unreal\s+Engine\s+Versions)\s*((?:[\d.\s,\-–—]|and)+)`)
	patternVersion       = regexp.MustCompile(`^(\d+)\.(\d+)`)
	patternVersionLabel  = regexp.MustCompile(`(?i)\b(?:v|ver\.?|version)\s*(\d+(?:\.\d+)+)`)
	patternRating        = regexp.MustCompile(`(?i)Average\s+rating\s*([\d.]+)\s*out\s+of\s+5`)
	patternReviews       = regexp.MustCompile(`(?i)total\s+ratings?\s*(\d+)`)
	patternReviewsAlt    = regexp.MustCompile(`(?i)(\d+)\s*reviews?\b`)
)

// Widest minor range expanded; wider ones keep their bounds only.
const maxVersionSpan = 100

var humanDateLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
}

// Symbols ordered from most to least specific.
var priceSymbols = []struct {
	symbol   string
	currency string
}{
	{"US$", "USD"},
	{"CA$", "CAD"},
	{"A$", "AUD"},
	{"R$", "BRL"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"$", "USD"},
}

// Single field that could not be extracted; the rest of the product is still usable.
type ExtractionWarning struct {
	Field string
	Err   error
}

func (w *ExtractionWarning) Error() string {
	return fmt.Sprintf("unable to extract %s: %v", w.Field, w.Err)
}

func (w *ExtractionWarning) Unwrap() error {
	return w.Err
}

type ListingCard struct {
	Id        ProductIdentity
	Url       string
	Title     string
	ImageUrl  string
	PriceText string
}

// Parse displayed price (e.g. "From $24.99", "1.299,00 € excl. VAT", "Free").
func ParsePriceText(text string, fallbackCurrency string) (Price, error) {
	value := strings.TrimSpace(text)
	lower := strings.ToLower(value)

	price := Price{
		Currency:     detectCurrency(value, fallbackCurrency),
		VatExclusive: isVatExclusive(lower),
	}

	if strings.Contains(lower, "free") && !patternNumber.MatchString(value) {
		return price, nil
	}

	number := patternNumber.FindString(value)
	if number == "" {
		return Price{}, ErrNoPrice
	}

	amount, err := parseDecimal(number)
	if err != nil {
		return Price{}, err
	}

	price.Amount = helpers.CurrencyToMinor(amount, price.Currency)

	return price, nil
}

// Expand "4.22 – 4.27 and 5.0 – 5.7" into every minor version of both ranges.
func ExpandVersions(text string) []string {
	normalized := strings.NewReplacer("–", "-", "—", "-", " and ", ",", "&", ",").Replace(text)

	unique := map[[2]int]bool{}

	for _, part := range strings.Split(normalized, ",") {
		bounds := strings.SplitN(part, "-", 2)

		from, ok := parseVersion(bounds[0])
		if !ok {
			continue
		}

		unique[from] = true

		if len(bounds) < 2 {
			continue
		}

		to, ok := parseVersion(bounds[1])
		if !ok {
			continue
		}

		unique[to] = true

		if from[0] == to[0] && to[1]-from[1] <= maxVersionSpan {
			for minor := from[1]; minor <= to[1]; minor++ {
				unique[[2]int{from[0], minor}] = true
			}
		}
	}

	keys := make([][2]int, 0, len(unique))
	for key := range unique {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}

		return keys[i][1] < keys[j][1]
	})

	versions := make([]string, len(keys))
	for i, key := range keys {
		versions[i] = fmt.Sprintf("%d.%d", key[0], key[1])
	}

	return versions
}

// Parse changelog modal into newest-first entries; malformed items are skipped.
func ParseChangelog(document string) ([]ChangelogEntry, error) {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, err
	}

	var entries []ChangelogEntry

	used := map[*html.Node]bool{}

	for _, stack := range findAll(root, hasClasses("fabkit-Stack-root", "fabkit-Stack--column")) {
		headings := findAll(stack, isElement(atom.H3))
		if len(headings) != 1 || used[headings[0]] {
			continue
		}

		content := findFirst(stack, hasClasses("fabkit-RichContent-root"))
		if content == nil {
			continue
		}

		used[headings[0]] = true

		heading := textContent(headings[0])
		notes := textContent(content)

		if strings.Contains(notes, "No notes provided") {
			notes = ""
		}

		entry := ChangelogEntry{
			Version: findVersionLabel(heading, notes),
			Notes:   helpers.Truncate(notes, changelogNotesLimit),
		}

		if date, err := parseHumanDate(heading); err == nil {
			entry.Date = date.Format(helpers.DateIso)
		}

		if entry.Version == "" {
			entry.Version = heading
		}

		if entry.Version == "" {
			continue
		}

		entries = append(entries, entry)

		if len(entries) >= changelogLimit {
			break
		}
	}

	return entries, nil
}

// Parse seller storefront grid into listing cards.
func ParseSellerPage(document string) ([]ListingCard, error) {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, err
	}

	var cards []ListingCard

	seen := map[ProductIdentity]bool{}

	links := findAll(root, func(node *html.Node) bool {
		if node.Type != html.ElementNode || node.DataAtom != atom.A {
			return false
		}

		href := getAttribute(node, "href")

		return strings.HasPrefix(href, "/listings/") || strings.Contains(href, "fab.com/listings/")
	})

	for _, link := range links {
		id, productUrl, err := NormalizeProductUrl(absoluteUrl(getAttribute(link, "href")))
		if err != nil || seen[id] {
			continue
		}

		seen[id] = true

		card := link
		for _, tag := range []atom.Atom{atom.Li, atom.Article, atom.Div} {
			if parent := closest(link, tag); parent != nil {
				card = parent
				break
			}
		}

		listing := ListingCard{
			Id:        id,
			Url:       productUrl,
			Title:     findCardTitle(card, link),
			PriceText: findCardPrice(card),
		}

		if image := findFirst(card, isElement(atom.Img)); image != nil {
			source := getAttribute(image, "src")
			if source == "" {
				source = getAttribute(image, "data-src")
			}

			listing.ImageUrl = absoluteUrl(source)
		}

		cards = append(cards, listing)
	}

	return cards, nil
}

// Fill product with details from rendered listing page. Returned warnings name the
// fields that could not be extracted.
func ApplyProductPage(product *Product, document string, baseCurrency string) []error {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return []error{&ExtractionWarning{Field: "page", Err: err}}
	}

	var warnings []error

	pageText := textContent(root)

	if title := metaContent(root, "og:title"); title != "" && product.Title == "" {
		product.Title = title
	}

	if heading := findFirst(root, isElement(atom.H1)); heading != nil && product.Title == "" {
		product.Title = textContent(heading)
	}

	if image := metaContent(root, "og:image"); image != "" {
		product.ImageUrl = absoluteUrl(image)
	}

	if description := metaContent(root, "og:description"); description != "" {
		product.Description = helpers.Truncate(helpers.SquashSpaces(description), descriptionLimit)
	}

	if err := applyPrices(product, root, pageText, baseCurrency); err != nil {
		warnings = append(warnings, &ExtractionWarning{Field: "price", Err: err})
	}

	if date, err := matchDate(patternLastUpdate, pageText); err == nil {
		product.LastUpdate = date
	} else {
		warnings = append(warnings, &ExtractionWarning{Field: "last update", Err: err})
	}

	if date, err := matchDate(patternPublished, pageText); err == nil {
		product.Published = date
	}

	if match := patternVersionsBlock.FindStringSubmatch(pageText); match != nil {
		product.Versions = ExpandVersions(match[1])
	}

	if len(product.Versions) == 0 {
		warnings = append(warnings, &ExtractionWarning{Field: "versions", Err: errors.New("no supported versions block")})
	}

	if match := patternRating.FindStringSubmatch(pageText); match != nil {
		if rating, err := strconv.ParseFloat(match[1], 64); err == nil {
			product.Rating = rating
		}
	}

	if match := patternReviews.FindStringSubmatch(pageText); match != nil {
		product.ReviewCount, _ = strconv.Atoi(match[1])
	} else if match := patternReviewsAlt.FindStringSubmatch(pageText); match != nil {
		product.ReviewCount, _ = strconv.Atoi(match[1])
	}

	return warnings
}

type priceTierJson struct {
	Price        *float64 `json:"price"`
	CurrencyCode string   `json:"currencyCode"`
	PriceTierId  string   `json:"priceTierId"`
}

type licenseJson struct {
	Name      string         `json:"name"`
	PriceTier *priceTierJson `json:"priceTier"`
}

type listingJson struct {
	Licenses      []licenseJson  `json:"licenses"`
	StartingPrice *priceTierJson `json:"startingPrice"`
	Price         *float64       `json:"price"`
}

type entitiesJson struct {
	Listings map[string]listingJson `json:"listings"`
}

type pageStateJson struct {
	InitialState struct {
		Entities entitiesJson `json:"entities"`
	} `json:"initialState"`
	Entities entitiesJson `json:"entities"`
}

// Resolve prices from embedded listing state, then meta tags, then page text.
func applyPrices(product *Product, root *html.Node, pageText string, baseCurrency string) error {
	prices := map[string]Price{}

	if listing, ok := findListingState(root, product.Id.ListingId()); ok {
		for _, license := range listing.Licenses {
			if license.Name == "" || license.PriceTier == nil {
				continue
			}

			licensePrices := tierPrices(*license.PriceTier)
			if len(licensePrices) == 0 {
				continue
			}

			product.Licenses = append(product.Licenses, LicensePrice{Name: license.Name, Prices: licensePrices})
		}

		if listing.StartingPrice != nil {
			prices = tierPrices(*listing.StartingPrice)
		}

		// cheapest license is the "from" price
		if len(prices) == 0 {
			for _, license := range product.Licenses {
				for code, price := range license.Prices {
					if current, ok := prices[code]; !ok || price.Amount < current.Amount {
						prices[code] = price
					}
				}
			}
		}

		if len(prices) == 0 && listing.Price != nil {
			prices[baseCurrency] = Price{
				Amount:       helpers.CurrencyToMinor(*listing.Price, baseCurrency),
				Currency:     baseCurrency,
				VatExclusive: true,
			}
		}
	}

	if len(prices) == 0 {
		if amount := metaContent(root, "product:price:amount"); amount != "" {
			code := metaContent(root, "product:price:currency")
			if code == "" {
				code = baseCurrency
			}

			if value, err := strconv.ParseFloat(amount, 64); err == nil {
				prices[code] = Price{Amount: helpers.CurrencyToMinor(value, code), Currency: code}
			}
		}
	}

	if len(prices) == 0 {
		if match := patternPriceText.FindString(pageText); match != "" {
			if price, err := ParsePriceText(match, baseCurrency); err == nil {
				prices[price.Currency] = price
			}
		}
	}

	if len(prices) == 0 {
		return ErrNoPrice
	}

	product.Prices = prices
	product.Price = prices[baseCurrency]

	if !product.Price.IsValid() {
		return fmt.Errorf("%w in %s", ErrNoPrice, baseCurrency)
	}

	return nil
}

// Prices of a tier: the rendered local price plus USD recovered from the tier id,
// which is present whatever region the page was rendered for.
func tierPrices(tier priceTierJson) map[string]Price {
	prices := map[string]Price{}

	if tier.Price != nil && tier.CurrencyCode != "" {
		if code, err := helpers.ParseCurrency(tier.CurrencyCode); err == nil {
			prices[code] = Price{
				Amount:       helpers.CurrencyToMinor(*tier.Price, code),
				Currency:     code,
				VatExclusive: true,
			}
		}
	}

	if match := patternUsdTier.FindStringSubmatch(tier.PriceTierId); match != nil {
		if cents, err := strconv.Atoi(match[1]); err == nil {
			prices["USD"] = Price{Amount: cents, Currency: "USD", VatExclusive: true}
		}
	}

	return prices
}

func findListingState(root *html.Node, listingId string) (listingJson, bool) {
	scripts := findAll(root, isElement(atom.Script))

	for _, script := range scripts {
		if script.FirstChild == nil || script.FirstChild.Type != html.TextNode {
			continue
		}

		body := strings.TrimSpace(script.FirstChild.Data)
		if !strings.HasPrefix(body, "{") {
			continue
		}

		var state pageStateJson
		if err := json.Unmarshal([]byte(body), &state); err != nil {
			continue
		}

		for _, listings := range []map[string]listingJson{state.InitialState.Entities.Listings, state.Entities.Listings} {
			for id, listing := range listings {
				if strings.EqualFold(id, listingId) {
					return listing, true
				}
			}
		}
	}

	return listingJson{}, false
}

func findCardTitle(card *html.Node, link *html.Node) string {
	for _, heading := range findAll(card, func(node *html.Node) bool {
		return node != card && node.Type == html.ElementNode &&
			(node.DataAtom == atom.H2 || node.DataAtom == atom.H3 || node.DataAtom == atom.H4)
	}) {
		if text := textContent(heading); isTitleCandidate(text) {
			return text
		}
	}

	for _, name := range []string{"aria-label", "title"} {
		if text := strings.TrimSpace(getAttribute(link, name)); isTitleCandidate(text) {
			return text
		}
	}

	// innermost text elements only, containers would glue title and price together
	for _, node := range findAll(card, func(node *html.Node) bool {
		return node != card && node.Type == html.ElementNode &&
			(node.DataAtom == atom.Span || node.DataAtom == atom.P || node.DataAtom == atom.Div) &&
			!hasElementChildren(node)
	}) {
		if text := textContent(node); isTitleCandidate(text) {
			return text
		}
	}

	return textContent(link)
}

func findCardPrice(card *html.Node) string {
	return patternPriceText.FindString(textContent(card))
}

func isTitleCandidate(text string) bool {
	if len(text) <= 3 {
		return false
	}

	for _, prefix := range []string{"From", "€", "$", "£"} {
		if strings.HasPrefix(text, prefix) {
			return false
		}
	}

	head := text
	if len(head) > 3 {
		head = head[:3]
	}

	return !strings.ContainsAny(head, "0123456789")
}

func hasElementChildren(node *html.Node) bool {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode {
			return true
		}
	}

	return false
}

func detectCurrency(value string, fallback string) string {
	for _, code := range patternIsoCode.FindAllString(value, -1) {
		if parsed, err := helpers.ParseCurrency(code); err == nil && code != "VAT" {
			return parsed
		}
	}

	for _, item := range priceSymbols {
		if strings.Contains(value, item.symbol) {
			return item.currency
		}
	}

	return fallback
}

func isVatExclusive(lower string) bool {
	for _, marker := range []string{"excl", "vat excluded", "+ vat", "+vat", "hors taxe", " ht", "before tax"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	return false
}

// Parse number with either decimal separator ("1.299,00", "1,299.00", "24,99").
func parseDecimal(number string) (float64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00A0' || r == '\u202F' {
			return -1
		}

		return r
	}, number)

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		cleaned = normalizeSingleSeparator(cleaned, ",")
	case lastDot >= 0:
		cleaned = normalizeSingleSeparator(cleaned, ".")
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNoPrice, number)
	}

	return math.Round(value*100) / 100, nil
}

// Single kind of separator is decimal only when it appears once with at most two digits after.
func normalizeSingleSeparator(number string, separator string) string {
	if strings.Count(number, separator) == 1 && len(number)-strings.Index(number, separator)-1 <= 2 {
		return strings.Replace(number, separator, ".", 1)
	}

	return strings.ReplaceAll(number, separator, "")
}

func parseVersion(value string) ([2]int, bool) {
	match := patternVersion.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return [2]int{}, false
	}

	major, _ := strconv.Atoi(match[1])
	minor, _ := strconv.Atoi(match[2])

	return [2]int{major, minor}, true
}

func findVersionLabel(values ...string) string {
	for _, value := range values {
		if match := patternVersionLabel.FindStringSubmatch(value); match != nil {
			return match[1]
		}
	}

	return ""
}

func matchDate(pattern *regexp.Regexp, text string) (time.Time, error) {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return time.Time{}, ErrNoDate
	}

	return parseHumanDate(match[1])
}

func parseHumanDate(value string) (time.Time, error) {
	candidate := patternHumanDate.FindString(value)
	if candidate == "" {
		return time.Time{}, ErrNoDate
	}

	candidate = helpers.SquashSpaces(candidate)

	for _, layout := range humanDateLayouts {
		if date, err := time.Parse(layout, candidate); err == nil {
			return date, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrNoDate, value)
}
