package marketplace

import (
	"context"
	"errors"
	"fabtracker/internal/app/helpers"
	"fabtracker/internal/app/logger"
	"math/rand"
	"regexp"
	"strings"
	"time"

	chromedpUndetected "github.com/Davincible/chromedp-undetected"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

const (
	changelogModalSelector = ".fabkit-Modal-content"
	scrollPause            = 1500 * time.Millisecond
	scrollLimit            = 40
)

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

var antiBotTitles = []string{
	"Just a moment",
	"Attention Required",
	"Access denied",
}

var notFoundTitles = []string{
	"Page not found",
	"404",
}

type ScraperConfig struct {
	Timeout      time.Duration
	Retries      int
	DelayMin     time.Duration
	DelayMax     time.Duration
	Headless     bool
	BaseCurrency string
}

type Scraper struct {
	config  ScraperConfig
	limiter *rate.Limiter
	logger  logger.LoggerInterface
}

func NewScraper(config ScraperConfig, logger logger.LoggerInterface) *Scraper {
	if config.Retries < 1 {
		config.Retries = 1
	}

	// one page per minimal delay, short bursts are not allowed
	interval := config.DelayMin
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &Scraper{
		config:  config,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
	}
}

// Fetch seller storefront and details of every listed product.
func (s *Scraper) FetchCatalog(ctx context.Context, seller Seller, options FetchOptions) ([]Product, error) {
	browser, cancel, err := s.newBrowserInstance(ctx)
	if err != nil {
		s.logger.Error("Unable to initialize browser", err)
		return nil, &FetchError{Kind: FetchTimeout, Url: seller.Url, Err: err}
	}

	defer cancel()

	var document string

	err = s.withRetries(ctx, seller.Url, func() error {
		document, err = s.renderPage(browser, seller.Url, options, true)
		return err
	})

	if err != nil {
		return nil, err
	}

	cards, err := ParseSellerPage(document)
	if err != nil {
		return nil, &FetchError{Kind: FetchParseFailure, Url: seller.Url, Err: err}
	}

	s.logger.Println("Found", len(cards), "listing(s) at", seller.Url)

	checkedAt := time.Now().UTC()
	products := make([]Product, 0, len(cards))

	for i, card := range cards {
		product := s.productFromCard(seller, card, checkedAt)

		s.logger.Println("Item", i+1, "/", len(cards), "-", card.Url)

		if err := s.scrapeProduct(ctx, browser, &product, options); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}

			// keep grid data, missing detail fields are skipped by change detection
			s.logger.Warn("Unable to scrape product details:", err)
		}

		products = append(products, product)
	}

	return products, nil
}

// Create new browser instance.
func (s *Scraper) newBrowserInstance(ctx context.Context) (context.Context, context.CancelFunc, error) {
	options := []chromedpUndetected.Option{
		chromedpUndetected.WithContext(ctx),
	}

	if s.config.Headless {
		options = append(options, chromedpUndetected.WithHeadless())
	}

	return chromedpUndetected.New(chromedpUndetected.NewConfig(options...))
}

// Product base record built from storefront grid card.
func (s *Scraper) productFromCard(seller Seller, card ListingCard, checkedAt time.Time) Product {
	product := Product{
		Id:        card.Id,
		SellerId:  seller.Id,
		Url:       card.Url,
		Title:     card.Title,
		ImageUrl:  card.ImageUrl,
		CheckedAt: checkedAt,
	}

	if card.PriceText != "" {
		if price, err := ParsePriceText(card.PriceText, s.config.BaseCurrency); err == nil {
			product.Prices = map[string]Price{price.Currency: price}
		}
	}

	return product
}

// Scrape listing page and its changelog modal into product.
func (s *Scraper) scrapeProduct(ctx context.Context, browser context.Context, product *Product, options FetchOptions) error {
	var document string
	var changelog string

	err := s.withRetries(ctx, product.Url, func() error {
		var err error

		document, changelog, err = s.renderProductPage(browser, product.Url, options)

		return err
	})

	if err != nil {
		return err
	}

	for _, warning := range ApplyProductPage(product, document, s.config.BaseCurrency) {
		s.logger.Warn(product.Url, warning)
	}

	if changelog == "" {
		return nil
	}

	entries, err := ParseChangelog(changelog)
	if err != nil {
		s.logger.Warn(product.Url, &ExtractionWarning{Field: "changelog", Err: err})
		return nil
	}

	product.Changelog = entries

	return nil
}

// Run action with retries separated by random delay; not found pages are not retried.
func (s *Scraper) withRetries(ctx context.Context, url string, action func() error) error {
	var err error

	for attempt := 1; attempt <= s.config.Retries; attempt++ {
		if err = s.limiter.Wait(ctx); err != nil {
			return err
		}

		err = action()
		if err == nil || FetchErrorKindOf(err) == FetchNotFound {
			return err
		}

		s.logger.Warn("Scraping error (attempt", attempt, "/", s.config.Retries, "):", err)

		if attempt < s.config.Retries {
			if err := sleepContext(ctx, s.randomDelay()); err != nil {
				return err
			}
		}
	}

	return err
}

func (s *Scraper) randomDelay() time.Duration {
	spread := s.config.DelayMax - s.config.DelayMin
	if spread <= 0 {
		return s.config.DelayMin
	}

	return s.config.DelayMin + time.Duration(rand.Int63n(int64(spread)))
}

// Render page in a new tab with regional overrides, optionally scrolling to load lazy grid.
func (s *Scraper) renderPage(browser context.Context, url string, options FetchOptions, scroll bool) (string, error) {
	pageContext, cancel := chromedp.NewContext(browser)
	defer cancel()

	pageContext, cancel = context.WithTimeout(pageContext, s.config.Timeout)
	defer cancel()

	var document string

	actions := append(s.regionActions(options), chromedp.Navigate(url))

	response, err := chromedp.RunResponse(pageContext, actions...)
	if err != nil {
		return "", s.classifyError(url, err)
	}

	tasks := chromedp.Tasks{chromedp.Sleep(2 * time.Second)}

	if scroll {
		tasks = append(tasks, s.scrollToBottom())
	}

	tasks = append(tasks, chromedp.OuterHTML("html", &document, chromedp.ByQuery))

	if err := chromedp.Run(pageContext, tasks); err != nil {
		return "", s.classifyError(url, err)
	}

	var status int64
	if response != nil {
		status = response.Status
	}

	if fetchErr := ClassifyPage(url, status, document); fetchErr != nil {
		return "", fetchErr
	}

	return document, nil
}

// Render listing page, then open changelog modal if there is one.
func (s *Scraper) renderProductPage(browser context.Context, url string, options FetchOptions) (string, string, error) {
	pageContext, cancel := chromedp.NewContext(browser)
	defer cancel()

	pageContext, cancel = context.WithTimeout(pageContext, s.config.Timeout)
	defer cancel()

	var document string
	var changelog string

	actions := append(s.regionActions(options), chromedp.Navigate(url))

	response, err := chromedp.RunResponse(pageContext, actions...)
	if err != nil {
		return "", "", s.classifyError(url, err)
	}

	err = chromedp.Run(
		pageContext,
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(time.Second),
		chromedp.OuterHTML("html", &document, chromedp.ByQuery),
	)

	if err != nil {
		return "", "", s.classifyError(url, err)
	}

	var status int64
	if response != nil {
		status = response.Status
	}

	if fetchErr := ClassifyPage(url, status, document); fetchErr != nil {
		return "", "", fetchErr
	}

	// modal is optional, its absence is not an error
	modalContext, cancelModal := context.WithTimeout(pageContext, 5*time.Second)
	defer cancelModal()

	err = chromedp.Run(
		modalContext,
		chromedp.QueryAfter("button", func(ctx context.Context, id runtime.ExecutionContextID, nodes ...*cdp.Node) error {
			for _, node := range nodes {
				var label string
				if err := chromedp.Run(ctx, chromedp.Text([]cdp.NodeID{node.NodeID}, &label, chromedp.ByNodeID)); err != nil {
					continue
				}

				if strings.Contains(label, "Changelog") {
					return chromedp.Run(ctx, chromedp.MouseClickNode(node))
				}
			}

			return errNoChangelog
		}, chromedp.ByQueryAll, chromedp.AtLeast(0)),
		chromedp.WaitVisible(changelogModalSelector, chromedp.ByQuery),
		chromedp.OuterHTML(changelogModalSelector, &changelog, chromedp.ByQuery),
	)

	if err != nil && !errors.Is(err, errNoChangelog) {
		s.logger.Warn(url, &ExtractionWarning{Field: "changelog", Err: err})
	}

	return document, changelog, nil
}

var errNoChangelog = errors.New("no changelog button")

// Locale, timezone and Accept-Language matching requested currency region.
func (s *Scraper) regionActions(options FetchOptions) []chromedp.Action {
	if options.Locale == "" {
		return nil
	}

	language := helpers.ConcatStrings(options.Locale, ",", strings.Split(options.Locale, "-")[0], ";q=0.9")

	return []chromedp.Action{
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": language}),
		emulation.SetLocaleOverride().WithLocale(options.Locale),
		emulation.SetTimezoneOverride(options.Timezone),
	}
}

// Scroll until page height stops growing.
func (s *Scraper) scrollToBottom() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var previousHeight int64

		for i := 0; i < scrollLimit; i++ {
			var height int64
			if err := chromedp.Evaluate(`document.body.scrollHeight`, &height).Do(ctx); err != nil {
				return err
			}

			if height == previousHeight {
				return nil
			}

			previousHeight = height

			if err := chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil).Do(ctx); err != nil {
				return err
			}

			if err := sleepContext(ctx, scrollPause); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *Scraper) classifyError(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: FetchTimeout, Url: url, Err: err}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	return &FetchError{Kind: FetchParseFailure, Url: url, Err: err}
}

// Classify rendered page by response status and well-known page markers.
func ClassifyPage(url string, status int64, document string) *FetchError {
	switch {
	case status == 404 || status == 410:
		return &FetchError{Kind: FetchNotFound, Url: url}
	case status == 403 || status == 429 || status == 503:
		return &FetchError{Kind: FetchBlockedByAntiBot, Url: url}
	}

	if strings.TrimSpace(document) == "" {
		return &FetchError{Kind: FetchParseFailure, Url: url, Err: errors.New("empty document")}
	}

	var title string
	if match := titlePattern.FindStringSubmatch(document); match != nil {
		title = strings.TrimSpace(match[1])
	}

	for _, marker := range antiBotTitles {
		if strings.HasPrefix(title, marker) {
			return &FetchError{Kind: FetchBlockedByAntiBot, Url: url}
		}
	}

	for _, marker := range notFoundTitles {
		if strings.HasPrefix(title, marker) {
			return &FetchError{Kind: FetchNotFound, Url: url}
		}
	}

	return nil
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
