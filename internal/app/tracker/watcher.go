package tracker

import (
	"context"
	"errors"
	"fabtracker/internal/app/guild"
	"fabtracker/internal/app/lock"
	"fabtracker/internal/app/logger"
	"fabtracker/internal/app/marketplace"
	"fabtracker/internal/app/metrics"
	"fabtracker/internal/app/notification"
	"fabtracker/internal/app/scheduler"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const releaseTimeout = 10 * time.Second

// Sellers already handled during one scheduler tick.
type tickCache struct {
	mutex     sync.Mutex
	processed map[marketplace.SellerIdentity]error
}

func (c *tickCache) get(sellerId marketplace.SellerIdentity) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	err, ok := c.processed[sellerId]

	return ok, err
}

func (c *tickCache) set(sellerId marketplace.SellerIdentity, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.processed[sellerId] = err
}

// Runs guild check cycles: fetch every subscribed seller once per tick, diff, persist and fan out.
type Watcher struct {
	guilds       *guild.Service
	sellers      *marketplace.Service
	fetcher      marketplace.CatalogFetcher
	renderer     *notification.Renderer
	queue        *notification.Queue
	locker       lock.Locker
	logger       logger.LoggerInterface
	baseCurrency string
	now          func() time.Time
	flight       singleflight.Group
	mutex        sync.Mutex
	ticks        map[uint64]*tickCache
}

func NewWatcher(
	guilds *guild.Service,
	sellers *marketplace.Service,
	fetcher marketplace.CatalogFetcher,
	queue *notification.Queue,
	locker lock.Locker,
	logger logger.LoggerInterface,
	baseCurrency string,
) *Watcher {
	return &Watcher{
		guilds:       guilds,
		sellers:      sellers,
		fetcher:      fetcher,
		renderer:     notification.NewRenderer(),
		queue:        queue,
		locker:       locker,
		logger:       logger,
		baseCurrency: baseCurrency,
		now:          time.Now,
		ticks:        map[uint64]*tickCache{},
	}
}

func (w *Watcher) WithClock(now func() time.Time) *Watcher {
	w.now = now
	return w
}

// Check every seller the guild is subscribed to. Seller failures are isolated
// and reported together once the whole cycle went through.
func (w *Watcher) RunCycle(ctx context.Context, tick scheduler.Tick, guildId string) error {
	subscriptions, err := w.guilds.Repository().FindSubscriptions(ctx, guildId)
	if err != nil {
		return fmt.Errorf("unable to load subscriptions: %w", err)
	}

	w.logger.Println("Guild", guildId, "watches", len(subscriptions), "seller(s)")

	failed := 0

	for _, subscription := range subscriptions {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := w.checkSeller(ctx, tick, subscription.SellerId); err != nil {
			w.logger.Warn("Check of seller", subscription.SellerId, "failed:", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d seller check(s) failed", failed, len(subscriptions))
	}

	return nil
}

func (w *Watcher) CloseTick(tick scheduler.Tick) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	delete(w.ticks, tick.Id)
}

// Fetch seller at most once per tick, concurrent guilds wait for the same result.
func (w *Watcher) checkSeller(ctx context.Context, tick scheduler.Tick, sellerId marketplace.SellerIdentity) error {
	cache := w.cacheOf(tick)

	key := strconv.FormatUint(tick.Id, 10) + ":" + string(sellerId)

	_, err, _ := w.flight.Do(key, func() (any, error) {
		if ok, err := cache.get(sellerId); ok {
			return nil, err
		}

		err := w.processSeller(ctx, sellerId)
		cache.set(sellerId, err)

		return nil, err
	})

	return err
}

func (w *Watcher) cacheOf(tick scheduler.Tick) *tickCache {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	cache, ok := w.ticks[tick.Id]
	if !ok {
		cache = &tickCache{processed: map[marketplace.SellerIdentity]error{}}
		w.ticks[tick.Id] = cache
	}

	return cache
}

func (w *Watcher) processSeller(ctx context.Context, sellerId marketplace.SellerIdentity) error {
	handle, err := w.locker.TryAcquire(ctx, lock.SellerKey(string(sellerId)))
	if errors.Is(err, lock.ErrBusy) {
		// a cycle of another tick is on it, its fan-out covers every subscriber
		w.logger.Println("Seller", sellerId, "is being checked already, skipped")
		return nil
	}

	if err != nil {
		return err
	}

	defer w.release(ctx, handle)

	seller, err := w.sellers.FindSeller(ctx, sellerId)
	if errors.Is(err, marketplace.ErrSellerNotFound) {
		w.logger.Println("Seller", sellerId, "was removed, skipped")
		return nil
	}

	if err != nil {
		return err
	}

	subscribers, err := w.guilds.Repository().FindSubscribers(ctx, sellerId)
	if err != nil {
		return err
	}

	if len(subscribers) == 0 {
		return nil
	}

	options := marketplace.OptionsForCurrency(preferredCurrency(subscribers, w.baseCurrency))

	w.logger.Println("Fetching seller", seller.Url, "in", options.Currency)

	products, err := w.fetcher.FetchCatalog(ctx, seller, options)
	if err != nil {
		return w.handleFetchError(ctx, seller, subscribers, err)
	}

	changes, err := w.sellers.ApplyScrape(ctx, seller, products)
	if errors.Is(err, marketplace.ErrSellerNotFound) {
		// last subscriber left while the catalog was fetched
		w.logger.Println("Seller", seller.Id, "was removed during check, skipped")
		return nil
	}

	if err != nil {
		w.saveStatus(ctx, seller, marketplace.StatusError, err)
		return err
	}

	w.saveStatus(ctx, seller, marketplace.StatusSuccess, nil)

	w.logger.Println("Seller", seller.Id, "has", len(products), "product(s),", len(changes), "change(s)")

	for _, change := range changes {
		metrics.DetectedChanges.WithLabelValues(change.Result.Kind.String()).Inc()

		for _, subscriber := range subscribers {
			notificationType, message := w.renderer.RenderChange(subscriber, change)
			w.enqueue(subscriber.Id, notificationType, message)
		}
	}

	return nil
}

func (w *Watcher) handleFetchError(ctx context.Context, seller marketplace.Seller, subscribers []guild.Config, err error) error {
	kind := marketplace.FetchErrorKindOf(err)
	if kind == "" {
		kind = marketplace.FetchParseFailure
	}

	metrics.FetchErrors.WithLabelValues(string(kind)).Inc()

	if kind != marketplace.FetchNotFound {
		w.saveStatus(ctx, seller, marketplace.StatusError, err)
		return err
	}

	wasMissing := seller.LastStatus == marketplace.StatusNotFound
	seller.LastStatus = marketplace.StatusNotFound
	seller.LastCheckedAt = w.now()

	w.saveStatus(ctx, seller, marketplace.StatusNotFound, err)

	if !wasMissing {
		for _, subscriber := range subscribers {
			w.enqueue(subscriber.Id, guild.NotificationWarning, w.renderer.RenderWarning(subscriber, seller))
		}
	}

	return err
}

func (w *Watcher) saveStatus(ctx context.Context, seller marketplace.Seller, status marketplace.SellerStatus, cause error) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	err := w.sellers.SaveStatus(ctx, seller.Id, status, message, w.now())
	if err != nil && !errors.Is(err, marketplace.ErrSellerNotFound) {
		w.logger.Error("Unable to save status of seller", seller.Id, err)
	}
}

// Guilds without a destination for the type get nothing queued.
func (w *Watcher) enqueue(guildId string, notificationType guild.NotificationType, message notification.Message) {
	if message.ChannelId == "" {
		w.logger.Warn("No channel configured for", notificationType, "notifications of guild", guildId, "- skipped")
		metrics.Notifications.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return
	}

	w.queue.Enqueue(guildId, notificationType, message)
}

func (w *Watcher) release(ctx context.Context, handle lock.Handle) {
	releaseContext, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := w.locker.Release(releaseContext, handle); err != nil {
		w.logger.Warn("Unable to release lock", handle.Key, err)
	}
}

// Most common currency among subscribers, ties broken alphabetically.
func preferredCurrency(subscribers []guild.Config, fallback string) string {
	counts := map[string]int{}
	for _, subscriber := range subscribers {
		if subscriber.Currency != "" {
			counts[subscriber.Currency]++
		}
	}

	if len(counts) == 0 {
		return fallback
	}

	currencies := make([]string, 0, len(counts))
	for currency := range counts {
		currencies = append(currencies, currency)
	}

	sort.Slice(currencies, func(i, j int) bool {
		if counts[currencies[i]] != counts[currencies[j]] {
			return counts[currencies[i]] > counts[currencies[j]]
		}

		return currencies[i] < currencies[j]
	})

	return currencies[0]
}
