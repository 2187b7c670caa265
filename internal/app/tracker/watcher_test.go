package tracker_test

import (
	"context"
	"errors"
	"fabtracker/internal/app/database"
	"fabtracker/internal/app/guild"
	"fabtracker/internal/app/lock"
	"fabtracker/internal/app/logger"
	"fabtracker/internal/app/marketplace"
	"fabtracker/internal/app/notification"
	"fabtracker/internal/app/scheduler"
	"fabtracker/internal/app/tracker"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 15, 0, 0, 30, 0, time.UTC)

type fakeFetcher struct {
	mutex    sync.Mutex
	catalogs map[marketplace.SellerIdentity][]marketplace.Product
	errors   map[marketplace.SellerIdentity]error
	calls    []marketplace.FetchOptions
	started  chan struct{}
	gate     chan struct{}
}

func newFetcher() *fakeFetcher {
	return &fakeFetcher{
		catalogs: map[marketplace.SellerIdentity][]marketplace.Product{},
		errors:   map[marketplace.SellerIdentity]error{},
	}
}

func (f *fakeFetcher) FetchCatalog(ctx context.Context, seller marketplace.Seller, options marketplace.FetchOptions) ([]marketplace.Product, error) {
	f.mutex.Lock()
	f.calls = append(f.calls, options)
	products := append([]marketplace.Product{}, f.catalogs[seller.Id]...)
	err := f.errors[seller.Id]
	started, gate := f.started, f.gate
	f.mutex.Unlock()

	if started != nil {
		started <- struct{}{}
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return products, err
}

func (f *fakeFetcher) Set(sellerId marketplace.SellerIdentity, products ...marketplace.Product) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.catalogs[sellerId] = products
}

func (f *fakeFetcher) Fail(sellerId marketplace.SellerIdentity, err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.errors[sellerId] = err
}

func (f *fakeFetcher) Calls() []marketplace.FetchOptions {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return append([]marketplace.FetchOptions{}, f.calls...)
}

type fixture struct {
	guilds  *guild.Service
	sellers *marketplace.Service
	fetcher *fakeFetcher
	queue   *notification.Queue
	locker  *lock.MemoryLocker
	watcher *tracker.Watcher
}

func newFixture(t *testing.T) fixture {
	db := database.NewTestSqlite(t)
	testLogger := logger.NewTestLogger(t)
	clock := func() time.Time { return now }

	guilds := guild.NewService(guild.NewSqliteRepository(db), guild.Defaults{Timezone: "Europe/Paris", Language: "en", Currency: "USD"})
	sellers := marketplace.NewService(marketplace.NewSqliteRepository(db, testLogger), testLogger)
	fetcher := newFetcher()
	queue := notification.NewQueue()
	locker := lock.NewMemoryLocker(time.Hour, testLogger).WithClock(clock)

	return fixture{
		guilds:  guilds,
		sellers: sellers,
		fetcher: fetcher,
		queue:   queue,
		locker:  locker,
		watcher: tracker.NewWatcher(guilds, sellers, fetcher, queue, locker, testLogger, "USD").WithClock(clock),
	}
}

// Save guild routing new and updated notifications to given channel, then subscribe it.
func (f fixture) subscribe(t *testing.T, guildId string, channelId string, currency string, sellerUrl string) marketplace.Seller {
	ctx := context.Background()

	_, err := f.guilds.Update(ctx, guildId, func(config *guild.Config) error {
		config.Currency = currency
		config.SetChannel(guild.NotificationNew, channelId)
		config.SetChannel(guild.NotificationUpdated, channelId)
		return nil
	})
	require.NoError(t, err)

	seller, err := f.sellers.RegisterSeller(ctx, sellerUrl)
	require.NoError(t, err)

	_, err = f.guilds.Repository().Subscribe(ctx, guildId, seller.Id)
	require.NoError(t, err)

	return seller
}

func product(id string, title string, amount int) marketplace.Product {
	return marketplace.Product{
		Id:         marketplace.ProductIdentity("fab.com/listings/" + id),
		Url:        "https://www.fab.com/listings/" + id,
		Title:      title,
		LastUpdate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Versions:   []string{"5.4", "5.5"},
		Price:      marketplace.Price{Amount: amount, Currency: "USD"},
		CheckedAt:  now,
	}
}

func byGuild(items []notification.Notification) map[string][]notification.Notification {
	grouped := map[string][]notification.Notification{}
	for _, item := range items {
		grouped[item.GuildId] = append(grouped[item.GuildId], item)
	}

	return grouped
}

func fieldValue(embed notification.Embed, name string) string {
	for _, field := range embed.Fields {
		if field.Name == name {
			return field.Value
		}
	}

	return ""
}

func TestFirstCheckNotifiesEverySubscriberOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seller := f.subscribe(t, "A", "100", "USD", "https://www.fab.com/sellers/Acme")
	f.subscribe(t, "B", "200", "USD", "https://www.fab.com/sellers/Acme")

	_, err := f.guilds.Update(ctx, "A", func(config *guild.Config) error {
		config.SetMention(guild.NotificationNew, guild.MentionRule{Enabled: true, Roles: []string{"77"}})
		return nil
	})
	require.NoError(t, err)

	f.fetcher.Set(seller.Id, product("rocks", "Rocks", 1999), product("trees", "Trees", 999))

	tick := scheduler.Tick{Id: 1, StartedAt: now}
	require.NoError(t, f.watcher.RunCycle(ctx, tick, "A"))
	require.NoError(t, f.watcher.RunCycle(ctx, tick, "B"))
	f.watcher.CloseTick(tick)

	assert.Len(t, f.fetcher.Calls(), 1)

	grouped := byGuild(f.queue.Take(100))
	require.Len(t, grouped["A"], 2)
	require.Len(t, grouped["B"], 2)

	for i, title := range []string{"Rocks", "Trees"} {
		assert.Equal(t, guild.NotificationNew, grouped["A"][i].Type)
		assert.Equal(t, title, grouped["A"][i].Payload.Embed.Title)
		assert.Equal(t, "100", grouped["A"][i].Payload.ChannelId)
		assert.Equal(t, "<@&77>", grouped["A"][i].Payload.Content)

		assert.Equal(t, title, grouped["B"][i].Payload.Embed.Title)
		assert.Equal(t, "200", grouped["B"][i].Payload.ChannelId)
		assert.Empty(t, grouped["B"][i].Payload.Content)
	}

	stored, err := f.sellers.FindSeller(ctx, seller.Id)
	require.NoError(t, err)
	assert.Equal(t, marketplace.StatusSuccess, stored.LastStatus)
	assert.True(t, stored.LastCheckedAt.Equal(now))
}

func TestPriceChangeIsNotifiedWithOldAndNewPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seller := f.subscribe(t, "A", "100", "USD", "https://www.fab.com/sellers/Acme")
	f.fetcher.Set(seller.Id, product("rocks", "Rocks", 1999))

	require.NoError(t, f.watcher.RunCycle(ctx, scheduler.Tick{Id: 1}, "A"))
	require.Len(t, f.queue.Take(100), 1)

	require.NoError(t, f.watcher.RunCycle(ctx, scheduler.Tick{Id: 2}, "A"))
	assert.Empty(t, f.queue.Take(100), "unchanged catalog must not notify")

	f.fetcher.Set(seller.Id, product("rocks", "Rocks", 2499))
	require.NoError(t, f.watcher.RunCycle(ctx, scheduler.Tick{Id: 3}, "A"))

	items := f.queue.Take(100)
	require.Len(t, items, 1)

	assert.Equal(t, guild.NotificationUpdated, items[0].Type)
	assert.Equal(t, "price", fieldValue(items[0].Payload.Embed, "Changes"))
	assert.Equal(t, "$19.99 → $24.99", fieldValue(items[0].Payload.Embed, "Price"))
}

func TestSameTickDoesNotRepeatSeller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seller := f.subscribe(t, "A", "100", "USD", "https://www.fab.com/sellers/Acme")
	f.fetcher.Set(seller.Id, product("rocks", "Rocks", 1999))

	tick := scheduler.Tick{Id: 7}
	require.NoError(t, f.watcher.RunCycle(ctx, tick, "A"))
	require.NoError(t, f.watcher.RunCycle(ctx, tick, "A"))
	assert.Len(t, f.fetcher.Calls(), 1)

	f.watcher.CloseTick(tick)

	require.NoError(t, f.watcher.RunCycle(ctx, tick, "A"))
	assert.Len(t, f.fetcher.Calls(), 2, "closed tick forgets processed sellers")
}

func TestNotFoundWarnsOnlyOnTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seller := f.subscribe(t, "A", "100", "USD", "https://www.fab.com/sellers/Gone")
	f.fetcher.Fail(seller.Id, &marketplace.FetchError{Kind: marketplace.FetchNotFound, Url: seller.Url})

	err := f.watcher.RunCycle(ctx, scheduler.Tick{Id: 1}, "A")
	assert.Error(t, err)

	items := f.queue.Take(100)
	require.Len(t, items, 1)
	assert.Equal(t, guild.NotificationWarning, items[0].Type)
	assert.Equal(t, "100", items[0].Payload.ChannelId)
	assert.Contains(t, items[0].Payload.Embed.Description, "Gone")

	stored, err := f.sellers.FindSeller(ctx, seller.Id)
	require.NoError(t, err)
	assert.Equal(t, marketplace.StatusNotFound, stored.LastStatus)
	assert.True(t, stored.IsDegraded())

	assert.Error(t, f.watcher.RunCycle(ctx, scheduler.Tick{Id: 2}, "A"))
	assert.Empty(t, f.queue.Take(100))
}

func TestFetchErrorIsIsolatedPerSeller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	blocked := f.subscribe(t, "A", "100", "USD", "https://www.fab.com/sellers/Blocked")
	healthy := f.subscribe(t, "A", "100", "USD", "https://www.fab.com/sellers/Healthy")

	f.fetcher.Fail(blocked.Id, &marketplace.FetchError{Kind: marketplace.FetchBlockedByAntiBot, Url: blocked.Url})
	f.fetcher.Set(healthy.Id, product("rocks", "Rocks", 1999))

	err := f.watcher.RunCycle(ctx, scheduler.Tick{Id: 1}, "A")
	assert.EqualError(t, err, "1 of 2 seller check(s) failed")

	items := f.queue.Take(100)
	require.Len(t, items, 1)
	assert.Equal(t, "Rocks", items[0].Payload.Embed.Title)

	stored, err := f.sellers.FindSeller(ctx, blocked.Id)
	require.NoError(t, err)
	assert.Equal(t, marketplace.StatusError, stored.LastStatus)
	assert.Contains(t, stored.LastError, "blocked")
}

func TestFetchUsesMostCommonSubscriberCurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seller := f.subscribe(t, "A", "100", "EUR", "https://www.fab.com/sellers/Acme")
	f.subscribe(t, "B", "200", "USD", "https://www.fab.com/sellers/Acme")
	f.subscribe(t, "C", "300", "EUR", "https://www.fab.com/sellers/Acme")
	f.fetcher.Set(seller.Id)

	require.NoError(t, f.watcher.RunCycle(ctx, scheduler.Tick{Id: 1}, "B"))

	calls := f.fetcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, marketplace.OptionsForCurrency("EUR"), calls[0])
}

func TestBusySellerIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seller := f.subscribe(t, "A", "100", "USD", "https://www.fab.com/sellers/Acme")
	f.fetcher.Set(seller.Id, product("rocks", "Rocks", 1999))

	handle, err := f.locker.TryAcquire(ctx, lock.SellerKey(string(seller.Id)))
	require.NoError(t, err)

	require.NoError(t, f.watcher.RunCycle(ctx, scheduler.Tick{Id: 1}, "A"))
	assert.Empty(t, f.fetcher.Calls())

	require.NoError(t, f.locker.Release(ctx, handle))
}

func TestForceCheckDuringScheduledCheckIsBusy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seller := f.subscribe(t, "A", "100", "USD", "https://www.fab.com/sellers/Acme")
	f.fetcher.Set(seller.Id, product("rocks", "Rocks", 1999), product("trees", "Trees", 999))
	f.fetcher.started = make(chan struct{}, 1)
	f.fetcher.gate = make(chan struct{})

	config, err := f.guilds.Get(ctx, "A")
	require.NoError(t, err)

	current := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }
	checks := scheduler.NewScheduler(f.locker, f.watcher, logger.NewTestLogger(t), time.Minute).WithClock(clock)

	checks.Reschedule(ctx, config)
	current = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	checks.Tick(ctx)
	<-f.fetcher.started

	err = checks.ForceCheck(ctx, config)
	assert.True(t, errors.Is(err, lock.ErrBusy), err)

	close(f.fetcher.gate)
	checks.Wait()

	assert.Len(t, f.fetcher.Calls(), 1)
	assert.Len(t, f.queue.Take(100), 2)
}

func TestGuildWithoutChannelGetsNothingQueued(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seller := f.subscribe(t, "A", "", "USD", "https://www.fab.com/sellers/Acme")
	f.subscribe(t, "B", "200", "USD", "https://www.fab.com/sellers/Acme")
	f.fetcher.Set(seller.Id, product("rocks", "Rocks", 1999), product("trees", "Trees", 999))

	tick := scheduler.Tick{Id: 1, StartedAt: now}
	require.NoError(t, f.watcher.RunCycle(ctx, tick, "A"))
	f.watcher.CloseTick(tick)

	grouped := byGuild(f.queue.Take(100))
	assert.Empty(t, grouped["A"])
	assert.Len(t, grouped["B"], 2)
}

func TestSellerRemovedDuringFetchIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seller := f.subscribe(t, "A", "100", "USD", "https://www.fab.com/sellers/Acme")
	f.fetcher.Set(seller.Id, product("rocks", "Rocks", 1999))
	f.fetcher.started = make(chan struct{}, 1)
	f.fetcher.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- f.watcher.RunCycle(ctx, scheduler.Tick{Id: 1, StartedAt: now}, "A")
	}()

	<-f.fetcher.started

	removed, err := f.guilds.Repository().Unsubscribe(ctx, "A", seller.Id)
	require.NoError(t, err)
	require.True(t, removed)
	require.NoError(t, f.sellers.DeleteSeller(ctx, seller.Id))

	close(f.fetcher.gate)

	assert.NoError(t, <-done)
	assert.Zero(t, f.queue.Len())
}
