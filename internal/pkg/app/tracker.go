package app

import (
	"context"
	"errors"
	"fabtracker/internal/app/command"
	"fabtracker/internal/app/config"
	"fabtracker/internal/app/database"
	"fabtracker/internal/app/discord"
	"fabtracker/internal/app/guild"
	"fabtracker/internal/app/httpapi"
	"fabtracker/internal/app/lock"
	"fabtracker/internal/app/logger"
	"fabtracker/internal/app/marketplace"
	"fabtracker/internal/app/notification"
	"fabtracker/internal/app/scheduler"
	"fabtracker/internal/app/tracker"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Storage backend chosen by DB_DRIVER.
type storage struct {
	guilds   guild.Repository
	sellers  marketplace.Repository
	migrator *database.Migrator
	locker   lock.Locker
	ping     httpapi.HealthCheck
	close    func()
}

type TrackerApp struct {
	config     *config.Config
	logger     logger.LoggerInterface
	storage    storage
	redis      *redis.Client
	guilds     *guild.Service
	scheduler  *scheduler.Scheduler
	dispatcher *notification.Dispatcher
	server     *http.Server
}

func NewTrackerApp(ctx context.Context, cfg *config.Config, logger logger.LoggerInterface) (*TrackerApp, error) {
	app := &TrackerApp{config: cfg, logger: logger}

	var err error

	app.storage, err = openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	locker, err := app.newLocker(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	sender, err := discord.NewClient(cfg.Discord.ApiUrl, cfg.Discord.Token, cfg.Discord.RateLimit, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	scraper := marketplace.NewScraper(marketplace.ScraperConfig{
		Timeout:      cfg.Scraper.Timeout,
		Retries:      cfg.Scraper.Retries,
		DelayMin:     cfg.Scraper.DelayMin,
		DelayMax:     cfg.Scraper.DelayMax,
		Headless:     cfg.Scraper.Headless,
		BaseCurrency: cfg.App.BaseCurrency,
	}, logger)

	app.guilds = guild.NewService(app.storage.guilds, guild.Defaults{
		Timezone: cfg.App.Timezone,
		Language: cfg.App.DefaultLanguage,
		Currency: cfg.App.DefaultCurrency,
	})
	sellers := marketplace.NewService(app.storage.sellers, logger)
	queue := notification.NewQueue()

	watcher := tracker.NewWatcher(app.guilds, sellers, scraper, queue, locker, logger, cfg.App.BaseCurrency)
	app.scheduler = scheduler.NewScheduler(locker, watcher, logger, cfg.Scheduler.PollInterval)

	app.dispatcher = notification.NewDispatcher(queue, sender, logger, notification.DispatcherConfig{
		BatchSize:  cfg.Dispatcher.BatchSize,
		BatchDelay: cfg.Dispatcher.BatchDelay,
		RetryDelay: cfg.Dispatcher.RetryDelay,
	})

	checks := map[string]httpapi.HealthCheck{"database": app.storage.ping}
	if app.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return app.redis.Ping(ctx).Err()
		}
	}

	commands := command.NewHandler(app.guilds, sellers, app.scheduler, logger)

	app.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewServer(commands, checks, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return app, nil
}

// Migrate schema, schedule stored guilds and serve until context is done.
func (app *TrackerApp) Run(ctx context.Context) error {
	app.storage.migrator.SetOutput(io.Discard)

	if err := app.storage.migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("unable to migrate database: %w", err)
	}

	if err := app.scheduler.Load(ctx, app.guilds); err != nil {
		return fmt.Errorf("unable to load schedules: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return app.scheduler.Run(ctx)
	})

	group.Go(func() error {
		return app.dispatcher.Run(ctx)
	})

	group.Go(func() error {
		app.logger.Println("Admin API listening on", app.server.Addr)

		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	group.Go(func() error {
		<-ctx.Done()

		shutdownContext, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.Server.ShutdownTimeout)
		defer cancel()

		return app.server.Shutdown(shutdownContext)
	})

	err := group.Wait()

	app.logger.Println("Tracker stopped")

	return err
}

func (app *TrackerApp) Close() {
	if app.redis != nil {
		_ = app.redis.Close()
	}

	if app.storage.close != nil {
		app.storage.close()
	}
}

func (app *TrackerApp) newLocker(ctx context.Context) (lock.Locker, error) {
	staleAfter := app.config.Lock.StaleAfter

	switch app.config.Lock.Driver {
	case config.LockRedis:
		app.redis = redis.NewClient(&redis.Options{
			Addr:     app.config.Lock.RedisAddr,
			Password: app.config.Lock.RedisPassword,
			DB:       app.config.Lock.RedisDB,
		})

		if err := app.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("unable to connect to redis: %w", err)
		}

		return lock.NewRedisLocker(app.redis, staleAfter, app.logger), nil
	case config.LockDatabase:
		return app.storage.locker, nil
	}

	return lock.NewMemoryLocker(staleAfter, app.logger), nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger logger.LoggerInterface) (storage, error) {
	staleAfter := cfg.Lock.StaleAfter

	if cfg.Database.Driver == config.DriverSqlite {
		db, err := database.NewSqlite(cfg.Database.SqliteFile())
		if err != nil {
			return storage{}, err
		}

		migrator, err := database.NewSqliteMigrator(db)
		if err != nil {
			db.CloseConnection()
			return storage{}, err
		}

		return storage{
			guilds:   guild.NewSqliteRepository(db),
			sellers:  marketplace.NewSqliteRepository(db, logger),
			migrator: migrator,
			locker:   lock.NewSqliteLocker(db, staleAfter, logger),
			ping:     db.Ping,
			close:    db.CloseConnection,
		}, nil
	}

	db, err := database.NewPostgres(ctx, cfg.Database.PostgresDsn())
	if err != nil {
		return storage{}, err
	}

	migrator, err := database.NewPostgresMigrator(db)
	if err != nil {
		db.CloseConnection()
		return storage{}, err
	}

	return storage{
		guilds:   guild.NewPostgresRepository(db),
		sellers:  marketplace.NewPostgresRepository(db, logger),
		migrator: migrator,
		locker:   lock.NewPostgresLocker(db, staleAfter, logger),
		ping:     db.Ping,
		close:    db.CloseConnection,
	}, nil
}
