package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"property-tracker/api"
	"property-tracker/config"
	"property-tracker/events"
	"property-tracker/models"
	"property-tracker/scheduler"
	"property-tracker/scraper"
	"property-tracker/scraper/fixture"
	"property-tracker/scraper/lbs"
	"property-tracker/scraper/sparkasse"
	"property-tracker/scraper/volksbank"
	"property-tracker/services"
	"property-tracker/storage"
	"property-tracker/utils"
)

const version = "1.0.0"

func main() {
	once := flag.Bool("once", false, "run one unfiltered search, print the report and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := utils.NewLogger(utils.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *once); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *utils.Logger, once bool) error {
	logger.Info("=== Property Tracker %s starting ===", version)
	logger.Info("Config: mode=%s | cache=%s | ttl=%v | timeout=%v | concurrency=%d | catalog=%s",
		cfg.Mode, cfg.CacheBackend, cfg.CacheTTL, cfg.FetchTimeout, cfg.MaxConcurrency, cfg.CatalogSource)

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("Shutdown: %v", err)
			}
		}
	}()

	var pgCatalog *storage.PostgresCatalog
	if cfg.DatabaseURL != "" {
		pc, err := storage.NewPostgresCatalog(ctx, cfg.DatabaseURL)
		if err != nil {
			if cfg.CatalogSource == config.BackendPostgres {
				return fmt.Errorf("connect catalog database: %w", err)
			}
			logger.Warn("Postgres catalog unavailable, continuing with the file catalog: %v", err)
		} else {
			pgCatalog = pc
			closers = append(closers, pc.Close)
		}
	}
	fileCatalog := storage.NewFileCatalog(cfg.CatalogPath)

	var (
		backend api.Backend
		sched   *scheduler.Scheduler
	)

	switch cfg.Mode {
	case config.ModeLive:
		tracker, cleanup, err := buildTracker(ctx, cfg, logger)
		closers = append(closers, cleanup...)
		if err != nil {
			return err
		}
		backend = api.LiveBackend{Tracker: tracker}

		if cfg.RefreshSchedule != "" && !once {
			writers := []storage.CatalogWriter{fileCatalog}
			if pgCatalog != nil {
				writers = append(writers, pgCatalog)
			}
			sched, err = scheduler.New(cfg.RefreshSchedule, tracker, logger, writers...)
			if err != nil {
				return err
			}
		}

	default:
		var reader storage.CatalogReader = fileCatalog
		if cfg.CatalogSource == config.BackendPostgres {
			reader = pgCatalog
		}
		listings, err := reader.LoadCatalog(ctx)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		backend = api.CatalogBackend{Catalog: services.NewCatalogService(listings, logger)}
	}

	if once {
		result := backend.Search(ctx, models.Criteria{})
		services.PrintReport(os.Stdout, backend.Mode(), result)
		return nil
	}

	if sched != nil {
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	return serve(ctx, cfg.HTTPAddr, api.NewHandler(backend, version, logger), logger)
}

// buildTracker wires one cached adapter per enabled source.
func buildTracker(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*services.Tracker, []func() error, error) {
	var closers []func() error

	store, err := buildCacheStore(ctx, cfg, &closers)
	if err != nil {
		return nil, closers, err
	}

	var notifier scraper.RefreshNotifier = events.Noop{}
	if cfg.RabbitMQURL != "" {
		pub, err := events.NewPublisher(cfg.RabbitMQURL, events.DefaultExchange, logger)
		if err != nil {
			logger.Warn("Refresh events disabled: %v", err)
		} else {
			notifier = pub
			closers = append(closers, pub.Close)
		}
	}

	normalizer := services.NewNormalizer(logger)
	var sources []services.ListingSource
	for _, src := range cfg.EnabledSources() {
		sc := cfg.Source(src)
		fetcher, err := buildFetcher(src, sc, cfg, logger)
		if err != nil {
			return nil, closers, fmt.Errorf("source %s: %w", src, err)
		}
		adapter := scraper.NewCachedAdapter(ctx, fetcher, scraper.NewCache(store, src, logger), normalizer, scraper.Options{
			TTL:          sc.TTL,
			FetchTimeout: sc.Timeout,
			MaxAttempts:  cfg.MaxRetries,
			Notifier:     notifier,
			Logger:       logger,
		})
		logger.Info("Source %s: mode=%s ttl=%v timeout=%v", src, sc.Mode, sc.TTL, sc.Timeout)
		sources = append(sources, adapter)
	}
	if len(sources) == 0 {
		return nil, closers, errors.New("no sources enabled")
	}

	return services.NewTracker(logger, cfg.MaxConcurrency, sources...), closers, nil
}

func buildCacheStore(ctx context.Context, cfg *config.Config, closers *[]func() error) (storage.CacheStore, error) {
	switch cfg.CacheBackend {
	case config.BackendRedis:
		rdb, err := storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store := storage.NewRedisStore(rdb)
		*closers = append(*closers, store.Close)
		return store, nil

	case config.BackendPostgres:
		pool, err := storage.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect cache database: %w", err)
		}
		*closers = append(*closers, func() error { pool.Close(); return nil })
		return storage.NewPostgresStore(ctx, pool)

	default:
		return storage.NewFileStore(cfg.CacheDir)
	}
}

func buildFetcher(src models.Source, sc config.SourceConfig, cfg *config.Config, logger *utils.Logger) (scraper.Fetcher, error) {
	if sc.Mode == config.SourceModeFixture {
		return fixture.New(src, sc.FixturePath), nil
	}

	switch src {
	case models.SourceSparkasse:
		return sparkasse.New(sparkasse.Options{
			BaseURL:   sc.BaseURL,
			UserAgent: sc.UserAgent,
			ChromeBin: cfg.ChromeBin,
			State:     sc.State,
			Logger:    logger,
		}), nil
	case models.SourceVolksbank:
		return volksbank.New(volksbank.Options{
			BaseURL:     sc.BaseURL,
			UserAgent:   sc.UserAgent,
			MinInterval: sc.MinInterval(),
			Logger:      logger,
		})
	case models.SourceLBS:
		return lbs.New(lbs.Options{
			BaseURL:     sc.BaseURL,
			UserAgent:   sc.UserAgent,
			State:       sc.State,
			MinInterval: sc.MinInterval(),
			Logger:      logger,
		})
	default:
		return nil, fmt.Errorf("no live fetcher for %q", src)
	}
}

// serve runs the HTTP server until ctx is cancelled, then drains it.
func serve(ctx context.Context, addr string, handler http.Handler, logger *utils.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
