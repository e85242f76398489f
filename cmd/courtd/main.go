package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/example/courtbooking/internal/application"
	"github.com/example/courtbooking/internal/config"
	"github.com/example/courtbooking/internal/events"
	"github.com/example/courtbooking/internal/gateway"
	httptransport "github.com/example/courtbooking/internal/http"
	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/locks"
	"github.com/example/courtbooking/internal/logging"
	"github.com/example/courtbooking/internal/metrics"
	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/persistence/memory"
	"github.com/example/courtbooking/internal/persistence/mongostore"
	"github.com/example/courtbooking/internal/persistence/sqlite"
	"github.com/example/courtbooking/internal/pricing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(".env")
	if err != nil {
		logging.New(os.Stderr, slog.LevelInfo).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.Level)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("courtd stopped with error", "error", err)
		os.Exit(1)
	}
}

// store is everything the services need from the primary backend.
type store interface {
	application.ReservationStore
	application.PaymentStore
	application.SessionStore
	persistence.Seeder
}

type app struct {
	handler      http.Handler
	reservations *application.ReservationService
	closers      []func(context.Context) error
}

func (a *app) close(ctx context.Context, logger *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Error("failed to release resource", "error", err)
		}
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		a.close(closeCtx, logger)
	}()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("court booking API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
		return nil
	})
	if cfg.PendingMaxAge > 0 {
		g.Go(func() error {
			reapLoop(gctx, a.reservations, cfg.ReaperInterval, logger)
			return nil
		})
	}
	return g.Wait()
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.close(context.Background(), logger)
		return nil, err
	}

	primary, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, closeStore)

	if cfg.SeedCourts > 0 {
		if err := seed(ctx, primary, cfg); err != nil {
			return fail(fmt.Errorf("seed venue: %w", err))
		}
	}

	pool, err := sqlite.Open(ctx, cfg.LedgerDSN)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, func(context.Context) error { return pool.Close() })
	ledger := sqlite.NewPaymentLedger(pool)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	opts := application.Options{
		Logger:   logger,
		Metrics:  m,
		Location: cfg.Location,
		Locker:   locks.NewLocalLocker(nil),
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fail(fmt.Errorf("redis: ping: %w", err))
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		opts.Locker = locks.NewRedisLocker(client, "courtbooking:lock")
	}
	if cfg.AMQPURL != "" {
		publisher, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, func(context.Context) error { return publisher.Close() })
		opts.Events = publisher
	}

	baseURL := cfg.GatewayBaseURL
	if baseURL == "" {
		if baseURL, err = gateway.BaseURLFor(cfg.GatewayEnv); err != nil {
			return fail(err)
		}
	}
	client, err := gateway.NewClient(gateway.Config{
		BaseURL:      baseURL,
		ClientID:     cfg.GatewayClientID,
		ClientSecret: cfg.GatewayClientSecret,
		BrandName:    cfg.BrandName,
		Timeout:      cfg.GatewayTimeout,
	})
	if err != nil {
		return fail(err)
	}
	exchange, err := pricing.NewExchange(cfg.LocalCurrency, cfg.SettlementCurrency, cfg.ExchangeRate)
	if err != nil {
		return fail(err)
	}

	now := time.Now
	ids := uuid.NewString
	availability := application.NewAvailabilityService(primary, now, cfg.Location, logger)
	reservations := application.NewReservationService(primary, ledger, availability,
		application.PendingPolicy{MaxAge: cfg.PendingMaxAge}, ids, now, opts)
	payments := application.NewPaymentService(primary, ledger, client, exchange,
		application.PaymentURLs{ReturnURL: cfg.ReturnURL, CancelURL: cfg.CancelURL}, ids, now, opts)
	sessions := application.NewSessionService(primary, ids, now, opts)
	revenue := application.NewRevenueService(primary, now, opts)

	a.reservations = reservations
	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Courts:         httptransport.NewCourtHandler(sessions, availability, logger, 0),
		Reservations:   httptransport.NewReservationHandler(reservations, payments, logger),
		Payments:       httptransport.NewPaymentHandler(payments, logger),
		Orders:         httptransport.NewOrderHandler(sessions, logger),
		Revenue:        httptransport.NewRevenueHandler(revenue, logger),
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:         logger,
		RequestTimeout: cfg.GatewayTimeout + 5*time.Second,
	})
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config) (store, func(context.Context) error, error) {
	switch cfg.StoreDriver {
	case "mongo":
		db, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		s := mongostore.NewStore(db)
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(context.Background())
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s := memory.Open()
		return s, func(context.Context) error { return s.Close() }, nil
	}
}

// seed creates the configured number of courts, one rate table and the
// default service catalog on an empty store.
func seed(ctx context.Context, s store, cfg config.Config) error {
	courts, err := s.ListCourts(ctx)
	if err != nil {
		return err
	}
	if len(courts) > 0 {
		return nil
	}

	const tableID = "standard"
	if err := s.UpsertRateTable(ctx, pricing.NewRateTable(tableID, cfg.NormalRate, cfg.SundayRate)); err != nil {
		return err
	}

	now := time.Now()
	for i := 1; i <= cfg.SeedCourts; i++ {
		court := persistence.Court{
			ID:          fmt.Sprintf("court-%d", i),
			Label:       fmt.Sprintf("Court %d", i),
			Status:      lifecycle.CourtAvailable,
			RateTableID: tableID,
			UpdatedAt:   now,
		}
		if err := s.UpsertCourt(ctx, court); err != nil {
			return err
		}
	}

	catalog := []persistence.CatalogItem{
		{ID: "water", Name: "Water", UnitPrice: 10000, Inventory: 100},
		{ID: "shuttlecock", Name: "Shuttlecock", UnitPrice: 30000, Inventory: 50},
		{ID: "towel", Name: "Towel", UnitPrice: 15000, Inventory: 20},
	}
	for _, item := range catalog {
		item.UpdatedAt = now
		if err := s.UpsertCatalogItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func reapLoop(ctx context.Context, reservations *application.ReservationService, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := reservations.ReapAbandoned(ctx); err != nil {
				logger.Warn("reaper pass failed", "error", err)
			}
		}
	}
}
