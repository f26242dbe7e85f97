package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"warnet/backend/internal/cache"
	"warnet/backend/internal/catalog"
	"warnet/backend/internal/config"
	"warnet/backend/internal/db"
	"warnet/backend/internal/events"
	"warnet/backend/internal/handler"
	"warnet/backend/internal/lib/sl"
	"warnet/backend/internal/metrics"
	"warnet/backend/internal/receipt"
	"warnet/backend/internal/repository"
	"warnet/backend/internal/router"
	"warnet/backend/internal/service"
	"warnet/backend/internal/store"
	"warnet/backend/internal/timer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := setupLogger(cfg.Env)
	log.Info("starting warnet backend", slog.String("env", cfg.Env), slog.String("store_driver", cfg.StoreDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", sl.Err(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	docs, closeDocs, err := openDocuments(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDocs()

	m := metrics.New()

	var storeOpts []store.Option
	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(ctx, cache.RedisConnection{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Timeout:  2 * time.Second,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		storeOpts = append(storeOpts, store.WithHistoryCache(cache.NewHistoryCache(client, cfg.Redis.HistoryTTL)))
		log.Info("history cache enabled", slog.String("addr", cfg.Redis.Addr))
	}

	publisher, err := newPublisher(cfg, log, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("failed to close publisher", sl.Err(err))
		}
	}()
	emitter := events.NewEmitter(publisher, log, func(t events.Type) {
		m.PublishErrors.WithLabelValues(string(t)).Inc()
	})

	st := store.New(docs, log, storeOpts...)
	timers := timer.NewManager(st, docs, log, timer.Config{
		Tick:         cfg.Timer.Tick,
		SyncInterval: cfg.Timer.SyncInterval,
		OnExpire:     service.OnSessionExpired(ctx, emitter, m),
	})
	defer timers.StopAll()

	authService := service.NewAuthService(repository.NewAdminRepository(docs), cfg.JWTSecret, cfg.TokenTTL, log)
	if err := authService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}

	billingService := service.NewBillingService(
		st,
		catalog.Default(),
		timers,
		receipt.NewGenerator(cfg.ReceiptsDir),
		emitter,
		m,
		log,
	)
	if _, apiErr := billingService.Refresh(ctx); apiErr != nil {
		log.Warn("initial session load failed", slog.String("error", apiErr.Message))
	}

	engine := router.New(
		authService,
		handler.NewAuthHandler(authService),
		handler.NewBillingHandler(billingService),
		m,
		log,
		router.Config{
			CORSOrigins: cfg.CORSOrigins,
			LoginRate:   rate.Limit(cfg.Login.RatePerSecond),
			LoginBurst:  cfg.Login.Burst,
		},
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("backend listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("run server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

func setupLogger(env string) *slog.Logger {
	if env == config.EnvProd {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func openDocuments(ctx context.Context, cfg config.Config) (repository.DocumentStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunPostgresMigrations(ctx, pool, filepath.Join(cfg.MigrationsDir, "postgres")); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return repository.NewPostgresDocumentStore(pool), pool.Close, nil
	default:
		database, err := db.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
			_ = database.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return repository.NewSQLiteDocumentStore(database), func() { _ = database.Close() }, nil
	}
}

func newPublisher(cfg config.Config, log *slog.Logger, m *metrics.Metrics) (events.Publisher, error) {
	if cfg.AMQP.URL == "" {
		log.Info("no broker configured, events are logged only")
		return events.NewNoopPublisher(log), nil
	}

	rabbit, err := events.NewRabbitMQPublisher(cfg.AMQP.URL, log)
	if err != nil {
		return nil, err
	}
	return events.NewBreakerPublisher(rabbit, events.DefaultBreakerConfig(), log, m.SetBreakerState), nil
}
