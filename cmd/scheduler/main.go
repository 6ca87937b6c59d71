package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telecrm_backend/internal/distribution"
	"telecrm_backend/internal/email"
	"telecrm_backend/internal/events"
	apphttp "telecrm_backend/internal/http"
	"telecrm_backend/internal/http/router"
	leadrepo "telecrm_backend/internal/leads/repository"
	"telecrm_backend/internal/notification"
	"telecrm_backend/internal/scheduler"
	"telecrm_backend/platform/config"
	"telecrm_backend/platform/db"
	"telecrm_backend/platform/logger"
	"telecrm_backend/platform/redislock"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	sender := email.NewSender(cfg, log)
	leadStore := leadrepo.New(pool)
	telecallerClient := distribution.NewHTTPClient(cfg, log)

	// Cross-instance sweep lease; absent redis, the in-process guard still
	// protects a single instance.
	var sweepLock *redislock.Lock
	if cfg.GetRedisURL() != "" {
		redisClient, err := redislock.NewClient(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			panic("failed to connect to redis: " + err.Error())
		}
		defer func() { _ = redisClient.Close() }()
		sweepLock = redislock.New(redisClient, "followup:sweep", cfg.GetFollowUpTick())
	} else {
		log.Warn("REDIS_URL not configured; running without the sweep lease")
	}

	notificationModule := notification.NewModule(pool, leadStore, telecallerClient,
		sender, sweepLock, eventBus, cfg, log)
	go notificationModule.Run(ctx)

	// Reconcile worker replays distribution write-backs that failed locally.
	if cfg.GetRedisURL() != "" {
		reconciler := distribution.New(leadStore, telecallerClient, nil, eventBus, log)
		worker, err := scheduler.NewWorker(cfg, reconciler, log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
			panic("failed to initialize scheduler worker: " + err.Error())
		}
		go worker.Run(ctx)
	}

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			notificationModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
