package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/managethefans/portal-api/internal/config"
	"github.com/managethefans/portal-api/internal/email"
	"github.com/managethefans/portal-api/internal/repository/postgres"
	notificationService "github.com/managethefans/portal-api/internal/service/notification"
	"github.com/managethefans/portal-api/internal/sms"
	"github.com/managethefans/portal-api/pkg/logger"
	"github.com/managethefans/portal-api/pkg/messaging/redis"
	"github.com/managethefans/portal-api/pkg/metrics"
	"github.com/managethefans/portal-api/pkg/worker"
)

func setupHealthCheck(lg *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			lg.Fatal(err, "health check server failed")
		}
	}()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	lg := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		lg.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		lg.Fatal(err, "failed to connect to Redis")
	}
	defer broker.Close()

	outboxRepo := postgres.NewOutboxRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	userRepo := postgres.NewUserRepository(db)

	emailSvc := email.NewSMTPService(cfg.SMTP)
	var smsSvc sms.Sender = sms.NewNoopSender()
	if cfg.SMS.WebhookURL != "" {
		smsSvc = sms.NewWebhookSender(cfg.SMS)
	}

	appMetrics := metrics.NewMetrics("portal_worker")
	notifSvc := notificationService.NewService(notificationRepo, emailSvc, smsSvc, broker, appMetrics)

	processor := worker.NewOutboxProcessor(
		outboxRepo,
		broker,
		worker.OutboxProcessorConfig{
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval,
			RetryAttempts: cfg.Outbox.RetryAttempts,
			RetryDelay:    cfg.Outbox.RetryDelay,
			RetentionDays: cfg.Outbox.RetentionDays,
		},
		lg,
		appMetrics,
	)

	retrier := worker.NewNotificationRetrier(
		notificationRepo,
		userRepo,
		notifSvc,
		worker.NotificationRetrierConfig{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
		},
		lg,
	)

	setupHealthCheck(lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		lg.Info("shutting down...")
		cancel()
	}()

	// daily retention sweep
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				processor.Sweep(ctx)
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		retrier.Start(ctx)
	}()
	wg.Wait()
}
