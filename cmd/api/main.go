package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/managethefans/portal-api/internal/config"
	"github.com/managethefans/portal-api/internal/email"
	appointmentHandler "github.com/managethefans/portal-api/internal/handler/appointment"
	authHandler "github.com/managethefans/portal-api/internal/handler/auth"
	billingHandler "github.com/managethefans/portal-api/internal/handler/billing"
	dashboardHandler "github.com/managethefans/portal-api/internal/handler/dashboard"
	messagingHandler "github.com/managethefans/portal-api/internal/handler/messaging"
	notificationHandler "github.com/managethefans/portal-api/internal/handler/notification"
	templateHandler "github.com/managethefans/portal-api/internal/handler/template"
	userHandler "github.com/managethefans/portal-api/internal/handler/user"
	"github.com/managethefans/portal-api/internal/middleware"
	"github.com/managethefans/portal-api/internal/readmodel"
	"github.com/managethefans/portal-api/internal/repository/postgres"
	"github.com/managethefans/portal-api/internal/router"
	appointmentService "github.com/managethefans/portal-api/internal/service/appointment"
	authService "github.com/managethefans/portal-api/internal/service/auth"
	billingService "github.com/managethefans/portal-api/internal/service/billing"
	messagingService "github.com/managethefans/portal-api/internal/service/messaging"
	notificationService "github.com/managethefans/portal-api/internal/service/notification"
	templateService "github.com/managethefans/portal-api/internal/service/template"
	userService "github.com/managethefans/portal-api/internal/service/user"
	"github.com/managethefans/portal-api/internal/sms"
	"github.com/managethefans/portal-api/pkg/auth"
	"github.com/managethefans/portal-api/pkg/messaging/redis"
	"github.com/managethefans/portal-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	// repositories
	userRepo := postgres.NewUserRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	conversationRepo := postgres.NewConversationRepository(db)
	templateRepo := postgres.NewTemplateRepository(db)
	billingRepo := postgres.NewBillingRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	// providers
	emailSvc := email.NewSMTPService(cfg.SMTP)
	var smsSvc sms.Sender = sms.NewNoopSender()
	if cfg.SMS.WebhookURL != "" {
		smsSvc = sms.NewWebhookSender(cfg.SMS)
	}

	jwtSvc := auth.NewJWTService(auth.Config{
		Secret:             cfg.JWT.Secret,
		RefreshSecret:      cfg.JWT.RefreshSecret,
		ExpiryHours:        cfg.JWT.ExpiryHours,
		RefreshExpiryHours: cfg.JWT.RefreshExpiryHours,
	})

	appMetrics := metrics.NewMetrics("portal")

	// services
	notifSvc := notificationService.NewService(notificationRepo, emailSvc, smsSvc, broker, appMetrics)
	appointmentSvc := appointmentService.NewService(appointmentRepo, userRepo, outboxRepo, notifSvc, cfg.Appointments)
	messagingSvc := messagingService.NewService(conversationRepo, userRepo, outboxRepo, notifSvc, broker)
	templateSvc := templateService.NewService(templateRepo, userRepo, notifSvc)
	userSvc := userService.NewService(userRepo, emailSvc, jwtSvc)
	authSvc := authService.NewService(userRepo, jwtSvc)
	billingSvc := billingService.NewService(billingRepo, userRepo, outboxRepo, cfg.Stripe)
	dashboardSvc := readmodel.NewService(notificationRepo, conversationRepo, appointmentRepo)

	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	r := router.NewRouter(
		cfg,
		db,
		authMiddleware,
		authHandler.NewHandler(authSvc, userSvc),
		userHandler.NewHandler(userSvc, authMiddleware),
		appointmentHandler.NewHandler(appointmentSvc, authMiddleware),
		notificationHandler.NewHandler(notifSvc),
		messagingHandler.NewHandler(messagingSvc),
		templateHandler.NewHandler(templateSvc, authMiddleware),
		billingHandler.NewHandler(billingSvc),
		dashboardHandler.NewHandler(dashboardSvc),
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
