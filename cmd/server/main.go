package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/barterhub/barterhub/internal/api/http"
	"github.com/barterhub/barterhub/internal/application/audit"
	"github.com/barterhub/barterhub/internal/application/matching"
	"github.com/barterhub/barterhub/internal/application/notification"
	"github.com/barterhub/barterhub/internal/application/product"
	"github.com/barterhub/barterhub/internal/application/scheduler"
	"github.com/barterhub/barterhub/internal/application/trade"
	"github.com/barterhub/barterhub/internal/config"
	"github.com/barterhub/barterhub/internal/infrastructure/postgres"
	"github.com/barterhub/barterhub/internal/infrastructure/sse"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, "internal/migrations"); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	// repositories
	productRepo := postgres.NewProductRepository(pool)
	tradeRepo := postgres.NewTradeRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)
	settlement := postgres.NewSettlement(pool, logger)

	// infrastructure
	sseHub := sse.NewHub()

	// services
	auditSvc := audit.NewService(auditRepo, logger, cfg.AuditSigningKey)
	notificationSvc := notification.NewService(notificationRepo, sseHub, logger)
	productSvc := product.NewService(productRepo, auditSvc, logger)
	tradeSvc := trade.NewService(tradeRepo, settlement, productSvc, auditSvc, notificationSvc, cfg.ReservationTTL, logger)
	matchingSvc := matching.NewService(tradeRepo, cfg.CycleMaxDepth, logger)

	sched := scheduler.New(
		tradeRepo,
		productRepo,
		settlement,
		auditSvc,
		notificationSvc,
		scheduler.SystemClock{},
		scheduler.Config{
			EscalateAfter:     cfg.ConfirmEscalateAfter,
			AutoCompleteAfter: cfg.AutoCompleteAfter,
		},
		logger,
	)

	// API server
	apiServer := httpapi.NewServer(tradeSvc, productSvc, matchingSvc, notificationSvc, auditSvc, sseHub, cfg.ReservationTTL)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// background loops
	go sseHub.Start(ctx)
	go sched.Run(ctx, cfg.SchedulerInterval)

	go func() {
		ticker := time.NewTicker(cfg.NotificationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = notificationSvc.ProcessPending(ctx, 50)
				_, _ = notificationSvc.RetryFailed(ctx, 50)
				_, _ = notificationSvc.ExpireStale(ctx)
			}
		}
	}()

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
}
