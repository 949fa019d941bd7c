package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"

	"ticketing-core/config"
	"ticketing-core/handlers"
	"ticketing-core/migrations"
	"ticketing-core/security"
	"ticketing-core/services"
	"ticketing-core/utils"
)

func Start() error {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	redisClient, err := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	db, err := utils.NewSQLiteDB(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Apply(db); err != nil {
		return err
	}

	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Services
	locker := services.NewRedisLock(redisClient, cfg)
	inventoryService := services.NewInventoryService(db, redisClient, locker, cfg)
	qrService, err := services.NewQRService(db, locker, cfg)
	if err != nil {
		return err
	}
	transferService := services.NewTransferService(db, locker, cfg)
	relay := services.NewOutboxRelay(db, locker,
		services.NewPubNubPublisher(pn, cfg.PubNubChannel), cfg.RelayBatch)

	// Background workers
	scheduler := services.NewScheduler()
	scheduler.Register("reservation-expiry", cfg.ExpiryInterval,
		services.NewExpiryWorker(db, redisClient, locker, cfg).Run)
	scheduler.Register("inventory-reconcile", cfg.ReconcileInterval,
		services.NewReconciliationWorker(db, redisClient, locker, cfg).Run)
	scheduler.Register("outbox-relay", cfg.RelayInterval, relay.Run)
	scheduler.Start(ctx)

	// Handlers
	reservationHandler := handlers.NewReservationHandler(inventoryService)
	qrHandler := handlers.NewQRHandler(qrService)
	transferHandler := handlers.NewTransferHandler(transferService)
	rateLimiter := security.NewRateLimiter(redisClient, cfg)

	e := echo.New()

	// Reservation endpoints (consumed by the order/checkout service)
	e.POST("/api/reservations", reservationHandler.CreateReservation)
	e.GET("/api/reservations/:id", reservationHandler.GetReservation)
	e.POST("/api/reservations/:id/confirm", reservationHandler.ConfirmReservation)
	e.POST("/api/reservations/:id/cancel", reservationHandler.CancelReservation)

	// QR endpoints
	e.POST("/api/tickets/:id/qr", qrHandler.GenerateToken)
	e.POST("/api/tickets/validate", qrHandler.ValidateToken, rateLimiter.ScanRateLimit())

	// Transfer endpoints
	e.POST("/api/tickets/:id/transfer/validate", transferHandler.CheckEligibility)
	e.POST("/api/tickets/:id/transfer", transferHandler.Transfer)
	e.GET("/api/tickets/:id/transfers", transferHandler.GetHistory)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return c.JSON(503, map[string]string{"status": "unhealthy", "error": err.Error()})
		}
		if err := db.DB().Ping(); err != nil {
			return c.JSON(503, map[string]string{"status": "unhealthy", "error": err.Error()})
		}
		return c.JSON(200, map[string]string{"status": "healthy"})
	})

	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort)
	}

	server := &http.Server{Addr: ":" + cfg.Port, Handler: e}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		slog.Info("shutdown signal received, cleaning up")
		cancel()
		scheduler.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics server starting", "port", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("metrics server failed", "error", err)
	}
}
