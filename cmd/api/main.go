package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/AnatolyKozmin/Shend/api/swagger"
	"github.com/AnatolyKozmin/Shend/internal/bootstrap"
	"github.com/AnatolyKozmin/Shend/internal/handler"
	"github.com/AnatolyKozmin/Shend/internal/middleware"
	"github.com/AnatolyKozmin/Shend/internal/models"
	"github.com/AnatolyKozmin/Shend/internal/repository"
	"github.com/AnatolyKozmin/Shend/internal/service"
	"github.com/AnatolyKozmin/Shend/pkg/cache"
	"github.com/AnatolyKozmin/Shend/pkg/config"
	"github.com/AnatolyKozmin/Shend/pkg/database"
	"github.com/AnatolyKozmin/Shend/pkg/jobs"
	"github.com/AnatolyKozmin/Shend/pkg/logger"
	"github.com/AnatolyKozmin/Shend/pkg/messaging"
	corsmiddleware "github.com/AnatolyKozmin/Shend/pkg/middleware/cors"
	reqidmiddleware "github.com/AnatolyKozmin/Shend/pkg/middleware/requestid"
)

// @title Shend Interview Booking API
// @version 1.0.0
// @description Interview slot reservation and availability reconciliation
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey OperatorToken
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "api")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("postgres unavailable", "error", err)
	}
	defer db.Close() //nolint:errcheck

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis unavailable", "error", err)
	}
	defer rdb.Close() //nolint:errcheck

	metrics := service.NewMetricsService()

	syncDeps, err := bootstrap.NewSync(ctx, cfg, db, rdb, metrics, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init availability sync", "error", err)
	}

	var notifications *service.NotificationService
	queue := jobs.NewQueue("notifications", jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnExhausted: func(job jobs.Job, err error) {
			notifications.DeliveryFailed(job, err)
		},
	})

	var sinks []service.Sink
	if cfg.Kafka.Enabled {
		producer := messaging.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close() //nolint:errcheck
		sinks = append(sinks, service.NewKafkaSink(producer))
	}
	if cfg.Sheets.ExportSpreadsheet != "" {
		sinks = append(sinks, service.NewSheetsSink(syncDeps.Sheets, syncDeps.Layout, cfg.Sheets.ExportSpreadsheet, cfg.Sheets.ExportLogSheet))
	}
	notifications = service.NewNotificationService(queue, sinks, metrics, logr.Named("notifications"))
	// Outlives the signal context so accepted deliveries can drain on shutdown.
	queue.Start(context.Background())

	bookingRepo := repository.NewBookingRepository(db)
	bookings := service.NewBookingService(database.NewTransactor(db), syncDeps.Slots, bookingRepo, syncDeps.Roster, service.BookingServiceConfig{
		Tracks:  syncDeps.Layout.TrackNames(),
		Events:  notifications,
		Metrics: metrics,
		Logger:  logr.Named("booking"),
	})
	exports := service.NewExportService(bookingRepo, nil, nil, service.CapabilityAuthorizer{}, logr.Named("export"))

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	metricsHandler := handler.NewMetricsHandler(metrics.Handler(), db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	bookingHandler := handler.NewBookingHandler(bookings)
	operatorHandler := handler.NewOperatorHandler(syncDeps.Service, bookings, exports)

	api := r.Group(cfg.APIPrefix)
	api.GET("/tracks/:track/dates", bookingHandler.Dates)
	api.GET("/tracks/:track/buckets", bookingHandler.Buckets)
	api.POST("/tracks/:track/bookings", bookingHandler.Claim)
	api.GET("/tracks/:track/candidates/:candidate/booking", bookingHandler.Current)
	api.POST("/bookings/:id/cancel", bookingHandler.Cancel)

	ops := api.Group("/operator", middleware.OperatorAuth(syncDeps.Auth))
	ops.POST("/sync/:track", middleware.RequireCapability(models.CapabilitySyncAvailability), operatorHandler.Sync)
	ops.GET("/sync/:track", middleware.RequireCapability(models.CapabilitySyncAvailability), operatorHandler.LastSync)
	ops.GET("/bookings", middleware.RequireCapability(models.CapabilityViewBookings), operatorHandler.Bookings)
	ops.GET("/bookings/export", middleware.RequireCapability(models.CapabilityViewBookings), operatorHandler.Export)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "tracks", syncDeps.Layout.TrackNames())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	if err := queue.Drain(shutdownCtx); err != nil {
		logr.Warn("notification queue not drained", zap.Error(err))
	}
	queue.Stop()
}
