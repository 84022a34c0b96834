package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/AnatolyKozmin/Shend/internal/bootstrap"
	"github.com/AnatolyKozmin/Shend/internal/service"
	"github.com/AnatolyKozmin/Shend/internal/worker"
	"github.com/AnatolyKozmin/Shend/pkg/cache"
	"github.com/AnatolyKozmin/Shend/pkg/config"
	"github.com/AnatolyKozmin/Shend/pkg/database"
	"github.com/AnatolyKozmin/Shend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "worker")
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

	syncDeps, err := bootstrap.NewSync(ctx, cfg, db, rdb, service.NewMetricsService(), logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init availability sync", "error", err)
	}

	redisOpts := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Sync.QueueDB,
	}

	tracks := syncDeps.Tracks(cfg)
	scheduler := asynq.NewScheduler(redisOpts, nil)
	if err := worker.RegisterSchedules(scheduler, cfg.Sync.Cron, tracks, cfg.Sync.LockTTL); err != nil {
		logr.Sugar().Fatalw("failed to register sync schedules", "error", err)
	}

	srv := asynq.NewServer(redisOpts, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{"default": 1},
	})
	handler := worker.NewSyncHandler(syncDeps.Service, syncDeps.Auth.SystemPrincipal(), logr.Named("sync-worker"))

	if err := scheduler.Start(); err != nil {
		logr.Sugar().Fatalw("scheduler failed to start", "error", err)
	}
	if err := srv.Start(worker.Mux(handler)); err != nil {
		logr.Sugar().Fatalw("worker failed to start", "error", err)
	}
	logr.Sugar().Infow("sync worker started", "cron", cfg.Sync.Cron, "tracks", tracks)

	<-ctx.Done()
	logr.Info("shutting down")
	scheduler.Shutdown()
	srv.Shutdown()
}
