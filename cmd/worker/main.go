package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"khedma/internal/config"
	"khedma/internal/database"
	"khedma/internal/geocode"
	"khedma/internal/metrics"
	"khedma/internal/tasks"
	"khedma/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
	})

	geocodeClient := geocode.NewClient(cfg.Geocoder, redisClient, logger)
	notifyHandler := worker.NewNotifyTaskHandler(db, redisClient, logger)
	geocodeHandler := worker.NewGeocodeTaskHandler(db, geocodeClient, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeNotifyApplicationSubmitted, notifyHandler)
	mux.Handle(tasks.TypeNotifyApplicationDecided, notifyHandler)
	mux.Handle(tasks.TypeGeocodeJob, geocodeHandler)
	mux.HandleFunc(tasks.TypeGeocodeUser, geocodeHandler.ProcessUserTask)

	logger.Info("worker service started",
		slog.String("redis_addr", cfg.Redis.Addr()),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
