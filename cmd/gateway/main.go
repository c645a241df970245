package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farhan-ahmed1/taskdesk/internal/config"
	"github.com/farhan-ahmed1/taskdesk/internal/gateway"
	"github.com/farhan-ahmed1/taskdesk/internal/logger"
	"github.com/farhan-ahmed1/taskdesk/internal/storage"
	"github.com/redis/go-redis/v9"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.New("error", "text", "gateway").Fatal("Invalid configuration", logger.Fields{
			"error": err.Error(),
		})
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, "gateway")
	log := logger.GetDefault()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	cancelPing()
	if err != nil {
		log.Fatal("Failed to connect to Redis", logger.Fields{
			"address": cfg.Redis.RedisAddr(),
			"error":   err.Error(),
		})
	}

	store := storage.NewRedisStorage(redisClient)
	defer store.Close()

	srv := gateway.NewServer(gateway.Config{
		Addr:    cfg.Reference.ListenAddr,
		Storage: store,
		Runner:  gateway.NewShellRunner(cfg.Reference.ExecTimeout),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Shutdown signal received", logger.Fields{"signal": sig.String()})
	case err := <-errCh:
		log.Error("Gateway server failed", logger.Fields{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Error("Gateway shutdown failed", logger.Fields{"error": err.Error()})
	}
}
