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
	"github.com/farhan-ahmed1/taskdesk/internal/logger"
	"github.com/farhan-ahmed1/taskdesk/internal/monitoring"
	"github.com/farhan-ahmed1/taskdesk/internal/notify"
	"github.com/farhan-ahmed1/taskdesk/internal/store"
	"github.com/farhan-ahmed1/taskdesk/pkg/client"
	"github.com/farhan-ahmed1/taskdesk/web"
	"github.com/gin-gonic/gin"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.New("error", "text", "taskdesk").Fatal("Invalid configuration", logger.Fields{
			"error": err.Error(),
		})
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, "taskdesk")
	log := logger.GetDefault()

	if logger.ParseLevel(cfg.Logging.Level) > logger.DEBUG {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := monitoring.NewMetrics()

	gw, err := client.New(client.Config{
		BaseURL: cfg.Gateway.BaseURL,
		Timeout: cfg.Gateway.Timeout,
		Metrics: metrics,
	})
	if err != nil {
		log.Fatal("Failed to create gateway client", logger.Fields{"error": err.Error()})
	}
	defer gw.Close()

	feed := notify.NewFeed(cfg.Console.NotificationTTL, cfg.Console.NotificationCapacity)

	st, err := store.New(gw, store.Options{
		Debounce: cfg.Search.Debounce,
		Notifier: notify.Multi{feed, notify.NewLogNotifier(nil)},
		Metrics:  metrics,
	})
	if err != nil {
		log.Fatal("Failed to create task store", logger.Fields{"error": err.Error()})
	}
	defer st.Close()

	// Initial load; a failure is already logged and leaves an empty list
	_ = st.List(context.Background())

	console := web.NewServer(web.Config{
		Addr:    cfg.Console.ListenAddr,
		Store:   st,
		Metrics: metrics,
		Feed:    feed,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := console.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("Task console running", logger.Fields{
		"address": cfg.Console.ListenAddr,
		"gateway": gw.BaseURL(),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Shutdown signal received", logger.Fields{"signal": sig.String()})
	case err := <-errCh:
		log.Error("Console server failed", logger.Fields{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := console.Stop(ctx); err != nil {
		log.Error("Console shutdown failed", logger.Fields{"error": err.Error()})
	}
}
