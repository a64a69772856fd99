package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wolethescientist/email-engine/internal/config"
	"github.com/wolethescientist/email-engine/internal/email"
	"github.com/wolethescientist/email-engine/internal/engine"
	"github.com/wolethescientist/email-engine/internal/store"
	"github.com/wolethescientist/email-engine/pkg/types"
)

var (
	version     = "dev"
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("email-engine version %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	// Set log level
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.Info("Starting email engine")

	// Initialize durable store
	st, err := store.Open(cfg.StorePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer st.Close()

	// Initialize mail service and engine
	svc := email.NewService(cfg, st, logger)
	eng := engine.New(svc, st, cfg, logger)

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Run inbox watcher in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := watchInboxes(ctx, eng, cfg, logger); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	case err := <-errChan:
		logger.WithError(err).Error("Watcher error")
		cancel()
	}

	logger.Info("Shutting down email engine")
}

// watchInboxes polls every configured account's inbox on a fixed interval
// until the context is cancelled.
func watchInboxes(ctx context.Context, eng *engine.Engine, cfg *config.Config, logger *logrus.Logger) error {
	interval := time.Duration(cfg.WatchIntervalSeconds) * time.Second
	timeout := time.Duration(cfg.IMAPTimeoutSeconds) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, name := range cfg.AccountNames() {
			if ctx.Err() != nil {
				return nil
			}
			result, err := eng.Poll(name, types.FolderInbox, timeout)
			if err != nil {
				logger.WithError(err).WithField("account", name).Warn("Inbox poll failed")
				continue
			}
			logger.WithFields(logrus.Fields{
				"account": name,
				"total":   result.Total,
				"unseen":  result.Unseen,
				"recent":  result.Recent,
			}).Info("Inbox polled")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
