package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/avalda/msgview/internal/auth"
	"github.com/avalda/msgview/internal/config"
	"github.com/avalda/msgview/internal/db"
	"github.com/avalda/msgview/internal/handlers"
	"github.com/avalda/msgview/internal/indexer"
	"github.com/avalda/msgview/internal/logging"
	"github.com/avalda/msgview/internal/metrics"
	"github.com/avalda/msgview/internal/parser"
	"github.com/avalda/msgview/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development,
		LogFile:     cfg.LogFile,
		MaxSize:     50,
		MaxBackups:  5,
		MaxAge:      30,
		Compress:    true,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	parser.SetLogger(logger)

	if _, err := os.Stat(cfg.EmailsPath); os.IsNotExist(err) {
		logger.Warn("email archive directory not found, creating it",
			zap.String("path", cfg.EmailsPath))
		if err := os.MkdirAll(cfg.EmailsPath, 0o755); err != nil {
			logger.Fatal("failed to create email archive directory", zap.Error(err))
		}
	}

	database, err := db.Open(cfg.DBPath, cfg.EmailsPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	logger.Info("database opened",
		zap.String("db", cfg.DBPath),
		zap.String("archive", cfg.EmailsPath))

	m := metrics.New()
	idx := indexer.NewIndexer(database, cfg.EmailsPath, logger)

	// Initial synchronization runs in the background so startup does not
	// block on large archives; the API serves whatever is indexed so far.
	go func() {
		result, err := idx.IndexAll()
		if err != nil {
			logger.Error("initial indexing failed", zap.Error(err))
			return
		}
		if count, err := database.CountEmails(); err == nil {
			m.RecordIndexRun(count)
		}
		logger.Info("initial indexing complete",
			zap.Int("indexed", result.Indexed),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
			zap.Int("pruned", result.Pruned))
	}()

	authSvc := auth.NewService(cfg.JWTSecret, cfg.TokenExpiry, []auth.Principal{
		{Username: cfg.AdminUsername, Password: cfg.AdminPassword, Role: auth.RoleAdmin},
		{Username: cfg.UserUsername, Password: cfg.UserPassword, Role: auth.RoleUser},
	})
	relayStore := relay.NewStore(cfg.RelayDomainsFile)

	h := handlers.New(database, cfg, authSvc, relayStore, idx, m, logger)

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("url", cfg.URL()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}
