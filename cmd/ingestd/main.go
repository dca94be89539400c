package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lllllllleong/medicalreportflow/internal/api"
	"github.com/Lllllllleong/medicalreportflow/internal/config"
	"github.com/Lllllllleong/medicalreportflow/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingestor, err := services.NewIngestor(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize ingestor", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := ingestor.Close(); err != nil {
			logger.Warn("error closing clients", "error", err)
		}
	}()

	// The analysis timeout bounds the slowest stage; leave room for upload
	// and the database write.
	router := api.NewRouter(api.NewDocumentHandler(ingestor), cfg.AllowedOrigins, cfg.AnalysisTimeout+time.Minute)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("ingestd listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
