// Command ingest-batch ingests every PDF and image in a directory for one user.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/medicalreportflow/internal/config"
	"github.com/Lllllllleong/medicalreportflow/internal/models"
	"github.com/Lllllllleong/medicalreportflow/internal/services"
)

func main() {
	dir := flag.String("dir", ".", "directory containing reports to ingest")
	userID := flag.String("user", "", "user id the documents belong to")
	workers := flag.Int("workers", 4, "number of documents processed concurrently")
	prompt := flag.String("prompt", "", "optional analysis instruction override")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *userID == "" {
		logger.Error("-user is required")
		os.Exit(2)
	}

	os.Exit(run(logger, *dir, *userID, *prompt, *workers))
}

func run(logger *slog.Logger, dir, userID, prompt string, workers int) int {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingestor, err := services.NewIngestor(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize ingestor", "error", err)
		return 1
	}
	defer func() {
		if err := ingestor.Close(); err != nil {
			logger.Warn("error closing clients", "error", err)
		}
	}()

	files, err := listReports(dir)
	if err != nil {
		logger.Error("failed to list directory", "dir", dir, "error", err)
		return 1
	}
	logger.Info("Starting batch ingestion.", "dir", dir, "fileCount", len(files))

	var completed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range files {
		g.Go(func() error {
			doc, err := ingestFile(gctx, ingestor, path, userID, prompt)
			if err != nil {
				failed.Add(1)
				logger.Error("Failed to ingest file", "file", path, "error", err)
				// One bad file does not stop the batch.
				return nil
			}
			completed.Add(1)
			logger.Info("Ingested file.", "file", path, "documentId", doc.ID, "processingStatus", doc.Status())
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("Batch ingestion finished.", "completed", completed.Load(), "failed", failed.Load())
	if failed.Load() > 0 {
		return 1
	}
	return 0
}

func listReports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || services.ContentTypeForName(e.Name()) == "" {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

func ingestFile(ctx context.Context, ingestor *services.IngestorFunction, path, userID, prompt string) (*models.IngestedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	name := filepath.Base(path)
	req := &services.IngestRequest{
		UserID: userID,
		Title:  strings.TrimSuffix(name, filepath.Ext(name)),
		File: &models.SourceFile{
			FileName:    name,
			ContentType: services.ContentTypeForName(name),
			Data:        data,
		},
		PromptOverride: prompt,
	}
	return ingestor.Process(ctx, req, nil)
}
