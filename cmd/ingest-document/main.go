package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/medicalreportflow/internal/api"
	"github.com/Lllllllleong/medicalreportflow/internal/config"
	"github.com/Lllllllleong/medicalreportflow/internal/services"
)

var (
	handler *api.DocumentHandler
	once    sync.Once
	initErr error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleIngestDocument" is the entry point name configured in GCP.
	functions.HTTP("HandleIngestDocument", handleIngestDocument)
}

// main is required by the Go Functions Framework.
func main() {}

// handleIngestDocument accepts a multipart upload and runs the full ingestion
// pipeline for it.
func handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		ingestor, err := services.NewIngestor(context.Background(), cfg)
		if err != nil {
			initErr = err
			return
		}
		handler = api.NewDocumentHandler(ingestor)
	})
	if initErr != nil {
		slog.Error("Critical: Ingestor initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	handler.Upload(w, r)
}
