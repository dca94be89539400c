package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/medicalreportflow/internal/config"
	"github.com/Lllllllleong/medicalreportflow/internal/models"
	"github.com/Lllllllleong/medicalreportflow/internal/services"
)

var (
	triggerInstance *services.UploadTriggerFunction
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Fired for every object finalized in the inbox bucket.
	functions.CloudEvent("IngestUploadedObject", ingestUploadedObject)
}

// main is required by the Go Functions Framework.
func main() {}

func ingestUploadedObject(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		triggerInstance, initErr = services.NewUploadTrigger(context.Background(), cfg)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "eventId", e.ID(), "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Returning an error marks the invocation as failed so it is retried.
	doc, err := triggerInstance.Process(ctx, gcsEvent)
	if err != nil {
		return err
	}
	if doc != nil {
		slog.Info("Inbox object ingested.", "eventId", e.ID(), "documentId", doc.ID, "processingStatus", doc.Status())
	}
	return nil
}
