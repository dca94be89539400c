package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/medicalreportflow/internal/config"
	"github.com/Lllllllleong/medicalreportflow/internal/gcp"
	"github.com/Lllllllleong/medicalreportflow/internal/models"
)

// Object metadata keys read from files dropped into the inbox bucket.
const (
	MetadataTitle     = "title"
	MetadataUserID    = "userId"
	MetadataCreatedAt = "createdAt"
)

// ObjectReader downloads an object and its attributes.
type ObjectReader func(ctx context.Context, bucket, object string, maxBytes int64) ([]byte, *storage.ObjectAttrs, error)

// UploadTriggerFunction ingests files written to the inbox bucket.
type UploadTriggerFunction struct {
	ingestor    *IngestorFunction
	read        ObjectReader
	inboxBucket string
}

// NewUploadTrigger creates the trigger with its own ingestor and storage client.
func NewUploadTrigger(ctx context.Context, cfg *config.Config) (*UploadTriggerFunction, error) {
	if cfg.InboxBucket == "" {
		return nil, fmt.Errorf("INBOX_BUCKET environment variable must be set")
	}
	ingestor, err := NewIngestor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	ingestor.closers = append(ingestor.closers, storageClient.Close)

	read := func(ctx context.Context, bucket, object string, maxBytes int64) ([]byte, *storage.ObjectAttrs, error) {
		return gcp.ReadObject(ctx, storageClient, bucket, object, maxBytes)
	}
	return NewUploadTriggerWithDeps(ingestor, read, cfg.InboxBucket), nil
}

// NewUploadTriggerWithDeps creates the trigger from explicit collaborators.
func NewUploadTriggerWithDeps(ingestor *IngestorFunction, read ObjectReader, inboxBucket string) *UploadTriggerFunction {
	return &UploadTriggerFunction{ingestor: ingestor, read: read, inboxBucket: inboxBucket}
}

// Process ingests the object named by e. Events for other buckets, and
// objects rejected by validation or extraction, are logged and acknowledged.
func (f *UploadTriggerFunction) Process(ctx context.Context, e models.GCSEvent) (*models.IngestedDocument, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if e.Bucket != f.inboxBucket {
		logCtx.Warn("Ignoring event for unexpected bucket.", "inboxBucket", f.inboxBucket)
		return nil, nil
	}
	if strings.HasSuffix(e.Name, "/") {
		logCtx.Info("Ignoring folder placeholder object.")
		return nil, nil
	}
	logCtx.Info("Processing new inbox object.")

	data, attrs, err := f.read(ctx, e.Bucket, e.Name, f.ingestor.MaxUploadBytes())
	if err != nil {
		if isPermanent(err) {
			logCtx.Warn("Rejected inbox object.", "error", err)
			return nil, nil
		}
		logCtx.Error("Failed to download inbox object", "error", err)
		return nil, err
	}

	meta := e.Metadata
	contentType := e.ContentType
	if attrs != nil {
		if len(attrs.Metadata) > 0 {
			meta = attrs.Metadata
		}
		if attrs.ContentType != "" {
			contentType = attrs.ContentType
		}
	}
	fileName := path.Base(e.Name)
	if NormalizeContentType(contentType) == "" || NormalizeContentType(contentType) == "application/octet-stream" {
		contentType = ContentTypeForName(fileName)
	}

	req := &IngestRequest{
		UserID: meta[MetadataUserID],
		Title:  meta[MetadataTitle],
		File: &models.SourceFile{
			FileName:    fileName,
			ContentType: contentType,
			Data:        data,
		},
	}
	if req.Title == "" {
		req.Title = strings.TrimSuffix(fileName, path.Ext(fileName))
	}
	if ts := meta[MetadataCreatedAt]; ts != "" {
		if t, err := ParseClientTime(ts); err == nil {
			req.ClientCreatedAt = t
		}
	}

	progress := func(stage Stage, message string) {
		logCtx.Debug("Ingestion progress.", "stage", stage, "message", message)
	}
	doc, err := f.ingestor.Process(ctx, req, progress)
	if err != nil {
		if isPermanent(err) {
			logCtx.Warn("Rejected inbox object.", "error", err)
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}
