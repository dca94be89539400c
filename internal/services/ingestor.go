package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/medicalreportflow/internal/aws"
	"github.com/Lllllllleong/medicalreportflow/internal/config"
	"github.com/Lllllllleong/medicalreportflow/internal/extract"
	"github.com/Lllllllleong/medicalreportflow/internal/gcp"
	"github.com/Lllllllleong/medicalreportflow/internal/llm"
	"github.com/Lllllllleong/medicalreportflow/internal/metadata"
	"github.com/Lllllllleong/medicalreportflow/internal/models"
	"github.com/Lllllllleong/medicalreportflow/internal/postgres"
)

// Extractor turns PDF bytes into page text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (models.ExtractedText, error)
}

// Analyzer asks the model for findings about extracted text.
type Analyzer interface {
	AnalyzeFindings(ctx context.Context, text, promptOverride string) (models.FindingsRecord, error)
}

// ObjectStore stores the original file bytes.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// DocumentStore persists ingested document records.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.IngestedDocument) (string, error)
	Get(ctx context.Context, id string) (*models.IngestedDocument, error)
}

// IngestorDeps are the collaborators of an IngestorFunction.
type IngestorDeps struct {
	Extractor Extractor
	Analyzer  Analyzer
	Objects   ObjectStore
	Documents DocumentStore
	// MaxUploadBytes defaults to models.DefaultMaxUploadBytes.
	MaxUploadBytes int64
	// Now defaults to time.Now.
	Now func() time.Time
}

// IngestorFunction runs the extraction, analysis, upload and persistence
// pipeline for one document at a time. It holds no per-call state and is
// safe for concurrent use.
type IngestorFunction struct {
	extractor Extractor
	analyzer  Analyzer
	objects   ObjectStore
	documents DocumentStore
	maxBytes  int64
	now       func() time.Time
	closers   []func() error
}

// NewIngestorWithDeps creates an IngestorFunction from explicit collaborators.
func NewIngestorWithDeps(deps IngestorDeps) *IngestorFunction {
	f := &IngestorFunction{
		extractor: deps.Extractor,
		analyzer:  deps.Analyzer,
		objects:   deps.Objects,
		documents: deps.Documents,
		maxBytes:  deps.MaxUploadBytes,
		now:       deps.Now,
	}
	if f.extractor == nil {
		f.extractor = extract.NewPDFExtractor()
	}
	if f.maxBytes <= 0 {
		f.maxBytes = models.DefaultMaxUploadBytes
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

// NewIngestor builds every client named by cfg.
func NewIngestor(ctx context.Context, cfg *config.Config) (*IngestorFunction, error) {
	var closers []func() error

	var objects ObjectStore
	switch cfg.StorageBackend {
	case config.StorageS3:
		s3Store, err := aws.NewS3Store(ctx, cfg.AwsRegion, cfg.AwsAccessKey, cfg.AwsSecretKey, cfg.ReportsBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 store: %w", err)
		}
		objects = s3Store
	default:
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Storage client: %w", err)
		}
		closers = append(closers, storageClient.Close)
		bucketStore, err := gcp.NewBucketStore(storageClient, cfg.ReportsBucket)
		if err != nil {
			return nil, err
		}
		objects = bucketStore
	}

	var documents DocumentStore
	switch cfg.DatabaseBackend {
	case config.DatabasePostgres:
		pgStore, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres store: %w", err)
		}
		closers = append(closers, pgStore.Close)
		documents = pgStore
	default:
		firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		fsStore := gcp.NewFirestoreStore(firestoreClient, cfg.FirestoreCollection)
		closers = append(closers, fsStore.Close)
		documents = fsStore
	}

	analyzer, closeAnalyzer := llm.NewAnalyzer(ctx, cfg)
	closers = append(closers, closeAnalyzer)

	f := NewIngestorWithDeps(IngestorDeps{
		Analyzer:       analyzer,
		Objects:        objects,
		Documents:      documents,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	f.closers = closers
	slog.Info("Ingestor initialized.",
		"storageBackend", cfg.StorageBackend,
		"databaseBackend", cfg.DatabaseBackend,
		"analysisProvider", cfg.AnalysisProvider,
		"bucket", cfg.ReportsBucket,
	)
	return f, nil
}

// Close releases every client the ingestor created.
func (f *IngestorFunction) Close() error {
	var errs []error
	for _, c := range f.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MaxUploadBytes is the largest file the ingestor accepts.
func (f *IngestorFunction) MaxUploadBytes() int64 { return f.maxBytes }

// Process ingests one document: extraction and analysis for PDFs, then upload
// and a single database write. Analysis failures are downgraded; validation,
// extraction, upload and database failures are returned.
func (f *IngestorFunction) Process(ctx context.Context, req *IngestRequest, progress ProgressFunc) (*models.IngestedDocument, error) {
	// Work on a copy so the caller's request is left as it was passed in.
	r := *req
	if req.File != nil {
		file := *req.File
		file.ContentType = NormalizeContentType(file.ContentType)
		r.File = &file
	}
	req = &r

	if err := req.Validate(f.maxBytes); err != nil {
		progress.report(StageFailed, err.Error())
		return nil, err
	}

	startedAt := f.now()
	createdAt := req.ClientCreatedAt
	if createdAt.IsZero() {
		createdAt = startedAt
	}
	key := StorageKey(req.UserID, req.Title, req.File.FileName, req.File.ContentType, startedAt)
	logCtx := slog.With("userId", req.UserID, "fileName", req.File.FileName, "storageKey", key)
	logCtx.Info("Starting document ingestion.", "contentType", req.File.ContentType, "fileSize", req.File.Size())

	doc := &models.IngestedDocument{
		UserID:    req.UserID,
		Title:     req.Title,
		CreatedAt: createdAt,
	}

	if req.File.IsPDF() {
		text, analysis, err := f.extractAndAnalyze(ctx, logCtx, req, progress)
		if err != nil {
			progress.report(StageFailed, err.Error())
			return nil, err
		}
		doc.ExtractedText = text
		doc.Analysis = analysis
	} else {
		doc.Analysis = models.Unanalyzed{Reason: "analysis is only available for PDF files"}
	}

	progress.report(StageUploading, "Uploading file...")
	url, err := f.objects.Put(ctx, key, req.File.Data, req.File.ContentType)
	if err != nil {
		logCtx.Error("Upload failed; no record will be written.", "error", err)
		err = models.NewError(models.ErrStorage, "failed to upload file", err)
		progress.report(StageFailed, err.Error())
		return nil, err
	}
	doc.File = models.StoredFile{
		FileName:    req.File.FileName,
		StorageKey:  key,
		URL:         url,
		ContentType: req.File.ContentType,
		Size:        req.File.Size(),
	}

	progress.report(StagePersisting, "Saving document...")
	id, err := f.documents.Create(ctx, doc)
	if err != nil {
		// The uploaded object stays behind without a record.
		logCtx.Error("Database write failed after upload; stored file is orphaned.", "error", err, "fileUrl", url)
		err = models.NewError(models.ErrPersistence, "failed to save document record", err)
		progress.report(StageFailed, err.Error())
		return nil, err
	}
	doc.ID = id

	logCtx.Info("Document ingestion complete.",
		"documentId", id,
		"processingStatus", doc.Status(),
		"durationMs", f.now().Sub(startedAt).Milliseconds(),
	)
	progress.report(StageDone, "Document saved.")
	return doc, nil
}

// extractAndAnalyze returns the full text and the analysis outcome. Only an
// extraction failure is returned as an error.
func (f *IngestorFunction) extractAndAnalyze(ctx context.Context, logCtx *slog.Logger, req *IngestRequest, progress ProgressFunc) (string, models.Analysis, error) {
	progress.report(StageExtracting, "Extracting text from PDF...")
	extracted, err := f.extractor.Extract(ctx, req.File.Data)
	if err != nil {
		logCtx.Error("Text extraction failed.", "error", err)
		var ie *models.IngestError
		if !errors.As(err, &ie) {
			err = models.NewError(models.ErrExtraction, "failed to extract text", err)
		}
		return "", nil, err
	}

	text := extracted.FullText()
	logCtx.Info("Text extracted.", "pageCount", len(extracted.Pages), "textLength", len(text))
	if text == "" {
		logCtx.Warn("PDF contains no extractable text; skipping analysis.")
		return "", models.Unanalyzed{Reason: "no extractable text"}, nil
	}

	progress.report(StageAnalyzing, "Analyzing report...")
	if f.analyzer == nil {
		logCtx.Warn("No analyzer configured; continuing without analysis.")
		return text, models.Unanalyzed{Reason: "analysis service is not configured"}, nil
	}
	findings, err := f.analyzer.AnalyzeFindings(ctx, text, req.PromptOverride)
	if err != nil {
		logCtx.Warn("Analysis failed; continuing without analysis.", "error", err)
		progress.report(StageAnalyzing, "Analysis unavailable, saving without analysis...")
		return text, models.Unanalyzed{Reason: err.Error()}, nil
	}

	analyzed := metadata.Analyze(findings)
	logCtx.Info("Analysis complete.",
		"category", analyzed.Derived.Category,
		"anomalyCount", analyzed.Derived.AnomalyCount,
	)
	return text, analyzed, nil
}

// Lookup returns a previously ingested document.
func (f *IngestorFunction) Lookup(ctx context.Context, id string) (*models.IngestedDocument, error) {
	doc, err := f.documents.Get(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, models.NewError(models.ErrPersistence, "failed to load document", err)
	}
	return doc, nil
}

var _ io.Closer = (*IngestorFunction)(nil)
