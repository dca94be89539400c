package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/medicalreportflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// documentRecord is the Firestore shape of an ingested document. Analysis
// fields are only present on documents that completed analysis.
type documentRecord struct {
	UserID           string                 `firestore:"userId"`
	Title            string                 `firestore:"title"`
	FileName         string                 `firestore:"fileName"`
	StorageKey       string                 `firestore:"storagePath"`
	FileURL          string                 `firestore:"fileUrl"`
	FileType         string                 `firestore:"fileType"`
	FileSize         int64                  `firestore:"fileSize"`
	ExtractedText    string                 `firestore:"extractedText,omitempty"`
	Analysis         *models.FindingsRecord `firestore:"analysis,omitempty"`
	Category         string                 `firestore:"category"`
	Anomalies        []string               `firestore:"anomalies"`
	HasAnomalies     bool                   `firestore:"hasAnomalies"`
	AnomalyCount     int                    `firestore:"anomalyCount"`
	ProcessingStatus string                 `firestore:"processingStatus"`
	UnanalyzedReason string                 `firestore:"unanalyzedReason,omitempty"`
	CreatedAt        time.Time              `firestore:"createdAt"`
	UploadedAt       time.Time              `firestore:"uploadedAt,serverTimestamp"`
}

func toRecord(doc *models.IngestedDocument) documentRecord {
	analysis := doc.Analysis
	if analysis == nil {
		analysis = models.Unanalyzed{}
	}
	meta := analysis.Metadata()
	rec := documentRecord{
		UserID:           doc.UserID,
		Title:            doc.Title,
		FileName:         doc.File.FileName,
		StorageKey:       doc.File.StorageKey,
		FileURL:          doc.File.URL,
		FileType:         doc.File.ContentType,
		FileSize:         doc.File.Size,
		ExtractedText:    doc.ExtractedText,
		Category:         meta.Category,
		Anomalies:        meta.Anomalies,
		HasAnomalies:     meta.HasAnomalies,
		AnomalyCount:     meta.AnomalyCount,
		ProcessingStatus: string(analysis.Status()),
		CreatedAt:        doc.CreatedAt,
	}
	if rec.Anomalies == nil {
		rec.Anomalies = []string{}
	}
	switch a := analysis.(type) {
	case models.Analyzed:
		findings := a.Findings
		rec.Analysis = &findings
	case models.Unanalyzed:
		rec.UnanalyzedReason = a.Reason
	}
	return rec
}

func (r documentRecord) toDocument(id string) *models.IngestedDocument {
	doc := &models.IngestedDocument{
		ID:     id,
		UserID: r.UserID,
		Title:  r.Title,
		File: models.StoredFile{
			FileName:    r.FileName,
			StorageKey:  r.StorageKey,
			URL:         r.FileURL,
			ContentType: r.FileType,
			Size:        r.FileSize,
		},
		ExtractedText: r.ExtractedText,
		CreatedAt:     r.CreatedAt,
		UploadedAt:    r.UploadedAt,
	}
	if models.ProcessingStatus(r.ProcessingStatus) == models.StatusCompleted && r.Analysis != nil {
		doc.Analysis = models.Analyzed{
			Findings: *r.Analysis,
			Derived: models.DerivedMetadata{
				Category:     r.Category,
				Anomalies:    r.Anomalies,
				HasAnomalies: r.HasAnomalies,
				AnomalyCount: r.AnomalyCount,
			},
		}
	} else {
		doc.Analysis = models.Unanalyzed{Reason: r.UnanalyzedReason}
	}
	return doc
}

// FirestoreStore writes ingested documents to a Firestore collection.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a store over collection.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	return &FirestoreStore{client: client, collection: collection}
}

// Create adds doc as a new record and returns the generated identifier.
func (s *FirestoreStore) Create(ctx context.Context, doc *models.IngestedDocument) (string, error) {
	ref, _, err := s.client.Collection(s.collection).Add(ctx, toRecord(doc))
	if err != nil {
		return "", fmt.Errorf("failed to create document record: %w", err)
	}
	return ref.ID, nil
}

// Get loads a document by identifier.
func (s *FirestoreStore) Get(ctx context.Context, id string) (*models.IngestedDocument, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, models.NewError(models.ErrNotFound, fmt.Sprintf("document %s not found", id), err)
		}
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}
	var rec documentRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	return rec.toDocument(snap.Ref.ID), nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
