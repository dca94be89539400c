package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Lllllllleong/medicalreportflow/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS medical_documents (
	id                 UUID PRIMARY KEY,
	user_id            TEXT NOT NULL,
	title              TEXT NOT NULL,
	file_name          TEXT NOT NULL,
	storage_key        TEXT NOT NULL,
	file_url           TEXT NOT NULL,
	file_type          TEXT NOT NULL,
	file_size          BIGINT NOT NULL,
	extracted_text     TEXT,
	analysis           JSONB,
	category           TEXT NOT NULL,
	anomalies          TEXT[] NOT NULL DEFAULT '{}',
	has_anomalies      BOOLEAN NOT NULL DEFAULT FALSE,
	anomaly_count      INTEGER NOT NULL DEFAULT 0,
	processing_status  TEXT NOT NULL,
	unanalyzed_reason  TEXT,
	created_at         TIMESTAMPTZ NOT NULL,
	uploaded_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS medical_documents_user_idx ON medical_documents (user_id);
`

// DocumentStore writes ingested documents to Postgres.
type DocumentStore struct {
	pool *pgxpool.Pool
}

// Connect opens a pool and makes sure the documents table exists.
func Connect(ctx context.Context, databaseURL string) (*DocumentStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate medical_documents: %w", err)
	}
	return &DocumentStore{pool: pool}, nil
}

func (s *DocumentStore) Close() error {
	s.pool.Close()
	return nil
}

// Create inserts doc and returns its generated identifier. uploaded_at is
// assigned by the database.
func (s *DocumentStore) Create(ctx context.Context, doc *models.IngestedDocument) (string, error) {
	analysis := doc.Analysis
	if analysis == nil {
		analysis = models.Unanalyzed{}
	}
	meta := analysis.Metadata()
	anomalies := meta.Anomalies
	if anomalies == nil {
		anomalies = []string{}
	}

	var findingsJSON []byte
	var reason *string
	switch a := analysis.(type) {
	case models.Analyzed:
		b, err := json.Marshal(a.Findings)
		if err != nil {
			return "", fmt.Errorf("encode findings: %w", err)
		}
		findingsJSON = b
	case models.Unanalyzed:
		if a.Reason != "" {
			reason = &a.Reason
		}
	}

	var text *string
	if doc.ExtractedText != "" {
		text = &doc.ExtractedText
	}

	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO medical_documents (
			id, user_id, title, file_name, storage_key, file_url, file_type, file_size,
			extracted_text, analysis, category, anomalies, has_anomalies, anomaly_count,
			processing_status, unanalyzed_reason, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		id, doc.UserID, doc.Title, doc.File.FileName, doc.File.StorageKey, doc.File.URL,
		doc.File.ContentType, doc.File.Size, text, findingsJSON, meta.Category, anomalies,
		meta.HasAnomalies, meta.AnomalyCount, string(analysis.Status()), reason, doc.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert medical_documents: %w", err)
	}
	return id, nil
}

// Get loads a document by identifier.
func (s *DocumentStore) Get(ctx context.Context, id string) (*models.IngestedDocument, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.NewError(models.ErrNotFound, fmt.Sprintf("document %s not found", id), err)
	}

	var (
		doc          models.IngestedDocument
		text, reason *string
		findingsJSON []byte
		meta         models.DerivedMetadata
		status       string
		uploadedAt   time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, user_id, title, file_name, storage_key, file_url, file_type, file_size,
		       extracted_text, analysis, category, anomalies, has_anomalies, anomaly_count,
		       processing_status, unanalyzed_reason, created_at, uploaded_at
		FROM medical_documents WHERE id = $1`, id,
	).Scan(
		&doc.ID, &doc.UserID, &doc.Title, &doc.File.FileName, &doc.File.StorageKey, &doc.File.URL,
		&doc.File.ContentType, &doc.File.Size, &text, &findingsJSON, &meta.Category, &meta.Anomalies,
		&meta.HasAnomalies, &meta.AnomalyCount, &status, &reason, &doc.CreatedAt, &uploadedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewError(models.ErrNotFound, fmt.Sprintf("document %s not found", id), err)
	}
	if err != nil {
		return nil, fmt.Errorf("select medical_documents: %w", err)
	}

	doc.UploadedAt = uploadedAt
	if text != nil {
		doc.ExtractedText = *text
	}
	if models.ProcessingStatus(status) == models.StatusCompleted && len(findingsJSON) > 0 {
		var findings models.FindingsRecord
		if err := json.Unmarshal(findingsJSON, &findings); err != nil {
			return nil, fmt.Errorf("decode findings for %s: %w", id, err)
		}
		doc.Analysis = models.Analyzed{Findings: findings, Derived: meta}
	} else {
		u := models.Unanalyzed{}
		if reason != nil {
			u.Reason = *reason
		}
		doc.Analysis = u
	}
	return &doc, nil
}
