package models

import (
	"fmt"
	"strings"
	"time"
)

// Accepted media types for uploaded reports.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
)

// DefaultMaxUploadBytes is the largest file accepted for ingestion (10 MiB).
const DefaultMaxUploadBytes int64 = 10 << 20

// SourceFile is the file submitted for ingestion. It is owned by a single
// ingestion call and never persisted directly; only its storage reference is.
type SourceFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Size returns the byte length of the file.
func (f SourceFile) Size() int64 {
	return int64(len(f.Data))
}

// IsPDF reports whether the file declares the PDF media type.
func (f SourceFile) IsPDF() bool {
	return f.ContentType == ContentTypePDF
}

// PageText is the recognised text of a single page.
type PageText struct {
	Number int
	Text   string
}

// ExtractedText holds the page segments of a document in page order.
type ExtractedText struct {
	Pages []PageText
}

// FullText renders every page behind a "=== Page N ===" header. It returns an
// empty string when no page carries any text.
func (e ExtractedText) FullText() string {
	hasText := false
	for _, p := range e.Pages {
		if strings.TrimSpace(p.Text) != "" {
			hasText = true
			break
		}
	}
	if !hasText {
		return ""
	}

	var b strings.Builder
	for _, p := range e.Pages {
		fmt.Fprintf(&b, "\n\n=== Page %d ===\n\n%s", p.Number, p.Text)
	}
	return strings.TrimSpace(b.String())
}

// StoredFile describes the original bytes after they reached the object store.
type StoredFile struct {
	FileName    string
	StorageKey  string
	URL         string
	ContentType string
	Size        int64
}

// IngestedDocument is the record written once per successful upload.
type IngestedDocument struct {
	ID            string
	UserID        string
	Title         string
	File          StoredFile
	ExtractedText string
	Analysis      Analysis
	// CreatedAt is supplied by the client; UploadedAt is assigned by the database.
	CreatedAt  time.Time
	UploadedAt time.Time
}

// Status is a shorthand for the processing status of the document's analysis.
func (d *IngestedDocument) Status() ProcessingStatus {
	if d.Analysis == nil {
		return StatusUploadedWithoutAnalysis
	}
	return d.Analysis.Status()
}
