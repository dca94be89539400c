package models

import "time"

// These structs define the JSON payloads exchanged with the presentation
// layer and the event sources that trigger ingestion.

// DocumentResponse is the flattened JSON view of an IngestedDocument.
type DocumentResponse struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	Title            string           `json:"title"`
	FileName         string           `json:"fileName"`
	StorageKey       string           `json:"storageKey"`
	FileURL          string           `json:"fileUrl"`
	FileType         string           `json:"fileType"`
	FileSize         int64            `json:"fileSize"`
	ExtractedText    string           `json:"extractedText,omitempty"`
	Analysis         *FindingsRecord  `json:"analysis,omitempty"`
	Category         string           `json:"category"`
	Anomalies        []string         `json:"anomalies"`
	HasAnomalies     bool             `json:"hasAnomalies"`
	AnomalyCount     int              `json:"anomalyCount"`
	ProcessingStatus ProcessingStatus `json:"processingStatus"`
	CreatedAt        time.Time        `json:"createdAt"`
	UploadedAt       *time.Time       `json:"uploadedAt,omitempty"`
}

// NewDocumentResponse flattens doc for JSON output.
func NewDocumentResponse(doc *IngestedDocument) DocumentResponse {
	res := DocumentResponse{
		ID:               doc.ID,
		UserID:           doc.UserID,
		Title:            doc.Title,
		FileName:         doc.File.FileName,
		StorageKey:       doc.File.StorageKey,
		FileURL:          doc.File.URL,
		FileType:         doc.File.ContentType,
		FileSize:         doc.File.Size,
		ExtractedText:    doc.ExtractedText,
		ProcessingStatus: doc.Status(),
		CreatedAt:        doc.CreatedAt,
	}
	if !doc.UploadedAt.IsZero() {
		uploaded := doc.UploadedAt
		res.UploadedAt = &uploaded
	}

	analysis := doc.Analysis
	if analysis == nil {
		analysis = Unanalyzed{}
	}
	meta := analysis.Metadata()
	res.Category = meta.Category
	res.Anomalies = meta.Anomalies
	if res.Anomalies == nil {
		res.Anomalies = []string{}
	}
	res.HasAnomalies = meta.HasAnomalies
	res.AnomalyCount = meta.AnomalyCount
	if a, ok := analysis.(Analyzed); ok {
		findings := a.Findings
		res.Analysis = &findings
	}
	return res
}

// IngestResponse is returned by the upload endpoints.
type IngestResponse struct {
	Document DocumentResponse `json:"document"`
	Progress []string         `json:"progress"`
}

// ErrorResponse is written for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// GCSEvent is the payload of a storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket      string            `json:"bucket"`
	Name        string            `json:"name"`
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata"`
}
