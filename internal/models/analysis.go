package models

// ProcessingStatus records how far a document got through analysis.
type ProcessingStatus string

const (
	StatusCompleted               ProcessingStatus = "completed"
	StatusUploadedWithoutAnalysis ProcessingStatus = "uploaded_without_analysis"
)

// CategoryUncategorized is used for documents that were never analysed.
const CategoryUncategorized = "Uncategorized"

// DerivedMetadata is computed from a FindingsRecord.
type DerivedMetadata struct {
	Category     string
	Anomalies    []string
	HasAnomalies bool
	AnomalyCount int
}

// Analysis is the outcome of the analysis stage for one document. It is
// either Analyzed or Unanalyzed.
type Analysis interface {
	Status() ProcessingStatus
	Metadata() DerivedMetadata
	isAnalysis()
}

// Analyzed carries the findings and the metadata derived from them. A
// FindingsRecord obtained through the parser fallback still counts.
type Analyzed struct {
	Findings FindingsRecord
	Derived  DerivedMetadata
}

func (Analyzed) Status() ProcessingStatus    { return StatusCompleted }
func (a Analyzed) Metadata() DerivedMetadata { return a.Derived }
func (Analyzed) isAnalysis()                 {}

// Unanalyzed marks a document that was stored without analysis, because it is
// not a PDF, had no text, or the model service could not be used.
type Unanalyzed struct {
	Reason string
}

func (Unanalyzed) Status() ProcessingStatus { return StatusUploadedWithoutAnalysis }

func (Unanalyzed) Metadata() DerivedMetadata {
	return DerivedMetadata{
		Category:  CategoryUncategorized,
		Anomalies: []string{},
	}
}

func (Unanalyzed) isAnalysis() {}
