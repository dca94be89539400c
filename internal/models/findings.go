package models

// NotSpecified is stored when the report does not name a doctor or date.
const NotSpecified = "Not specified"

// TestStatus flags an abnormal parameter.
type TestStatus string

const (
	TestStatusLow  TestStatus = "LOW"
	TestStatusHigh TestStatus = "HIGH"
)

// TestFinding is one abnormal parameter reported in a document. Values,
// units and ranges are kept as free text.
type TestFinding struct {
	Parameter      string     `json:"parameter" firestore:"parameter"`
	Value          string     `json:"value" firestore:"value"`
	Unit           string     `json:"unit" firestore:"unit"`
	ReferenceRange string     `json:"referenceRange" firestore:"referenceRange"`
	Status         TestStatus `json:"status" firestore:"status"`
}

// FindingsRecord is the structured output of the analysis stage.
type FindingsRecord struct {
	ReportTitle string        `json:"reportTitle" firestore:"reportTitle"`
	DoctorName  string        `json:"doctorName" firestore:"doctorName"`
	ReportDate  string        `json:"reportDate" firestore:"reportDate"`
	Tests       []TestFinding `json:"tests" firestore:"tests"`
	Summary     string        `json:"summary" firestore:"summary"`
}
