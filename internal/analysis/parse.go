package analysis

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Lllllllleong/medicalreportflow/internal/models"
)

// ParseFindings turns raw model output into a FindingsRecord. Output that is
// not a JSON object is kept whole as the summary; this never fails.
func ParseFindings(raw string) models.FindingsRecord {
	body := stripFences(raw)
	if !strings.HasPrefix(body, "{") {
		return fallbackFindings(raw)
	}
	var doc findingsDoc
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return fallbackFindings(raw)
	}
	return doc.record()
}

// stripFences removes a leading ```json or ``` fence and a trailing ``` fence.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	default:
		return s
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func fallbackFindings(raw string) models.FindingsRecord {
	return models.FindingsRecord{
		DoctorName: models.NotSpecified,
		ReportDate: models.NotSpecified,
		Tests:      []models.TestFinding{},
		Summary:    raw,
	}
}

// findingsDoc mirrors the JSON the model is asked for, but tolerates
// numbers and nulls where strings are expected.
type findingsDoc struct {
	ReportTitle looseString `json:"reportTitle"`
	DoctorName  looseString `json:"doctorName"`
	ReportDate  looseString `json:"reportDate"`
	Tests       []testDoc   `json:"tests"`
	Summary     looseString `json:"summary"`
}

type testDoc struct {
	Parameter      looseString `json:"parameter"`
	Value          looseString `json:"value"`
	Unit           looseString `json:"unit"`
	ReferenceRange looseString `json:"referenceRange"`
	Status         looseString `json:"status"`
}

func (d findingsDoc) record() models.FindingsRecord {
	rec := models.FindingsRecord{
		ReportTitle: string(d.ReportTitle),
		DoctorName:  orNotSpecified(string(d.DoctorName)),
		ReportDate:  orNotSpecified(string(d.ReportDate)),
		Tests:       make([]models.TestFinding, 0, len(d.Tests)),
		Summary:     string(d.Summary),
	}
	for _, t := range d.Tests {
		status, ok := abnormalStatus(string(t.Status))
		if !ok {
			continue
		}
		rec.Tests = append(rec.Tests, models.TestFinding{
			Parameter:      string(t.Parameter),
			Value:          string(t.Value),
			Unit:           string(t.Unit),
			ReferenceRange: string(t.ReferenceRange),
			Status:         status,
		})
	}
	return rec
}

// abnormalStatus normalises a status; anything but HIGH or LOW is dropped.
func abnormalStatus(s string) (models.TestStatus, bool) {
	switch models.TestStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case models.TestStatusHigh:
		return models.TestStatusHigh, true
	case models.TestStatusLow:
		return models.TestStatusLow, true
	}
	return "", false
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return models.NotSpecified
	}
	return s
}

// looseString accepts a JSON string, number, bool or null.
type looseString string

func (l *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*l = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = looseString(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err == nil {
			*l = looseString(n.String())
			return nil
		}
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*l = looseString(strconv.FormatBool(v))
	}
	return nil
}
