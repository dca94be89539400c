package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/medicalreportflow/internal/models"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, parts ...string) (string, error) {
	args := m.Called(ctx, parts)
	return args.String(0), args.Error(1)
}

const wellFormed = `{
  "reportTitle": "Blood Test Report",
  "doctorName": "Dr. Mehta",
  "reportDate": "2024-05-01",
  "tests": [
    {"parameter": "Hemoglobin", "value": "10.2", "unit": "g/dL", "referenceRange": "13-17", "status": "LOW"},
    {"parameter": "Glucose", "value": 182, "unit": "mg/dL", "referenceRange": "70-100", "status": "high"}
  ],
  "summary": "Low hemoglobin and high sugar."
}`

func TestParseFindingsWellFormed(t *testing.T) {
	rec := ParseFindings(wellFormed)
	assert.Equal(t, "Blood Test Report", rec.ReportTitle)
	assert.Equal(t, "Dr. Mehta", rec.DoctorName)
	assert.Equal(t, "2024-05-01", rec.ReportDate)
	require.Len(t, rec.Tests, 2)
	assert.Equal(t, models.TestFinding{Parameter: "Hemoglobin", Value: "10.2", Unit: "g/dL", ReferenceRange: "13-17", Status: models.TestStatusLow}, rec.Tests[0])
	assert.Equal(t, "182", rec.Tests[1].Value)
	assert.Equal(t, models.TestStatusHigh, rec.Tests[1].Status)
	assert.Equal(t, "Low hemoglobin and high sugar.", rec.Summary)
}

func TestParseFindingsStripsFences(t *testing.T) {
	want := ParseFindings(wellFormed)
	for name, raw := range map[string]string{
		"tagged":          "```json\n" + wellFormed + "\n```",
		"untagged":        "```\n" + wellFormed + "\n```",
		"padded":          "  \n```json" + wellFormed + "```\n\n",
		"no closing":      "```json\n" + wellFormed,
		"tagged one-line": "```json" + strings.ReplaceAll(wellFormed, "\n", "") + "```",
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, ParseFindings(raw))
		})
	}
}

func TestParseFindingsFallback(t *testing.T) {
	for _, raw := range []string{
		"The report shows mild anemia.",
		"```json\n{\"reportTitle\": \"Blood\",\n```",
		"{not json}",
		"",
	} {
		rec := ParseFindings(raw)
		assert.Equal(t, raw, rec.Summary)
		assert.Empty(t, rec.Tests)
		assert.Empty(t, rec.ReportTitle)
	}
}

func TestParseFindingsNonObjectJSON(t *testing.T) {
	for _, raw := range []string{
		"null",
		"```json\nnull\n```",
		`[{"parameter":"HDL"}]`,
		`"Hemoglobin is low."`,
		"42",
	} {
		rec := ParseFindings(raw)
		assert.Equal(t, raw, rec.Summary, raw)
		assert.Empty(t, rec.Tests, raw)
		assert.Equal(t, models.NotSpecified, rec.DoctorName, raw)
	}
}

func TestParseFindingsDropsNormalResults(t *testing.T) {
	rec := ParseFindings(`{"reportTitle":"Lipid panel","tests":[
		{"parameter":"HDL","value":"55","unit":"mg/dL","referenceRange":">40","status":"NORMAL"},
		{"parameter":"LDL","value":"160","unit":"mg/dL","referenceRange":"<130","status":"HIGH"}
	],"summary":"LDL is high."}`)
	require.Len(t, rec.Tests, 1)
	assert.Equal(t, "LDL", rec.Tests[0].Parameter)
}

func TestParseFindingsDefaults(t *testing.T) {
	rec := ParseFindings(`{"reportTitle":"Thyroid profile","doctorName":null,"tests":[],"summary":"All normal."}`)
	assert.Equal(t, models.NotSpecified, rec.DoctorName)
	assert.Equal(t, models.NotSpecified, rec.ReportDate)
	assert.NotNil(t, rec.Tests)
	assert.Empty(t, rec.Tests)
}

func TestAnalyzeSendsPromptAndTruncatedText(t *testing.T) {
	gen := new(mockGenerator)
	text := strings.Repeat("a", 25) + "é" + strings.Repeat("b", 10)
	gen.On("Generate", mock.Anything, []string{ReportPrompt, strings.Repeat("a", 25) + "é" + strings.Repeat("b", 4)}).
		Return(wellFormed, nil).Once()

	a := NewAnalyzer(gen, nil, Config{MaxChars: 30})
	out, err := a.Analyze(context.Background(), text, "")
	require.NoError(t, err)
	assert.Equal(t, wellFormed, out)
	gen.AssertExpectations(t)
}

func TestAnalyzePromptOverride(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, []string{"custom instruction", "text"}).Return("{}", nil).Once()

	_, err := NewAnalyzer(gen, nil, Config{}).Analyze(context.Background(), "text", "custom instruction")
	require.NoError(t, err)
	gen.AssertExpectations(t)
}

func TestAnalyzeNotConfigured(t *testing.T) {
	_, err := NewAnalyzer(nil, nil, Config{}).Analyze(context.Background(), "text", "")
	assert.ErrorIs(t, err, models.ErrConfiguration)

	_, err = NewAnalyzer(nil, errors.New("GEMINI_API_KEY is not set"), Config{}).Analyze(context.Background(), "text", "")
	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestAnalyzeServiceError(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("connection refused")).Once()

	_, err := NewAnalyzer(gen, nil, Config{}).AnalyzeFindings(context.Background(), "text", "")
	assert.ErrorIs(t, err, models.ErrAnalysisService)
	assert.False(t, errors.Is(err, models.ErrConfiguration))
}

type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, _ ...string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestAnalyzeTimeout(t *testing.T) {
	_, err := NewAnalyzer(slowGenerator{}, nil, Config{Timeout: 10 * time.Millisecond}).Analyze(context.Background(), "text", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAnalysisService)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
}

func TestTruncate(t *testing.T) {
	s, cut := Truncate("hello", 10)
	assert.Equal(t, "hello", s)
	assert.False(t, cut)

	s, cut = Truncate("hello", 5)
	assert.Equal(t, "hello", s)
	assert.False(t, cut)

	s, cut = Truncate("héllo", 2)
	assert.Equal(t, "hé", s)
	assert.True(t, cut)
}
