package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/medicalreportflow/internal/analysis"
	"github.com/Lllllllleong/medicalreportflow/internal/models"
)

type fakeExtractor struct {
	out   models.ExtractedText
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte) (models.ExtractedText, error) {
	f.calls++
	return f.out, f.err
}

type fakeGenerator struct {
	out   string
	err   error
	calls int
	parts []string
}

func (g *fakeGenerator) Generate(_ context.Context, parts ...string) (string, error) {
	g.calls++
	g.parts = parts
	return g.out, g.err
}

type fakeObjects struct {
	mu   sync.Mutex
	puts map[string][]byte
	err  error
}

func (o *fakeObjects) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.puts == nil {
		o.puts = map[string][]byte{}
	}
	o.puts[key] = data
	return "https://storage.example/" + key, nil
}

type fakeDocuments struct {
	mu   sync.Mutex
	docs map[string]*models.IngestedDocument
	err  error
}

func (d *fakeDocuments) Create(_ context.Context, doc *models.IngestedDocument) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.docs == nil {
		d.docs = map[string]*models.IngestedDocument{}
	}
	id := "doc-" + string(rune('a'+len(d.docs)))
	copied := *doc
	d.docs[id] = &copied
	return id, nil
}

func (d *fakeDocuments) Get(_ context.Context, id string) (*models.IngestedDocument, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[id]
	if !ok {
		return nil, models.NewError(models.ErrNotFound, "document "+id+" not found", nil)
	}
	return doc, nil
}

const twoAbnormal = "```json\n" + `{
  "reportTitle": "Kidney Function Test Report",
  "doctorName": "Dr. Iyer",
  "reportDate": "2024-02-10",
  "tests": [
    {"parameter": "Creatinine", "value": "2.1", "unit": "mg/dL", "referenceRange": "0.7-1.3", "status": "HIGH"},
    {"parameter": "Estimated Glomerular Filtration Rate", "value": "48", "unit": "mL/min", "referenceRange": ">90", "status": "LOW"}
  ],
  "summary": "Your kidneys are filtering more slowly than normal."
}` + "\n```"

var fixedNow = time.Date(2024, 2, 10, 9, 30, 0, 0, time.UTC)

type harness struct {
	extractor *fakeExtractor
	gen       *fakeGenerator
	objects   *fakeObjects
	documents *fakeDocuments
	ingestor  *IngestorFunction
}

func newHarness(genErr error) *harness {
	h := &harness{
		extractor: &fakeExtractor{out: models.ExtractedText{Pages: []models.PageText{
			{Number: 1, Text: "Kidney Function Test Report Creatinine 2.1 mg/dL"},
			{Number: 2, Text: "eGFR 48 mL/min"},
		}}},
		gen:       &fakeGenerator{out: twoAbnormal},
		objects:   &fakeObjects{},
		documents: &fakeDocuments{},
	}
	var gen analysis.Generator = h.gen
	if genErr != nil {
		gen = nil
	}
	h.ingestor = NewIngestorWithDeps(IngestorDeps{
		Extractor: h.extractor,
		Analyzer:  analysis.NewAnalyzer(gen, genErr, analysis.Config{}),
		Objects:   h.objects,
		Documents: h.documents,
		Now:       func() time.Time { return fixedNow },
	})
	return h
}

func pdfRequest() *IngestRequest {
	return &IngestRequest{
		UserID: "user-1",
		Title:  "Kidney  Function Test",
		File: &models.SourceFile{
			FileName:    "kft.pdf",
			ContentType: "application/pdf",
			Data:        []byte("%PDF-1.4 fake"),
		},
	}
}

func TestProcessCompletedAnalysis(t *testing.T) {
	h := newHarness(nil)
	var progress ProgressLog

	doc, err := h.ingestor.Process(context.Background(), pdfRequest(), progress.Func())
	require.NoError(t, err)

	assert.Equal(t, "doc-a", doc.ID)
	assert.Equal(t, models.StatusCompleted, doc.Status())
	meta := doc.Analysis.Metadata()
	assert.Equal(t, "Kidney Function", meta.Category)
	assert.Equal(t, 2, meta.AnomalyCount)
	assert.True(t, meta.HasAnomalies)
	assert.Equal(t, []string{
		"Creatinine: 2.1 mg/dL (HIGH)",
		"Estimated Glomerular Filtration Rate: 48 mL/min (LOW)",
	}, meta.Anomalies)

	analyzed, ok := doc.Analysis.(models.Analyzed)
	require.True(t, ok)
	assert.Equal(t, "Dr. Iyer", analyzed.Findings.DoctorName)

	assert.Equal(t, "=== Page 1 ===\n\nKidney Function Test Report Creatinine 2.1 mg/dL\n\n=== Page 2 ===\n\neGFR 48 mL/min", doc.ExtractedText)
	assert.Equal(t, []string{analysis.ReportPrompt, doc.ExtractedText}, h.gen.parts)

	wantKey := "reports/user-1/1707557400000_Kidney_Function_Test.pdf"
	assert.Equal(t, wantKey, doc.File.StorageKey)
	assert.Equal(t, "https://storage.example/"+wantKey, doc.File.URL)
	assert.Equal(t, int64(len("%PDF-1.4 fake")), doc.File.Size)
	assert.Equal(t, fixedNow, doc.CreatedAt)
	assert.Contains(t, h.objects.puts, wantKey)
	assert.Len(t, h.documents.docs, 1)

	assert.Equal(t, []string{
		"Extracting text from PDF...",
		"Analyzing report...",
		"Uploading file...",
		"Saving document...",
		"Document saved.",
	}, progress.Messages)
}

func TestProcessAnalysisUnavailable(t *testing.T) {
	h := newHarness(nil)
	h.gen.err = errors.New("dial tcp: connection refused")

	doc, err := h.ingestor.Process(context.Background(), pdfRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploadedWithoutAnalysis, doc.Status())
	meta := doc.Analysis.Metadata()
	assert.Equal(t, models.CategoryUncategorized, meta.Category)
	assert.Empty(t, meta.Anomalies)
	assert.NotNil(t, meta.Anomalies)
	assert.NotEmpty(t, doc.ExtractedText)
	assert.Len(t, h.objects.puts, 1)
	assert.Len(t, h.documents.docs, 1)
}

func TestProcessAnalysisNotConfigured(t *testing.T) {
	h := newHarness(errors.New("GEMINI_API_KEY is not set"))

	doc, err := h.ingestor.Process(context.Background(), pdfRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploadedWithoutAnalysis, doc.Status())
	u, ok := doc.Analysis.(models.Unanalyzed)
	require.True(t, ok)
	assert.Contains(t, u.Reason, "not configured")
}

func TestProcessMalformedModelOutput(t *testing.T) {
	h := newHarness(nil)
	h.gen.out = "Sorry, here is a prose answer instead of JSON."

	doc, err := h.ingestor.Process(context.Background(), pdfRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, doc.Status())
	analyzed := doc.Analysis.(models.Analyzed)
	assert.Equal(t, h.gen.out, analyzed.Findings.Summary)
	assert.Empty(t, analyzed.Findings.Tests)
	assert.False(t, analyzed.Derived.HasAnomalies)
	assert.Equal(t, "General Medical Report", analyzed.Derived.Category)
}

func TestProcessUploadFails(t *testing.T) {
	h := newHarness(nil)
	h.objects.err = errors.New("bucket unavailable")
	var progress ProgressLog

	doc, err := h.ingestor.Process(context.Background(), pdfRequest(), progress.Func())
	require.Error(t, err)
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, models.ErrStorage)
	assert.Empty(t, h.documents.docs)
	assert.NotContains(t, progress.Messages, "Saving document...")
}

func TestProcessPersistenceFails(t *testing.T) {
	h := newHarness(nil)
	h.documents.err = errors.New("deadline exceeded")

	_, err := h.ingestor.Process(context.Background(), pdfRequest(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPersistence)
	// The upload already happened and is not rolled back.
	assert.Len(t, h.objects.puts, 1)
}

func TestProcessImageSkipsExtractionAndAnalysis(t *testing.T) {
	h := newHarness(nil)
	req := &IngestRequest{
		UserID: "user-2",
		Title:  "Prescription scan",
		File:   &models.SourceFile{FileName: "rx.JPG", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}},
	}

	doc, err := h.ingestor.Process(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Zero(t, h.extractor.calls)
	assert.Zero(t, h.gen.calls)
	assert.Equal(t, models.StatusUploadedWithoutAnalysis, doc.Status())
	assert.Equal(t, models.CategoryUncategorized, doc.Analysis.Metadata().Category)
	assert.Empty(t, doc.ExtractedText)
	assert.Equal(t, "reports/user-2/1707557400000_Prescription_scan.jpg", doc.File.StorageKey)
	assert.Len(t, h.documents.docs, 1)
}

func TestProcessExtractionFails(t *testing.T) {
	h := newHarness(nil)
	h.extractor.err = errors.New("xref table not found")

	_, err := h.ingestor.Process(context.Background(), pdfRequest(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrExtraction)
	assert.Zero(t, h.gen.calls)
	assert.Empty(t, h.objects.puts)
	assert.Empty(t, h.documents.docs)
}

func TestProcessTextFreePDF(t *testing.T) {
	h := newHarness(nil)
	h.extractor.out = models.ExtractedText{Pages: []models.PageText{{Number: 1}}}

	doc, err := h.ingestor.Process(context.Background(), pdfRequest(), nil)
	require.NoError(t, err)
	assert.Zero(t, h.gen.calls)
	assert.Equal(t, models.StatusUploadedWithoutAnalysis, doc.Status())
	assert.Empty(t, doc.ExtractedText)
}

func TestProcessValidation(t *testing.T) {
	big := make([]byte, models.DefaultMaxUploadBytes+1)
	cases := map[string]*IngestRequest{
		"no file":    {UserID: "u", Title: "t"},
		"empty file": {UserID: "u", Title: "t", File: &models.SourceFile{FileName: "a.pdf", ContentType: "application/pdf"}},
		"no title":   {UserID: "u", Title: "   ", File: &models.SourceFile{FileName: "a.pdf", ContentType: "application/pdf", Data: []byte("x")}},
		"no user":    {Title: "t", File: &models.SourceFile{FileName: "a.pdf", ContentType: "application/pdf", Data: []byte("x")}},
		"wrong type": {UserID: "u", Title: "t", File: &models.SourceFile{FileName: "a.docx", ContentType: "application/msword", Data: []byte("x")}},
		"too large":  {UserID: "u", Title: "t", File: &models.SourceFile{FileName: "a.pdf", ContentType: "application/pdf", Data: big}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(nil)
			_, err := h.ingestor.Process(context.Background(), req, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrValidation)
			assert.Zero(t, h.extractor.calls)
			assert.Empty(t, h.objects.puts)
			assert.Empty(t, h.documents.docs)
		})
	}
}

func TestProcessUsesClientCreatedAt(t *testing.T) {
	h := newHarness(nil)
	req := pdfRequest()
	req.ClientCreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	req.File.ContentType = "Application/PDF; charset=binary"

	doc, err := h.ingestor.Process(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, req.ClientCreatedAt, doc.CreatedAt)
	assert.Equal(t, models.ContentTypePDF, doc.File.ContentType)
	assert.Equal(t, "Application/PDF; charset=binary", req.File.ContentType)
}

func TestProcessLeavesRequestUntouchedForRetry(t *testing.T) {
	h := newHarness(nil)
	req := pdfRequest()
	req.File.ContentType = " APPLICATION/PDF "
	before := *req.File

	first, err := h.ingestor.Process(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, before, *req.File)

	second, err := h.ingestor.Process(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, first.File.ContentType, second.File.ContentType)
	assert.Equal(t, before, *req.File)
}

func TestProcessReportsStagesInOrder(t *testing.T) {
	h := newHarness(nil)
	var stages []Stage
	record := func(stage Stage, _ string) { stages = append(stages, stage) }

	_, err := h.ingestor.Process(context.Background(), pdfRequest(), record)
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageExtracting, StageAnalyzing, StageUploading, StagePersisting, StageDone}, stages)

	stages = nil
	bad := pdfRequest()
	bad.UserID = ""
	_, err = h.ingestor.Process(context.Background(), bad, record)
	require.Error(t, err)
	assert.Equal(t, []Stage{StageFailed}, stages)
}

func TestProcessConcurrentCallsAreIndependent(t *testing.T) {
	h := newHarness(nil)
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := pdfRequest()
			req.UserID = "user-" + strings.Repeat("x", i+1)
			_, errs[i] = h.ingestor.Process(context.Background(), req, nil)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, h.objects.puts, 8)
	assert.Len(t, h.documents.docs, 8)
}

func TestLookup(t *testing.T) {
	h := newHarness(nil)
	doc, err := h.ingestor.Process(context.Background(), pdfRequest(), nil)
	require.NoError(t, err)

	got, err := h.ingestor.Lookup(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.File.StorageKey, got.File.StorageKey)

	_, err = h.ingestor.Lookup(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStorageKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "reports/u1/1700000000123_Blood_Test_March.pdf",
		StorageKey("u1", "  Blood Test \t March ", "scan.PDF", models.ContentTypePDF, at))
	assert.Equal(t, "reports/u1/1700000000123_x.png",
		StorageKey("u1", "x", "noext", models.ContentTypePNG, at))
}
