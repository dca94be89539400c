package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/medicalreportflow/internal/models"
)

var (
	engineOnce sync.Once
	engineConf *model.Configuration
)

// engineConfig returns a private copy of the process-wide pdfcpu
// configuration, building it on first use.
func engineConfig() *model.Configuration {
	engineOnce.Do(func() {
		// Keep pdfcpu from creating a config dir under the user's home.
		api.DisableConfigDir()
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
		engineConf = conf
		slog.Debug("PDF engine initialized.")
	})
	conf := *engineConf
	return &conf
}

// PDFExtractor turns PDF bytes into page-delimited text.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF extractor.
func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

// Extract validates data as a PDF and returns the text of each page in
// order. A document without text yields pages with empty text, not an error.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (out models.ExtractedText, err error) {
	if len(data) == 0 {
		return models.ExtractedText{}, models.NewError(models.ErrExtraction, "empty PDF content", nil)
	}
	if err := api.Validate(bytes.NewReader(data), engineConfig()); err != nil {
		return models.ExtractedText{}, models.NewError(models.ErrExtraction, "invalid PDF document", err)
	}

	// The reader panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			out = models.ExtractedText{}
			err = models.NewError(models.ErrExtraction, "unreadable PDF content", fmt.Errorf("%v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return models.ExtractedText{}, models.NewError(models.ErrExtraction, "open pdf", err)
	}

	numPages := r.NumPage()
	pages := make([]models.PageText, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return models.ExtractedText{}, models.NewError(models.ErrExtraction, "extraction interrupted", err)
		}
		text, err := pageText(r.Page(i))
		if err != nil {
			return models.ExtractedText{}, models.NewError(models.ErrExtraction, fmt.Sprintf("read page %d", i), err)
		}
		pages = append(pages, models.PageText{Number: i, Text: text})
	}
	return models.ExtractedText{Pages: pages}, nil
}

// wordGapRatio is the horizontal gap, as a fraction of the font size, above
// which two neighbouring glyphs on a row belong to different words.
const wordGapRatio = 0.2

// pageText returns the page's text in reading order: rows top to bottom,
// glyphs left to right, with a single space wherever glyphs are separated by
// a real gap. Kerned or split show-text operands are merged back into words.
func pageText(page pdf.Page) (string, error) {
	if page.V.IsNull() {
		return "", nil
	}
	glyphs := page.Content().Text
	if !hasWidths(glyphs) {
		// Without font metrics glyph positions do not advance.
		return rowText(page)
	}

	var rows []string
	for _, row := range groupRows(glyphs) {
		if line := joinRow(row); line != "" {
			rows = append(rows, line)
		}
	}
	return strings.Join(rows, " "), nil
}

func hasWidths(glyphs []pdf.Text) bool {
	for _, g := range glyphs {
		if g.W > 0 {
			return true
		}
	}
	return false
}

// groupRows buckets visible glyphs into baselines, top row first, each row
// sorted left to right.
func groupRows(glyphs []pdf.Text) [][]pdf.Text {
	visible := make([]pdf.Text, 0, len(glyphs))
	for _, g := range glyphs {
		if strings.TrimSpace(g.S) != "" {
			visible = append(visible, g)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].Y > visible[j].Y })

	var rows [][]pdf.Text
	for _, g := range visible {
		n := len(rows)
		if n > 0 {
			top := rows[n-1][0]
			if top.Y-g.Y <= math.Max(top.FontSize, g.FontSize)/2 {
				rows[n-1] = append(rows[n-1], g)
				continue
			}
		}
		rows = append(rows, []pdf.Text{g})
	}
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
	}
	return rows
}

func joinRow(row []pdf.Text) string {
	var b strings.Builder
	for i, g := range row {
		if i > 0 {
			prev := row[i-1]
			gap := g.X - (prev.X + prev.W)
			if gap > wordGapRatio*math.Max(prev.FontSize, g.FontSize) {
				b.WriteByte(' ')
			}
		}
		b.WriteString(g.S)
	}
	return b.String()
}

// rowText joins the page's show-text operands row by row with single spaces.
func rowText(page pdf.Page) (string, error) {
	rows, err := page.GetTextByRow()
	if err != nil {
		return "", err
	}
	var tokens []string
	for _, row := range rows {
		for _, t := range row.Content {
			if s := strings.TrimSpace(t.S); s != "" {
				tokens = append(tokens, s)
			}
		}
	}
	return strings.Join(tokens, " "), nil
}
