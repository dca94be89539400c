package analysis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/medicalreportflow/internal/models"
)

// Generator sends an ordered list of text segments to a generative model and
// returns its text output.
type Generator interface {
	Generate(ctx context.Context, parts ...string) (string, error)
}

// Config holds the analyzer settings.
type Config struct {
	Prompt   string
	MaxChars int
	Timeout  time.Duration
}

// Analyzer builds the analysis request and calls the model.
type Analyzer struct {
	gen    Generator
	genErr error
	config Config
}

// NewAnalyzer creates an Analyzer. genErr records why no generator could be
// built; when set (or gen is nil) every Analyze call fails with a
// configuration error.
func NewAnalyzer(gen Generator, genErr error, config Config) *Analyzer {
	if config.Prompt == "" {
		config.Prompt = ReportPrompt
	}
	if config.MaxChars <= 0 {
		config.MaxChars = DefaultMaxChars
	}
	return &Analyzer{gen: gen, genErr: genErr, config: config}
}

// Analyze asks the model for structured findings about text and returns its
// raw output. promptOverride replaces the default instruction when non-empty.
func (a *Analyzer) Analyze(ctx context.Context, text, promptOverride string) (string, error) {
	if a.genErr != nil {
		return "", models.NewError(models.ErrConfiguration, "analysis service is not configured", a.genErr)
	}
	if a.gen == nil {
		return "", models.NewError(models.ErrConfiguration, "analysis service is not configured", nil)
	}

	prompt := a.config.Prompt
	if strings.TrimSpace(promptOverride) != "" {
		prompt = promptOverride
	}
	truncated, wasTruncated := Truncate(text, a.config.MaxChars)
	if wasTruncated {
		slog.Debug("Document text truncated for analysis.", "maxChars", a.config.MaxChars)
	}

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	out, err := a.gen.Generate(ctx, prompt, truncated)
	if err != nil {
		msg := "analysis service call failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "analysis service timed out"
		}
		return "", models.NewError(models.ErrAnalysisService, msg, err)
	}
	return out, nil
}

// AnalyzeFindings runs Analyze and parses the output. Only service and
// configuration failures are returned; malformed output falls back to a
// summary-only record.
func (a *Analyzer) AnalyzeFindings(ctx context.Context, text, promptOverride string) (models.FindingsRecord, error) {
	raw, err := a.Analyze(ctx, text, promptOverride)
	if err != nil {
		return models.FindingsRecord{}, err
	}
	return ParseFindings(raw), nil
}

// Truncate keeps the first max characters of text.
func Truncate(text string, max int) (string, bool) {
	if max <= 0 || len(text) <= max {
		return text, false
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i], true
		}
		n++
	}
	return text, false
}
