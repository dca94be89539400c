package llm

import (
	"context"
	"fmt"
	"io"

	"github.com/Lllllllleong/medicalreportflow/internal/analysis"
	"github.com/Lllllllleong/medicalreportflow/internal/config"
	"github.com/Lllllllleong/medicalreportflow/internal/gcp"
)

// ClosableGenerator is a Generator that owns a client connection.
type ClosableGenerator interface {
	analysis.Generator
	io.Closer
}

// NewGenerator builds the generator selected by cfg.AnalysisProvider. A
// missing credential is returned as an error; callers treat it as "analysis
// not configured" rather than a startup failure.
func NewGenerator(ctx context.Context, cfg *config.Config) (ClosableGenerator, error) {
	switch cfg.AnalysisProvider {
	case config.ProviderGemini:
		return NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.AnalysisModel, analysis.SystemPrompt)
	case config.ProviderVertex:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("PROJECT_ID must be set to use Vertex AI")
		}
		return gcp.NewVertexGenerator(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.AnalysisModel, analysis.SystemPrompt)
	default:
		return nil, fmt.Errorf("unknown analysis provider %q", cfg.AnalysisProvider)
	}
}

// NewAnalyzer wires the configured generator into an analysis.Analyzer. The
// returned close function releases the generator's client.
func NewAnalyzer(ctx context.Context, cfg *config.Config) (*analysis.Analyzer, func() error) {
	acfg := analysis.Config{
		Prompt:   cfg.AnalysisPrompt,
		MaxChars: cfg.AnalysisMaxChars,
		Timeout:  cfg.AnalysisTimeout,
	}
	gen, err := NewGenerator(ctx, cfg)
	if err != nil {
		return analysis.NewAnalyzer(nil, err, acfg), func() error { return nil }
	}
	return analysis.NewAnalyzer(gen, nil, acfg), gen.Close
}
