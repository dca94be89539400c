package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiGenerator calls the Gemini API with an API key.
type GeminiGenerator struct {
	client    *genai.Client
	modelName string
	system    string
}

// NewGeminiGenerator creates a generator for the given key and model.
func NewGeminiGenerator(ctx context.Context, apiKey, modelName, systemPrompt string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiGenerator{client: cl, modelName: modelName, system: systemPrompt}, nil
}

func (g *GeminiGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Generate sends parts as one request and returns the first candidate's text.
func (g *GeminiGenerator) Generate(ctx context.Context, parts ...string) (string, error) {
	m := g.client.GenerativeModel(g.modelName)
	if g.system != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(g.system)},
		}
	}
	m.SetTemperature(0)

	req := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		req = append(req, genai.Text(p))
	}
	resp, err := m.GenerateContent(ctx, req...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}
