package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// DefaultModel is the Gemini model used for report analysis.
const DefaultModel = "gemini-1.5-flash"

// VertexGenerator calls a Gemini model through Vertex AI.
type VertexGenerator struct {
	model      *genai.GenerativeModel
	baseClient *genai.Client
}

// NewVertexGenerator creates a generator configured for JSON output.
func NewVertexGenerator(ctx context.Context, projectID, region, modelName, systemPrompt string) (*VertexGenerator, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexGenerator: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := baseClient.GenerativeModel(modelName)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockOnlyHigh},
	}

	return &VertexGenerator{model: model, baseClient: baseClient}, nil
}

// Generate sends parts as a single request and concatenates the text parts of
// the first candidate.
func (g *VertexGenerator) Generate(ctx context.Context, parts ...string) (string, error) {
	req := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		req = append(req, genai.Text(p))
	}
	resp, err := g.model.GenerateContent(ctx, req...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String(), nil
}

func (g *VertexGenerator) Close() error {
	if g.baseClient != nil {
		return g.baseClient.Close()
	}
	return nil
}
