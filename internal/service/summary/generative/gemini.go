package generative

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/service/summary"
)

// GeminiName is the backend identifier.
const GeminiName = "gemini"

// GeminiConfig holds Gemini settings.
type GeminiConfig struct {
	APIKey string
	Model  string // e.g. "gemini-1.5-flash"
}

// Gemini generates summaries with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates the backend.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errs.GenerativeUnavailable(GeminiName, "no API key configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, errs.GenerativeUnavailable(GeminiName, "client init failed").WithCause(err)
	}
	name := cfg.Model
	if name == "" {
		name = "gemini-1.5-flash"
	}
	model := client.GenerativeModel(name)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)
	return &Gemini{client: client, model: model}, nil
}

// Name implements summary.Generator.
func (g *Gemini) Name() string { return GeminiName }

// Generate implements summary.Generator.
func (g *Gemini) Generate(ctx context.Context, transcript string) (summary.Draft, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(buildPrompt(transcript)))
	if err != nil {
		return summary.Draft{}, errs.GenerativeUnavailable(GeminiName, "generate content failed").WithCause(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return summary.Draft{}, errs.GenerativeUnavailable(GeminiName, "no response candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return parseDraft(GeminiName, b.String())
}

// Close releases the client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
