package generative

import (
	"context"
	"errors"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/service/summary"
)

// OpenAIName is the backend identifier.
const OpenAIName = "openai"

// OpenAIConfig holds chat completion settings.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
}

// OpenAI generates summaries with chat completions.
type OpenAI struct {
	client oai.Client
	model  string
}

// NewOpenAI creates the backend.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = string(oai.ChatModelGPT4oMini)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{client: oai.NewClient(opts...), model: cfg.Model}
}

// Name implements summary.Generator.
func (g *OpenAI) Name() string { return OpenAIName }

// Generate implements summary.Generator.
func (g *OpenAI) Generate(ctx context.Context, transcript string) (summary.Draft, error) {
	resp, err := g.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(buildPrompt(transcript)),
		},
		Temperature: oai.Float(0.2),
	})
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return summary.Draft{}, errs.GenerativeUnavailable(OpenAIName, apiErr.Message).WithCause(err)
		}
		return summary.Draft{}, errs.GenerativeUnavailable(OpenAIName, "chat completion failed").WithCause(err)
	}
	if len(resp.Choices) == 0 {
		return summary.Draft{}, errs.GenerativeUnavailable(OpenAIName, "no choices returned")
	}
	return parseDraft(OpenAIName, resp.Choices[0].Message.Content)
}
