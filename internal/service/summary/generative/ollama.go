package generative

import (
	"context"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/presbrey/ollamafarm"
	"github.com/rs/zerolog/log"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/service/summary"
)

// OllamaName is the backend identifier.
const OllamaName = "ollama"

// OllamaConfig lists the servers in the pool.
type OllamaConfig struct {
	URLs  []string
	Model string
}

// Ollama generates summaries on the first online server of a farm.
type Ollama struct {
	farm  *ollamafarm.Farm
	model string
}

// NewOllama registers every server URL. Unreachable URLs are logged and
// skipped; the farm marks them offline.
func NewOllama(cfg OllamaConfig) *Ollama {
	farm := ollamafarm.New()
	for _, u := range cfg.URLs {
		if err := farm.RegisterURL(u, nil); err != nil {
			log.Warn().Err(err).Str("url", u).Msg("Failed to register ollama server")
		}
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.1"
	}
	return &Ollama{farm: farm, model: model}
}

// Name implements summary.Generator.
func (g *Ollama) Name() string { return OllamaName }

// Generate implements summary.Generator.
func (g *Ollama) Generate(ctx context.Context, transcript string) (summary.Draft, error) {
	server := g.farm.First(&ollamafarm.Where{Offline: false})
	if server == nil {
		return summary.Draft{}, errs.GenerativeUnavailable(OllamaName, "no ollama server online")
	}

	stream := false
	req := &api.ChatRequest{
		Model:    g.model,
		Messages: []api.Message{{Role: "user", Content: buildPrompt(transcript)}},
		Stream:   &stream,
		Format:   "json",
	}

	var b strings.Builder
	err := server.Client().Chat(ctx, req, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return summary.Draft{}, errs.GenerativeUnavailable(OllamaName, "chat failed").WithCause(err)
	}
	return parseDraft(OllamaName, b.String())
}
