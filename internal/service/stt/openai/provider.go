// Package openai provides a cloud provider backed by the OpenAI
// audio transcription endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/models"
	"call-recap-service/internal/service/audio"
	"call-recap-service/internal/service/stt"
)

const (
	// Name is the provider identifier.
	Name = "openai"

	defaultModel = string(oai.AudioModelWhisper1)

	// upload limit of the transcription endpoint
	defaultMaxPayloadBytes = 25 * 1024 * 1024

	defaultConfidence = 0.85
)

// Config holds OpenAI transcription configuration.
type Config struct {
	APIKey          string
	Model           string
	BaseURL         string
	MaxPayloadBytes int
	MaxRetries      int
}

// Provider implements stt.Provider.
type Provider struct {
	cfg    Config
	client *oai.Client
}

// New creates the provider. Without an API key every call reports
// PROVIDER_UNAVAILABLE.
func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = defaultMaxPayloadBytes
	}
	if cfg.APIKey == "" {
		return &Provider{cfg: cfg}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := oai.NewClient(opts...)
	return &Provider{cfg: cfg, client: &client}
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return Name }

// Kind implements stt.Provider.
func (p *Provider) Kind() stt.Kind { return stt.KindCloud }

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, payload audio.Payload, language string) (models.TranscriptionResult, error) {
	if p.client == nil {
		return models.TranscriptionResult{}, errs.Unavailable(Name, "api key not configured")
	}

	payload, _, err := audio.Truncate(payload, p.cfg.MaxPayloadBytes)
	if err != nil {
		return models.TranscriptionResult{}, err
	}

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(payload.Bytes), "audio.wav", "audio/wav"),
		Model:          oai.AudioModel(p.cfg.Model),
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	}
	if lang := baseLanguage(language); lang != "" {
		params.Language = oai.String(lang)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return models.TranscriptionResult{}, mapError(err)
	}

	var verbose verboseResponse
	if raw := resp.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &verbose); err != nil {
			return models.TranscriptionResult{}, errs.MalformedResponse(Name, "decode verbose response").WithCause(err)
		}
	}
	if verbose.Text == "" {
		verbose.Text = resp.Text
	}
	return toResult(verbose, language), nil
}

func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Timeout(Name).WithCause(err)
	}
	var apiErr *oai.Error
	if !errors.As(err, &apiErr) {
		return errs.Unavailable(Name, err.Error()).WithCause(err)
	}
	switch code := apiErr.StatusCode; {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.PermissionDenied(Name, apiErr.Message).WithCause(err)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return errs.Timeout(Name).WithCause(err)
	case code >= 500:
		return errs.Unavailable(Name, apiErr.Message).WithCause(err)
	default:
		return errs.Rejected(Name, code, apiErr.Message).WithCause(err)
	}
}

func baseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

type verboseResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Text         string  `json:"text"`
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		AvgLogprob   float64 `json:"avg_logprob"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

func toResult(v verboseResponse, language string) models.TranscriptionResult {
	if strings.TrimSpace(v.Text) == "" {
		return models.UnrecognizedResult(Name, language)
	}
	segments := make([]models.Segment, 0, len(v.Segments))
	for _, s := range v.Segments {
		segments = append(segments, models.Segment{
			Text:       s.Text,
			StartMs:    int64(s.Start * 1000),
			EndMs:      int64(s.End * 1000),
			Confidence: logprobConfidence(s.AvgLogprob, s.NoSpeechProb),
		})
	}
	confidence := defaultConfidence
	if len(segments) > 0 {
		confidence = stt.AverageConfidence(segments)
	}
	return stt.Normalize(models.TranscriptionResult{
		Text:       v.Text,
		Confidence: confidence,
		Provider:   Name,
		Language:   language,
		Segments:   segments,
	}, Name, language)
}
