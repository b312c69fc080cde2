// Package whisper provides the on-device provider backed by a local
// faster-whisper HTTP sidecar.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/models"
	"call-recap-service/internal/service/audio"
	"call-recap-service/internal/service/stt"
)

const (
	// Name is the provider identifier.
	Name = "whisper"

	defaultModel   = "base"
	defaultTimeout = 60 * time.Second

	// confidence reported when the sidecar returns text without segment scores
	defaultConfidence = 0.8
)

// Config holds configuration for the sidecar.
type Config struct {
	URL             string
	Model           string
	Timeout         time.Duration
	MaxPayloadBytes int // 0 disables truncation
}

// Provider implements stt.Provider against the sidecar's /transcribe endpoint.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New creates the provider. An empty URL yields a provider that always
// reports PROVIDER_UNAVAILABLE.
func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return Name }

// Kind implements stt.Provider.
func (p *Provider) Kind() stt.Kind { return stt.KindOnDevice }

// IsAvailable checks if the sidecar is reachable.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	if p.cfg.URL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, payload audio.Payload, language string) (models.TranscriptionResult, error) {
	if p.cfg.URL == "" {
		return models.TranscriptionResult{}, errs.Unavailable(Name, "sidecar url not configured")
	}
	if p.cfg.MaxPayloadBytes > 0 {
		var truncated bool
		var err error
		payload, truncated, err = audio.Truncate(payload, p.cfg.MaxPayloadBytes)
		if err != nil {
			return models.TranscriptionResult{}, err
		}
		if truncated {
			log.Warn().Str("sttProvider", Name).Int("maxBytes", p.cfg.MaxPayloadBytes).Msg("Payload truncated before submission")
		}
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return models.TranscriptionResult{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(payload.Bytes); err != nil {
		return models.TranscriptionResult{}, fmt.Errorf("write audio data: %w", err)
	}
	_ = writer.WriteField("model", p.cfg.Model)
	if lang := baseLanguage(language); lang != "" {
		_ = writer.WriteField("language", lang)
	}
	if err := writer.Close(); err != nil {
		return models.TranscriptionResult{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/transcribe", &buf)
	if err != nil {
		return models.TranscriptionResult{}, errs.Unavailable(Name, err.Error())
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return models.TranscriptionResult{}, errs.Timeout(Name).WithCause(err)
		}
		return models.TranscriptionResult{}, errs.Unavailable(Name, "sidecar unreachable").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return models.TranscriptionResult{}, statusError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.TranscriptionResult{}, errs.MalformedResponse(Name, "decode response").WithCause(err)
	}
	return toResult(result, language), nil
}

func statusError(code int, body string) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.PermissionDenied(Name, body)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return errs.Timeout(Name)
	case code >= 500:
		return errs.Unavailable(Name, fmt.Sprintf("status %d: %s", code, body))
	default:
		return errs.Rejected(Name, code, body)
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// baseLanguage reduces a BCP-47 tag to the ISO 639-1 code whisper expects.
func baseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// --- internal sidecar response types ---

type whisperResponse struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language"`
}

type whisperSegment struct {
	Text         string  `json:"text"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	AvgLogprob   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

func toResult(resp whisperResponse, language string) models.TranscriptionResult {
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return models.UnrecognizedResult(Name, language)
	}

	segments := make([]models.Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		conf := math.Exp(seg.AvgLogprob) * (1 - seg.NoSpeechProb)
		segments = append(segments, models.Segment{
			Text:       strings.TrimSpace(seg.Text),
			StartMs:    int64(seg.Start * 1000),
			EndMs:      int64(seg.End * 1000),
			Confidence: conf,
		})
	}

	confidence := defaultConfidence
	if len(segments) > 0 {
		confidence = stt.AverageConfidence(segments)
	}
	return stt.Normalize(models.TranscriptionResult{
		Text:       text,
		Confidence: confidence,
		Provider:   Name,
		Language:   language,
		Segments:   segments,
	}, Name, language)
}
