// Package google provides the cloud dictation provider backed by
// Google Cloud Speech-to-Text batch recognition.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/models"
	"call-recap-service/internal/service/audio"
	"call-recap-service/internal/service/stt"
)

// Name is the provider identifier.
const Name = "google"

// Config holds Google STT configuration.
type Config struct {
	LanguageCode    string
	Model           string
	AudioEncoding   string
	CredentialsFile string
	Endpoint        string
	MaxPayloadBytes int // larger payloads are truncated before submission
	MinPayloadBytes int // smaller payloads short-circuit to the unrecognized result
	Punctuation     bool
}

// DefaultConfig returns the default Google STT configuration.
func DefaultConfig() Config {
	return Config{
		LanguageCode:    "en-US",
		AudioEncoding:   "LINEAR16",
		MaxPayloadBytes: 10 * 1024 * 1024,
		MinPayloadBytes: audio.HeaderSize + 3200, // 100ms at 16kHz mono
		Punctuation:     true,
	}
}

// recognizer is the subset of *speech.Client the provider uses.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// Provider implements stt.Provider using synchronous Recognize.
type Provider struct {
	cfg     Config
	client  recognizer
	initErr error
}

// New creates the provider. A client that cannot be created (missing or
// invalid credentials) does not fail construction; Transcribe reports
// PROVIDER_UNAVAILABLE instead.
func New(ctx context.Context, cfg Config) *Provider {
	cfg = withDefaults(cfg)

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		log.Warn().Err(err).Str("sttProvider", Name).Msg("Google STT client unavailable")
		return &Provider{cfg: cfg, initErr: err}
	}
	return &Provider{cfg: cfg, client: c}
}

// NewWithClient creates the provider around an existing recognizer.
func NewWithClient(cfg Config, client recognizer) *Provider {
	return &Provider{cfg: withDefaults(cfg), client: client}
}

func withDefaults(cfg Config) Config {
	d := DefaultConfig()
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = d.LanguageCode
	}
	if cfg.AudioEncoding == "" {
		cfg.AudioEncoding = d.AudioEncoding
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = d.MaxPayloadBytes
	}
	if cfg.MinPayloadBytes <= 0 {
		cfg.MinPayloadBytes = d.MinPayloadBytes
	}
	return cfg
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return Name }

// Kind implements stt.Provider.
func (p *Provider) Kind() stt.Kind { return stt.KindCloud }

// Close releases the underlying client.
func (p *Provider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, payload audio.Payload, language string) (models.TranscriptionResult, error) {
	if language == "" {
		language = p.cfg.LanguageCode
	}
	if p.client == nil {
		msg := "client not initialized"
		if p.initErr != nil {
			msg = p.initErr.Error()
		}
		return models.TranscriptionResult{}, errs.Unavailable(Name, msg)
	}

	if payload.Len() < p.cfg.MinPayloadBytes {
		log.Debug().
			Str("sttProvider", Name).
			Int("bytes", payload.Len()).
			Int("minBytes", p.cfg.MinPayloadBytes).
			Msg("Insufficient audio, skipping recognition")
		return models.UnrecognizedResult(Name, language), nil
	}

	payload, truncated, err := audio.Truncate(payload, p.cfg.MaxPayloadBytes)
	if err != nil {
		return models.TranscriptionResult{}, err
	}
	if truncated {
		log.Warn().
			Str("sttProvider", Name).
			Int("maxBytes", p.cfg.MaxPayloadBytes).
			Msg("Payload truncated before submission")
	}
	h, err := payload.Header()
	if err != nil {
		return models.TranscriptionResult{}, err
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(p.cfg.AudioEncoding),
			SampleRateHertz:            int32(h.SampleRate),
			AudioChannelCount:          int32(h.Channels),
			LanguageCode:               language,
			Model:                      p.cfg.Model,
			EnableAutomaticPunctuation: p.cfg.Punctuation,
			EnableWordTimeOffsets:      true,
			MaxAlternatives:            1,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: payload.Bytes},
		},
	}

	resp, err := p.client.Recognize(ctx, req)
	if err != nil {
		return models.TranscriptionResult{}, mapError(err)
	}
	return buildResult(resp, language), nil
}

func buildResult(resp *speechpb.RecognizeResponse, language string) models.TranscriptionResult {
	var (
		texts    []string
		segments []models.Segment
	)
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		text := strings.TrimSpace(alt.GetTranscript())
		if text == "" {
			continue
		}
		texts = append(texts, text)

		seg := models.Segment{Text: text, Confidence: float64(alt.GetConfidence())}
		if words := alt.GetWords(); len(words) > 0 {
			seg.StartMs = words[0].GetStartTime().AsDuration().Milliseconds()
			seg.EndMs = words[len(words)-1].GetEndTime().AsDuration().Milliseconds()
		} else if r.GetResultEndTime() != nil {
			seg.EndMs = r.GetResultEndTime().AsDuration().Milliseconds()
			if n := len(segments); n > 0 {
				seg.StartMs = segments[n-1].EndMs
			}
		}
		segments = append(segments, seg)
	}

	if len(texts) == 0 {
		return models.UnrecognizedResult(Name, language)
	}
	return models.TranscriptionResult{
		Text:       strings.Join(texts, " "),
		Confidence: stt.AverageConfidence(segments),
		Provider:   Name,
		Language:   language,
		Segments:   segments,
	}
}

// mapError converts gRPC status codes into the provider error taxonomy.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Timeout(Name).WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return errs.Unavailable(Name, "request canceled").WithCause(err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return errs.Unavailable(Name, err.Error()).WithCause(err)
	}
	switch st.Code() {
	case codes.PermissionDenied, codes.Unauthenticated:
		return errs.PermissionDenied(Name, st.Message()).WithCause(err)
	case codes.ResourceExhausted:
		return errs.Rejected(Name, 429, st.Message()).WithCause(err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return errs.Rejected(Name, 400, st.Message()).WithCause(err)
	case codes.DeadlineExceeded:
		return errs.Timeout(Name).WithCause(err)
	case codes.Internal, codes.DataLoss, codes.Unknown:
		return errs.MalformedResponse(Name, st.Message()).WithCause(err)
	default:
		return errs.Unavailable(Name, fmt.Sprintf("%s: %s", st.Code(), st.Message())).WithCause(err)
	}
}

// parseAudioEncoding converts a string encoding name to the protobuf enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
