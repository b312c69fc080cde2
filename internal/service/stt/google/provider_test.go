package google

import (
	"context"
	"errors"
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/models"
	"call-recap-service/internal/service/audio"
)

// fakeRecognizer implements recognizer for testing
type fakeRecognizer struct {
	resp  *speechpb.RecognizeResponse
	err   error
	calls int
	last  *speechpb.RecognizeRequest
}

func (f *fakeRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	f.calls++
	f.last = req
	return f.resp, f.err
}

func (f *fakeRecognizer) Close() error { return nil }

func oneSecond() audio.Payload {
	return audio.ToPayload(make([]float32, 16000), 16000, 1)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
	if cfg.MinPayloadBytes <= audio.HeaderSize {
		t.Errorf("min payload must exceed the header, got %d", cfg.MinPayloadBytes)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"linear16", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"", speechpb.RecognitionConfig_LINEAR16},         // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTranscribe_BuildsResult(t *testing.T) {
	fake := &fakeRecognizer{resp: &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{
				Transcript: "hello there",
				Confidence: 0.9,
				Words: []*speechpb.WordInfo{
					{Word: "hello", StartTime: durationpb.New(100 * time.Millisecond), EndTime: durationpb.New(400 * time.Millisecond)},
					{Word: "there", StartTime: durationpb.New(400 * time.Millisecond), EndTime: durationpb.New(800 * time.Millisecond)},
				},
			}}},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{
				Transcript: " how are you",
				Confidence: 0.7,
			}}, ResultEndTime: durationpb.New(2 * time.Second)},
		},
	}}
	p := NewWithClient(Config{}, fake)

	res, err := p.Transcribe(context.Background(), oneSecond(), "en-GB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "hello there how are you" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Provider != Name || res.Language != "en-GB" {
		t.Errorf("unexpected provider/language: %+v", res)
	}
	if res.Confidence < 0.79 || res.Confidence > 0.81 {
		t.Errorf("confidence = %v, want ~0.8", res.Confidence)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}
	if res.Segments[0].StartMs != 100 || res.Segments[0].EndMs != 800 {
		t.Errorf("segment 0 offsets = %d-%d", res.Segments[0].StartMs, res.Segments[0].EndMs)
	}
	if res.Segments[1].StartMs != 800 || res.Segments[1].EndMs != 2000 {
		t.Errorf("segment 1 offsets = %d-%d", res.Segments[1].StartMs, res.Segments[1].EndMs)
	}

	cfg := fake.last.GetConfig()
	if cfg.GetSampleRateHertz() != 16000 || cfg.GetAudioChannelCount() != 1 || cfg.GetLanguageCode() != "en-GB" {
		t.Errorf("unexpected request config: %v", cfg)
	}
}

func TestTranscribe_ShortPayloadShortCircuits(t *testing.T) {
	fake := &fakeRecognizer{}
	p := NewWithClient(Config{MinPayloadBytes: 1000}, fake)

	res, err := p.Transcribe(context.Background(), audio.ToPayload(make([]float32, 10), 16000, 1), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != models.UnrecognizedText || res.Confidence != 0 {
		t.Errorf("expected sentinel result, got %+v", res)
	}
	if fake.calls != 0 {
		t.Errorf("recognizer should not be called, got %d calls", fake.calls)
	}
}

func TestTranscribe_TruncatesOversizedPayload(t *testing.T) {
	fake := &fakeRecognizer{resp: &speechpb.RecognizeResponse{}}
	p := NewWithClient(Config{MaxPayloadBytes: audio.HeaderSize + 1000, MinPayloadBytes: 10}, fake)

	res, err := p.Transcribe(context.Background(), oneSecond(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := audio.Payload{Bytes: fake.last.GetAudio().GetContent()}
	if sent.Len() != audio.HeaderSize+1000 {
		t.Errorf("expected truncated payload, got %d bytes", sent.Len())
	}
	if err := sent.Validate(); err != nil {
		t.Errorf("submitted payload invalid: %v", err)
	}
	if !res.IsUnrecognized() {
		t.Errorf("empty response should be unrecognized, got %+v", res)
	}
}

func TestTranscribe_MapsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"permission", status.Error(codes.PermissionDenied, "no"), errs.ErrPermissionDenied},
		{"unauthenticated", status.Error(codes.Unauthenticated, "no"), errs.ErrPermissionDenied},
		{"rate limited", status.Error(codes.ResourceExhausted, "slow down"), errs.ErrRejected},
		{"bad request", status.Error(codes.InvalidArgument, "bad"), errs.ErrRejected},
		{"deadline", status.Error(codes.DeadlineExceeded, "late"), errs.ErrTimeout},
		{"ctx deadline", context.DeadlineExceeded, errs.ErrTimeout},
		{"unavailable", status.Error(codes.Unavailable, "down"), errs.ErrUnavailable},
		{"internal", status.Error(codes.Internal, "garbled"), errs.ErrMalformedResponse},
		{"plain", errors.New("socket closed"), errs.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewWithClient(Config{}, &fakeRecognizer{err: tt.err})
			_, err := p.Transcribe(context.Background(), oneSecond(), "")
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTranscribe_RateLimitCarriesStatus(t *testing.T) {
	p := NewWithClient(Config{}, &fakeRecognizer{err: status.Error(codes.ResourceExhausted, "quota")})
	_, err := p.Transcribe(context.Background(), oneSecond(), "")

	var e *errs.Error
	if !errors.As(err, &e) || e.Status != 429 {
		t.Errorf("expected status 429, got %v", err)
	}
}

func TestTranscribe_NoClientIsUnavailable(t *testing.T) {
	p := &Provider{cfg: DefaultConfig(), initErr: errors.New("could not find default credentials")}

	_, err := p.Transcribe(context.Background(), oneSecond(), "")
	if !errors.Is(err, errs.ErrUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
}
