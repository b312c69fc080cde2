// Package mock provides a scripted provider for development runs and tests
// without cloud credentials.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"call-recap-service/internal/models"
	"call-recap-service/internal/service/audio"
	"call-recap-service/internal/service/stt"
)

// DefaultTranscript is returned when no script is configured.
const DefaultTranscript = "Hi, thanks for calling. I want to cancel my subscription. " +
	"Please send the confirmation by Friday. Thank you very much."

// Provider implements stt.Provider with scripted responses.
type Provider struct {
	name string
	kind stt.Kind

	mu     sync.Mutex
	result models.TranscriptionResult
	err    error
	delay  time.Duration

	calls atomic.Int32
}

// Option configures a Provider.
type Option func(*Provider)

// WithResult scripts the returned result.
func WithResult(text string, confidence float64) Option {
	return func(p *Provider) {
		p.result = models.TranscriptionResult{Text: text, Confidence: confidence}
	}
}

// WithError scripts a failure.
func WithError(err error) Option {
	return func(p *Provider) { p.err = err }
}

// WithDelay makes every call take d (or until ctx is done).
func WithDelay(d time.Duration) Option {
	return func(p *Provider) { p.delay = d }
}

// WithKind overrides the reported variant.
func WithKind(k stt.Kind) Option {
	return func(p *Provider) { p.kind = k }
}

// New creates a mock provider identified by name.
func New(name string, opts ...Option) *Provider {
	p := &Provider{
		name:   name,
		kind:   stt.KindMock,
		result: models.TranscriptionResult{Text: DefaultTranscript, Confidence: 0.93},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return p.name }

// Kind implements stt.Provider.
func (p *Provider) Kind() stt.Kind { return p.kind }

// Calls returns how many times Transcribe was invoked.
func (p *Provider) Calls() int { return int(p.calls.Load()) }

// Script replaces the scripted result and error.
func (p *Provider) Script(result models.TranscriptionResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result = result
	p.err = err
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, payload audio.Payload, language string) (models.TranscriptionResult, error) {
	p.calls.Add(1)

	p.mu.Lock()
	result, err, delay := p.result, p.err, p.delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.TranscriptionResult{}, ctx.Err()
		}
	}
	if err != nil {
		return models.TranscriptionResult{}, err
	}
	if err := payload.Validate(); err != nil {
		return models.TranscriptionResult{}, err
	}
	return stt.Normalize(result, p.name, language), nil
}
