// Package transcription selects among speech-to-text providers, racing
// each call against a timeout and falling back in a fixed order.
package transcription

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/models"
	"call-recap-service/internal/observability/logging"
	"call-recap-service/internal/observability/metrics"
	"call-recap-service/internal/resilience"
	"call-recap-service/internal/service/audio"
	"call-recap-service/internal/service/stt"
)

// NoProvider is reported on the sentinel result when every provider failed.
const NoProvider = "none"

// Fallback reasons.
const (
	reasonError        = "error"
	reasonTimeout      = "timeout"
	reasonBreakerOpen  = "breaker_open"
	reasonUnrecognized = "unrecognized"
)

// Config holds orchestrator settings.
type Config struct {
	Timeout  time.Duration // per-provider race
	Forced   string        // provider name that bypasses fallback; empty for none
	Language string        // default BCP-47 tag
	Breaker  resilience.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:  30 * time.Second,
		Language: "en-US",
		Breaker:  resilience.DefaultConfig(),
	}
}

// Orchestrator holds no per-session state; one instance serves every session.
type Orchestrator struct {
	cfg       Config
	providers []stt.Provider
	breakers  map[string]*resilience.Breaker
	metrics   *metrics.Metrics
}

// New creates an orchestrator over providers in fallback order.
func New(cfg Config, m *metrics.Metrics, providers ...stt.Provider) *Orchestrator {
	d := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.Language == "" {
		cfg.Language = d.Language
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}

	o := &Orchestrator{
		cfg:       cfg,
		providers: providers,
		breakers:  make(map[string]*resilience.Breaker, len(providers)),
		metrics:   m,
	}
	for _, p := range providers {
		o.breakers[p.Name()] = resilience.New(p.Name(), cfg.Breaker).
			WithHook(func(name string, _, to resilience.State) {
				if to == resilience.Open {
					m.RecordBreakerTrip(name)
				}
			})
	}
	return o
}

// Providers returns the provider names in fallback order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.providers))
	for i, p := range o.providers {
		names[i] = p.Name()
	}
	return names
}

// Breaker returns the breaker guarding the named provider, or nil.
func (o *Orchestrator) Breaker(name string) *resilience.Breaker {
	return o.breakers[name]
}

// Transcribe returns the first usable result in provider order. It never
// returns an error: when every provider fails, times out or hears nothing,
// the result is the unrecognized sentinel with confidence 0.
func (o *Orchestrator) Transcribe(ctx context.Context, payload audio.Payload, language string) models.TranscriptionResult {
	if language == "" {
		language = o.cfg.Language
	}
	logger := logging.FromContext(ctx)

	for _, p := range o.candidates(logger) {
		if ctx.Err() != nil {
			logger.Info().Err(ctx.Err()).Msg("Transcription canceled")
			break
		}

		res, reason := o.attempt(ctx, logger, p, payload, language)
		if reason == "" {
			logger.Info().
				Str("sttProvider", res.Provider).
				Float64("confidence", res.Confidence).
				Int("chars", len(res.Text)).
				Msg("Transcription completed")
			return res
		}
		o.metrics.RecordFallback(p.Name(), reason)
	}

	o.metrics.RecordUnrecognized()
	logger.Warn().Msg("All transcription providers failed, returning unrecognized result")
	return models.UnrecognizedResult(NoProvider, language)
}

// candidates returns the providers to try, honoring a forced provider.
func (o *Orchestrator) candidates(logger zerolog.Logger) []stt.Provider {
	if o.cfg.Forced == "" {
		return o.providers
	}
	for _, p := range o.providers {
		if p.Name() == o.cfg.Forced {
			return []stt.Provider{p}
		}
	}
	logger.Warn().Str("forced", o.cfg.Forced).Msg("Forced provider not configured, using fallback order")
	return o.providers
}

type outcome struct {
	res models.TranscriptionResult
	err error
}

// attempt runs one provider call raced against the timeout. It returns a
// non-empty fallback reason when the result cannot be used.
func (o *Orchestrator) attempt(ctx context.Context, logger zerolog.Logger, p stt.Provider, payload audio.Payload, language string) (models.TranscriptionResult, string) {
	name := p.Name()
	logger = logger.With().Str("sttProvider", name).Logger()

	breaker := o.breakers[name]
	if err := breaker.Allow(); err != nil {
		logger.Warn().Msg("Circuit open, skipping provider")
		o.metrics.RecordTranscription(name, reasonBreakerOpen, 0)
		return models.TranscriptionResult{}, reasonBreakerOpen
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so an abandoned call can still complete its send.
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		res, err := p.Transcribe(callCtx, payload, language)
		done <- outcome{res: res, err: err}
	}()

	timer := time.NewTimer(o.cfg.Timeout)
	defer timer.Stop()

	var out outcome
	select {
	case out = <-done:
	case <-timer.C:
		out.err = errs.Timeout(name)
	case <-ctx.Done():
		// Forced termination; not the provider's fault.
		o.metrics.RecordTranscription(name, "canceled", time.Since(start).Seconds())
		return models.TranscriptionResult{}, reasonError
	}
	latency := time.Since(start).Seconds()

	if out.err != nil {
		breaker.Failure()
		reason := reasonError
		if errors.Is(out.err, errs.ErrTimeout) {
			reason = reasonTimeout
		}
		logger.Warn().
			Err(out.err).
			Str("code", string(errs.CodeOf(out.err))).
			Str("reason", reason).
			Msg("Provider failed, falling back")
		o.metrics.RecordTranscription(name, reason, latency)
		return models.TranscriptionResult{}, reason
	}
	breaker.Success()

	res := stt.Normalize(out.res, name, language)
	if res.IsUnrecognized() {
		logger.Info().Msg("Provider returned no speech, falling back")
		o.metrics.RecordTranscription(name, reasonUnrecognized, latency)
		return models.TranscriptionResult{}, reasonUnrecognized
	}
	o.metrics.RecordTranscription(name, "ok", latency)
	return res, ""
}
