// Package summary turns a transcript into a CallSummary. A quality gate
// decides between a generative backend and a deterministic extractive
// path; generative failures fall back to extractive with a confidence
// penalty. At most one summarization runs per process.
package summary

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/models"
	"call-recap-service/internal/observability/logging"
	"call-recap-service/internal/observability/metrics"
	"call-recap-service/internal/service/extract"
)

// Mode selects the summarization policy.
type Mode string

const (
	// ModeExtractivePrimary uses the generative path only when the quality
	// gate passes.
	ModeExtractivePrimary Mode = "extractive-primary"
	// ModeGenerativePrimary tries the generative path regardless of quality.
	ModeGenerativePrimary Mode = "generative-primary"
	// ModeExtractiveOnly never calls a generator.
	ModeExtractiveOnly Mode = "extractive-only"
)

// ParseMode returns the mode named by s, or ModeExtractivePrimary.
func ParseMode(s string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeGenerativePrimary, ModeExtractiveOnly:
		return m
	default:
		return ModeExtractivePrimary
	}
}

// Draft is what a generator returns.
type Draft struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"keyPoints"`
	ActionItems []string `json:"actionItems"`
	Confidence  float64  `json:"confidence"`
}

// Generator produces a generative summary draft.
type Generator interface {
	Name() string
	Generate(ctx context.Context, transcript string) (Draft, error)
}

// Extractor produces metadata signals for a transcript.
type Extractor interface {
	Extract(ctx context.Context, text string) extract.Result
}

// Config holds summarization settings.
type Config struct {
	Mode              Mode
	AIEnabled         bool
	QualityThreshold  float64
	MaxKeywords       int
	GenerativeTimeout time.Duration
	FallbackPenalty   float64 // multiplier applied to the extractive confidence after a generative failure
	PollInterval      time.Duration
	MaxPollInterval   time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeExtractivePrimary,
		QualityThreshold:  0.6,
		MaxKeywords:       20,
		GenerativeTimeout: 60 * time.Second,
		FallbackPenalty:   0.75,
		PollInterval:      50 * time.Millisecond,
		MaxPollInterval:   500 * time.Millisecond,
	}
}

// generated confidence when the backend reports none
const defaultGenerativeConfidence = 0.85

// Orchestrator is stateless apart from its single-flight gate.
type Orchestrator struct {
	cfg       Config
	extractor Extractor
	generator Generator
	metrics   *metrics.Metrics

	inflight *semaphore.Weighted
	// held by the generator call itself, which may outlive a timed-out
	// summarization
	generating *semaphore.Weighted
}

// New creates an orchestrator. generator may be nil, which disables the
// generative path.
func New(cfg Config, extractor Extractor, generator Generator, m *metrics.Metrics) *Orchestrator {
	d := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = d.Mode
	}
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = d.QualityThreshold
	}
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = d.MaxKeywords
	}
	if cfg.GenerativeTimeout <= 0 {
		cfg.GenerativeTimeout = d.GenerativeTimeout
	}
	if cfg.FallbackPenalty <= 0 || cfg.FallbackPenalty > 1 {
		cfg.FallbackPenalty = d.FallbackPenalty
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = cfg.PollInterval
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	if extractor == nil {
		extractor = extract.New(extract.Config{MaxKeywords: cfg.MaxKeywords}, m)
	}
	return &Orchestrator{
		cfg:       cfg,
		extractor: extractor,
		generator: generator,
		metrics:   m,
		inflight:  semaphore.NewWeighted(1),

		generating: semaphore.NewWeighted(1),
	}
}

// Summarize waits for the single-flight gate and summarizes transcript.
// It never returns an error: generative failures degrade to the extractive
// path and empty input yields the apology summary. If ctx ends while
// waiting, the extractive path runs without the gate.
func (o *Orchestrator) Summarize(ctx context.Context, transcript string) models.CallSummary {
	logger := logging.FromContext(ctx)

	if !o.acquire(ctx, logger) {
		logger.Warn().Err(ctx.Err()).Msg("Gave up waiting for summarization slot, using extractive path")
		text, points, conf := Extractive(transcript)
		method := models.MethodExtractive
		if IsEmptyTranscript(transcript) {
			method = models.MethodEmpty
		}
		return models.CallSummary{Text: text, KeyPoints: points, Confidence: conf, Method: method}
	}
	defer o.inflight.Release(1)

	return o.perform(ctx, logger, transcript)
}

// acquire polls the gate with a doubling backoff.
func (o *Orchestrator) acquire(ctx context.Context, logger zerolog.Logger) bool {
	wait := o.cfg.PollInterval
	for !o.inflight.TryAcquire(1) {
		o.metrics.RecordSingleFlightWait()
		logger.Debug().Dur("backoff", wait).Msg("Summarization in progress, waiting")
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		if wait *= 2; wait > o.cfg.MaxPollInterval {
			wait = o.cfg.MaxPollInterval
		}
	}
	return true
}

func (o *Orchestrator) perform(ctx context.Context, logger zerolog.Logger, transcript string) models.CallSummary {
	if IsEmptyTranscript(transcript) {
		logger.Info().Msg("Empty transcript, returning apology summary")
		o.metrics.RecordSummary(models.MethodEmpty, 0)
		return models.CallSummary{
			Text:       ApologyText,
			Confidence: EmptyConfidence,
			Method:     models.MethodEmpty,
		}
	}

	quality := Score(transcript)

	// Extraction runs alongside summary generation.
	var signals extract.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		signals = o.extractor.Extract(gctx, transcript)
		return nil
	})

	summary := models.CallSummary{Quality: quality}
	draft, useDraft := o.generative(ctx, logger, transcript, quality)
	if useDraft {
		summary.Text = draft.Summary
		summary.KeyPoints = draft.KeyPoints
		summary.ActionItems = draft.ActionItems
		summary.Confidence = clamp01(draft.Confidence)
		summary.Method = models.MethodGenerativePrefix + o.generator.Name()
	} else {
		text, points, conf := Extractive(transcript)
		summary.Text = text
		summary.KeyPoints = points
		summary.Confidence = conf
		summary.Method = models.MethodExtractive
		if o.generativeAttempted(quality) {
			summary.Confidence = clamp01(conf * o.cfg.FallbackPenalty)
		}
	}

	_ = g.Wait()

	summary.ActionItems = mergeUnique(summary.ActionItems, signals.ActionItems)
	summary.Keywords = signals.Keywords
	summary.Participants = participants(signals)

	o.metrics.RecordSummary(summary.Method, quality.Total)
	logger.Info().
		Str("method", summary.Method).
		Float64("quality", quality.Total).
		Float64("confidence", summary.Confidence).
		Int("keywords", len(summary.Keywords)).
		Int("actionItems", len(summary.ActionItems)).
		Msg("Summary completed")
	return summary
}

// generativeAttempted reports whether policy sends this transcript to the
// generator.
func (o *Orchestrator) generativeAttempted(q models.QualityScore) bool {
	if !o.cfg.AIEnabled || o.generator == nil || o.cfg.Mode == ModeExtractiveOnly {
		return false
	}
	return o.cfg.Mode == ModeGenerativePrimary || q.Total > o.cfg.QualityThreshold
}

type draftOutcome struct {
	draft Draft
	err   error
}

// generative runs the generator raced against the timeout. The second
// return value is false when the extractive path must be used.
func (o *Orchestrator) generative(ctx context.Context, logger zerolog.Logger, transcript string, q models.QualityScore) (Draft, bool) {
	if !o.generativeAttempted(q) {
		logger.Info().
			Bool("aiEnabled", o.cfg.AIEnabled).
			Str("mode", string(o.cfg.Mode)).
			Float64("quality", q.Total).
			Float64("threshold", o.cfg.QualityThreshold).
			Msg("Generative path skipped")
		return Draft{}, false
	}

	backend := o.generator.Name()
	logger = logger.With().Str("generator", backend).Logger()

	if !o.generating.TryAcquire(1) {
		o.metrics.RecordGenerativeFailure(backend, "busy")
		logger.Warn().
			Err(errs.GenerativeUnavailable(backend, "previous generation still running")).
			Msg("Generative summary skipped, falling back to extractive")
		return Draft{}, false
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan draftOutcome, 1)
	o.metrics.GenerativeInFlight.Inc()
	go func() {
		defer o.generating.Release(1)
		defer o.metrics.GenerativeInFlight.Dec()
		d, err := o.generator.Generate(callCtx, transcript)
		done <- draftOutcome{draft: d, err: err}
	}()

	timer := time.NewTimer(o.cfg.GenerativeTimeout)
	defer timer.Stop()

	var out draftOutcome
	select {
	case out = <-done:
	case <-timer.C:
		out.err = errs.GenerativeUnavailable(backend, "timed out").WithCause(errs.ErrTimeout)
	case <-ctx.Done():
		out.err = errs.GenerativeUnavailable(backend, "canceled").WithCause(ctx.Err())
	}

	if out.err == nil && strings.TrimSpace(out.draft.Summary) == "" {
		out.err = errs.GenerativeUnavailable(backend, "empty summary")
	}
	if out.err != nil {
		reason := "error"
		if errors.Is(out.err, errs.ErrTimeout) {
			reason = "timeout"
		}
		o.metrics.RecordGenerativeFailure(backend, reason)
		logger.Warn().Err(out.err).Str("reason", reason).Msg("Generative summary failed, falling back to extractive")
		return Draft{}, false
	}
	if out.draft.Confidence <= 0 {
		out.draft.Confidence = defaultGenerativeConfidence
	}
	return out.draft, true
}

// participants prefers speaker labels and falls back to person entities.
func participants(r extract.Result) []string {
	if len(r.Speakers) > 0 {
		return r.Speakers
	}
	var out []string
	for _, e := range r.Entities {
		if e.Class == extract.EntityPerson {
			out = append(out, e.Text)
		}
	}
	return out
}

func mergeUnique(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lists {
		for _, s := range l {
			key := strings.ToLower(strings.TrimSpace(s))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
