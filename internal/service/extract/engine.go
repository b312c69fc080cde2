// Package extract pulls keywords, named entities, noun phrases, action
// items and speaker labels out of a transcript. The extractors run
// concurrently and degrade independently.
package extract

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"call-recap-service/internal/observability/logging"
	"call-recap-service/internal/observability/metrics"
)

// Extractor names, used in Result.Failed and metrics.
const (
	ExtractorKeywords    = "keywords"
	ExtractorEntities    = "entities"
	ExtractorNounPhrases = "noun_phrases"
	ExtractorActionItems = "action_items"
	ExtractorSpeakers    = "speakers"
)

// Config holds extraction settings.
type Config struct {
	MaxKeywords int // cap on the merged keyword list
	Workers     int // concurrent extractors
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxKeywords: 20,
		Workers:     5,
	}
}

// Result is the merged output of all extractors.
type Result struct {
	Keywords    []string `json:"keywords"` // union of ranked keywords, entities and noun phrases
	Entities    []Entity `json:"entities"`
	NounPhrases []string `json:"nounPhrases"`
	ActionItems []string `json:"actionItems"`
	Speakers    []string `json:"speakers"`
	Failed      []string `json:"failed,omitempty"`
}

// Engine runs the extractors. It is safe for concurrent use.
type Engine struct {
	cfg     Config
	metrics *metrics.Metrics

	// overridable in tests
	run map[string]func(ctx context.Context, text string) (any, error)
}

// New creates an engine.
func New(cfg Config, m *metrics.Metrics) *Engine {
	d := DefaultConfig()
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = d.MaxKeywords
	}
	if cfg.Workers <= 0 {
		cfg.Workers = d.Workers
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	e := &Engine{cfg: cfg, metrics: m}
	e.run = map[string]func(ctx context.Context, text string) (any, error){
		ExtractorKeywords: func(ctx context.Context, text string) (any, error) {
			return keywords(ctx, text, cfg.MaxKeywords)
		},
		ExtractorEntities: func(ctx context.Context, text string) (any, error) {
			return entities(ctx, text)
		},
		ExtractorNounPhrases: func(ctx context.Context, text string) (any, error) {
			return nounPhrases(ctx, text)
		},
		ExtractorActionItems: func(ctx context.Context, text string) (any, error) {
			return actionItems(ctx, text)
		},
		ExtractorSpeakers: func(ctx context.Context, text string) (any, error) {
			return speakers(ctx, text)
		},
	}
	return e
}

// Extract runs every extractor over text. A failing or panicking extractor
// contributes an empty result and is listed in Result.Failed; the others
// are unaffected.
func (e *Engine) Extract(ctx context.Context, text string) Result {
	logger := logging.FromContext(ctx)

	var (
		mu      sync.Mutex
		outputs = make(map[string]any, len(e.run))
		failed  []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for name, fn := range e.run {
		g.Go(func() error {
			out, err := safeRun(gctx, fn, text)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, name)
				e.metrics.RecordExtractorFailure(name)
				logger.Warn().Err(err).Str("extractor", name).Msg("Extractor failed, using empty result")
				return nil
			}
			outputs[name] = out
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(failed)
	res := Result{Failed: failed}
	res.Entities, _ = outputs[ExtractorEntities].([]Entity)
	res.NounPhrases, _ = outputs[ExtractorNounPhrases].([]string)
	res.ActionItems, _ = outputs[ExtractorActionItems].([]string)
	res.Speakers, _ = outputs[ExtractorSpeakers].([]string)
	ranked, _ := outputs[ExtractorKeywords].([]string)

	entityTexts := make([]string, len(res.Entities))
	for i, ent := range res.Entities {
		entityTexts[i] = ent.Text
	}
	res.Keywords = MergeKeywords(e.cfg.MaxKeywords, ranked, entityTexts, res.NounPhrases)
	return res
}

func safeRun(ctx context.Context, fn func(context.Context, string) (any, error), text string) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()
	return fn(ctx, text)
}

// MergeKeywords unions the lists, removes case- and width-insensitive
// duplicates, sorts by length descending (ties alphabetical, so the
// result does not depend on which extractor finished first) and caps
// the result at limit.
func MergeKeywords(limit int, lists ...[]string) []string {
	seen := make(map[string]bool)
	var merged []string
	for _, list := range lists {
		for _, k := range list {
			key := normalize(k)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, k)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		li, lj := len([]rune(merged[i])), len([]rune(merged[j]))
		if li != lj {
			return li > lj
		}
		return merged[i] < merged[j]
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
