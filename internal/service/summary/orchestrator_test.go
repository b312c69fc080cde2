package summary

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"call-recap-service/internal/models"
	"call-recap-service/internal/observability/metrics"
)

const richTranscript = "Alice: We reviewed the quarterly budget with the finance team.\n" +
	"Bob: The renewal contract expires next month.\n" +
	"Alice: Please send the revised proposal by Friday.\n" +
	"Bob: I will confirm pricing with the vendor.\n" +
	"Alice: We scheduled another call for Tuesday."

type fakeGenerator struct {
	draft Draft
	err   error
	delay time.Duration
	block chan struct{} // if set, Generate ignores ctx and waits on it

	calls    atomic.Int32
	inflight atomic.Int32
	maxSeen  atomic.Int32
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(ctx context.Context, _ string) (Draft, error) {
	g.calls.Add(1)
	n := g.inflight.Add(1)
	defer g.inflight.Add(-1)
	for {
		seen := g.maxSeen.Load()
		if n <= seen || g.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if g.block != nil {
		<-g.block
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	return g.draft, g.err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 2 * time.Millisecond
	cfg.MaxPollInterval = 10 * time.Millisecond
	return cfg
}

func TestSummarize_JapaneseExtractive(t *testing.T) {
	o := New(testConfig(), nil, nil, metrics.New(prometheus.NewRegistry()))

	in := "こんにちは。決定事項を確認します。ありがとうございました。"
	s := o.Summarize(context.Background(), in)

	if s.Text != in {
		t.Errorf("summary = %q, want %q", s.Text, in)
	}
	if s.Confidence != 0.6 {
		t.Errorf("confidence = %v, want 0.6", s.Confidence)
	}
	if s.Method != models.MethodExtractive {
		t.Errorf("method = %q", s.Method)
	}
}

func TestSummarize_Empty(t *testing.T) {
	gen := &fakeGenerator{draft: Draft{Summary: "should not be used"}}
	cfg := testConfig()
	cfg.AIEnabled = true
	cfg.Mode = ModeGenerativePrimary
	o := New(cfg, nil, gen, metrics.New(prometheus.NewRegistry()))

	for _, in := range []string{"", "(unrecognized)"} {
		s := o.Summarize(context.Background(), in)
		if s.Text != ApologyText || s.Confidence != 0.1 || s.Method != models.MethodEmpty {
			t.Errorf("Summarize(%q) = %+v", in, s)
		}
	}
	if gen.calls.Load() != 0 {
		t.Errorf("generator called %d times for empty input", gen.calls.Load())
	}
}

func TestSummarize_GenerativeSuccess(t *testing.T) {
	gen := &fakeGenerator{draft: Draft{
		Summary:     "Budget and renewal were discussed.",
		KeyPoints:   []string{"renewal next month"},
		ActionItems: []string{"send the revised proposal by Friday"},
		Confidence:  0.9,
	}}
	cfg := testConfig()
	cfg.AIEnabled = true
	cfg.Mode = ModeGenerativePrimary
	o := New(cfg, nil, gen, metrics.New(prometheus.NewRegistry()))

	s := o.Summarize(context.Background(), richTranscript)

	if s.Method != "generative:fake" {
		t.Fatalf("method = %q", s.Method)
	}
	if s.Text != "Budget and renewal were discussed." || s.Confidence != 0.9 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if len(s.Participants) != 2 || s.Participants[0] != "Alice" || s.Participants[1] != "Bob" {
		t.Errorf("participants = %q", s.Participants)
	}
	// Generator and extractor both found the proposal action; it appears once.
	count := 0
	for _, a := range s.ActionItems {
		if a == "send the revised proposal by Friday" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("action items = %q", s.ActionItems)
	}
	if len(s.Keywords) == 0 {
		t.Error("expected keywords from extraction")
	}
}

func TestSummarize_GenerativeFailureFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		gen    *fakeGenerator
		reason string
	}{
		{"error", &fakeGenerator{err: errors.New("model overloaded")}, "error"},
		{"empty draft", &fakeGenerator{draft: Draft{Summary: "  "}}, "error"},
		{"timeout", &fakeGenerator{block: make(chan struct{})}, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.gen.block != nil {
				defer close(tt.gen.block)
			}
			m := metrics.New(prometheus.NewRegistry())
			cfg := testConfig()
			cfg.AIEnabled = true
			cfg.Mode = ModeGenerativePrimary
			cfg.GenerativeTimeout = 20 * time.Millisecond
			o := New(cfg, nil, tt.gen, m)

			s := o.Summarize(context.Background(), richTranscript)

			if s.Method != models.MethodExtractive {
				t.Errorf("method = %q", s.Method)
			}
			if math.Abs(s.Confidence-0.6*0.75) > 1e-9 {
				t.Errorf("confidence = %v, want penalized 0.45", s.Confidence)
			}
			if s.Text == "" {
				t.Error("expected extractive text")
			}
			if got := testutil.ToFloat64(m.GenerativeFailures.WithLabelValues("fake", tt.reason)); got != 1 {
				t.Errorf("generative failures[%s] = %v, want 1", tt.reason, got)
			}
		})
	}
}

func TestSummarize_Policy(t *testing.T) {
	tests := []struct {
		name      string
		mode      Mode
		enabled   bool
		threshold float64
		text      string
		wantCalls int32
	}{
		{"disabled", ModeGenerativePrimary, false, 0.6, richTranscript, 0},
		{"extractive only", ModeExtractiveOnly, true, 0.6, richTranscript, 0},
		{"gate rejects filler", ModeExtractivePrimary, true, 0.6, "um uh um like um yeah", 0},
		{"gate passes", ModeExtractivePrimary, true, 0.1, richTranscript, 1},
		{"forced generative", ModeGenerativePrimary, true, 0.99, "um uh okay.", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{draft: Draft{Summary: "generated"}}
			cfg := testConfig()
			cfg.Mode = tt.mode
			cfg.AIEnabled = tt.enabled
			cfg.QualityThreshold = tt.threshold
			o := New(cfg, nil, gen, metrics.New(prometheus.NewRegistry()))

			s := o.Summarize(context.Background(), tt.text)

			if got := gen.calls.Load(); got != tt.wantCalls {
				t.Errorf("generator calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantCalls == 0 && s.Confidence != ExtractiveConfidence {
				t.Errorf("skipped path should not be penalized, confidence = %v", s.Confidence)
			}
		})
	}
}

func TestSummarize_SingleFlight(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	gen := &fakeGenerator{draft: Draft{Summary: "generated"}, delay: 15 * time.Millisecond}
	cfg := testConfig()
	cfg.AIEnabled = true
	cfg.Mode = ModeGenerativePrimary
	o := New(cfg, nil, gen, m)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Summarize(context.Background(), richTranscript)
		}()
	}
	wg.Wait()

	if got := gen.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent generations = %d, want 1", got)
	}
	if got := gen.calls.Load(); got != 5 {
		t.Errorf("calls = %d, want 5", got)
	}
	if testutil.ToFloat64(m.SingleFlightWaits) == 0 {
		t.Error("expected callers to wait on the gate")
	}
}

func TestSummarize_TimedOutGenerationBlocksNext(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	gen := &fakeGenerator{draft: Draft{Summary: "generated"}, block: make(chan struct{})}
	cfg := testConfig()
	cfg.AIEnabled = true
	cfg.Mode = ModeGenerativePrimary
	cfg.GenerativeTimeout = 20 * time.Millisecond
	o := New(cfg, nil, gen, m)

	// The first call times out but its generator keeps running.
	if s := o.Summarize(context.Background(), richTranscript); s.Method != models.MethodExtractive {
		t.Fatalf("first method = %q", s.Method)
	}
	s := o.Summarize(context.Background(), richTranscript)
	if s.Method != models.MethodExtractive {
		t.Errorf("second method = %q", s.Method)
	}
	if got := gen.calls.Load(); got != 1 {
		t.Errorf("generator calls = %d, want 1", got)
	}
	if got := gen.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent generations = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.GenerativeFailures.WithLabelValues("fake", "busy")); got != 1 {
		t.Errorf("busy failures = %v, want 1", got)
	}

	close(gen.block)
	deadline := time.Now().Add(time.Second)
	for !o.generating.TryAcquire(1) {
		if time.Now().After(deadline) {
			t.Fatal("generation slot never released")
		}
		time.Sleep(time.Millisecond)
	}
	o.generating.Release(1)

	if s := o.Summarize(context.Background(), richTranscript); s.Method != "generative:fake" {
		t.Errorf("method after release = %q", s.Method)
	}
}

func TestSummarize_CanceledWhileWaiting(t *testing.T) {
	gen := &fakeGenerator{draft: Draft{Summary: "generated"}}
	cfg := testConfig()
	cfg.AIEnabled = true
	cfg.Mode = ModeGenerativePrimary
	o := New(cfg, nil, gen, metrics.New(prometheus.NewRegistry()))

	if !o.inflight.TryAcquire(1) {
		t.Fatal("gate should be free")
	}
	defer o.inflight.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s := o.Summarize(ctx, "First point. Second point.")

	if s.Method != models.MethodExtractive || s.Text != "First point. Second point." {
		t.Errorf("unexpected summary: %+v", s)
	}
	if gen.calls.Load() != 0 {
		t.Error("generator must not run without the gate")
	}
}

func TestSummarize_NonEmptyInputAlwaysSummarized(t *testing.T) {
	o := New(testConfig(), nil, nil, metrics.New(prometheus.NewRegistry()))

	inputs := []string{
		"ok",
		"...",
		"Hello there",
		"田中：了解です",
		"a\nb\nc\nd",
		richTranscript,
	}
	for _, in := range inputs {
		s := o.Summarize(context.Background(), in)
		if s.Text == "" {
			t.Errorf("empty summary for %q", in)
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			t.Errorf("confidence %v out of range for %q", s.Confidence, in)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"":                   ModeExtractivePrimary,
		"generative-primary": ModeGenerativePrimary,
		"EXTRACTIVE-ONLY":    ModeExtractiveOnly,
		"bogus":              ModeExtractivePrimary,
	}
	for in, want := range tests {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %q, want %q", in, got, want)
		}
	}
}
