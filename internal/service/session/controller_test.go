package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/models"
	"call-recap-service/internal/observability/metrics"
	"call-recap-service/internal/service/audio"
)

type fakeCapturer struct {
	mu       sync.Mutex
	startErr error
	onFrame  func(models.AudioFrame)
	starts   atomic.Int32
	stops    atomic.Int32
}

func (f *fakeCapturer) StartCapture(_ context.Context, onFrame func(models.AudioFrame)) error {
	f.starts.Add(1)
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.onFrame = onFrame
	f.mu.Unlock()
	return nil
}

func (f *fakeCapturer) StopCapture() { f.stops.Add(1) }

func (f *fakeCapturer) push(n int) {
	f.mu.Lock()
	fn := f.onFrame
	f.mu.Unlock()
	for i := 0; i < n; i++ {
		fn(models.AudioFrame{Samples: make([]float32, 160), SampleRate: 16000, Channels: 1, CapturedAt: time.Now()})
	}
}

type fakeTranscriber struct {
	result  models.TranscriptionResult
	block   bool
	payload audio.Payload
	calls   atomic.Int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, p audio.Payload, language string) models.TranscriptionResult {
	f.calls.Add(1)
	f.payload = p
	if f.block {
		<-ctx.Done()
		return models.UnrecognizedResult("none", language)
	}
	return f.result
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(_ context.Context, transcript string) models.CallSummary {
	return models.CallSummary{Text: "summary of " + transcript, Confidence: 0.6, Method: models.MethodExtractive}
}

type fakeStore struct {
	mu   sync.Mutex
	err  error
	recs []models.StructuredRecord
}

func (f *fakeStore) Save(_ context.Context, rec models.StructuredRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.recs = append(f.recs, rec)
	return "record:" + rec.Session.ID, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}

// hangingStore never returns until released.
type hangingStore struct {
	release chan struct{}
	calls   atomic.Int32
}

func (s *hangingStore) Save(context.Context, models.StructuredRecord) (string, error) {
	s.calls.Add(1)
	<-s.release
	return "", nil
}

type rejectAll struct{}

func (rejectAll) ValidateRecord(models.StructuredRecord) error { return errors.New("invalid record") }

type harness struct {
	ctrl   *Controller
	cap    *fakeCapturer
	stt    *fakeTranscriber
	store  *fakeStore
	metric *metrics.Metrics
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		cap:    &fakeCapturer{},
		stt:    &fakeTranscriber{result: models.TranscriptionResult{Text: "hello there.", Confidence: 0.9, Provider: "mock"}},
		store:  &fakeStore{},
		metric: metrics.New(prometheus.NewRegistry()),
	}
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	opts = append([]Option{WithMetrics(h.metric)}, opts...)
	h.ctrl = NewController(cfg, h.cap, h.stt, fakeSummarizer{}, h.store, opts...)
	return h
}

func (h *harness) startCapture(t *testing.T) models.CallSession {
	t.Helper()
	sess, err := h.ctrl.Begin(context.Background(), "call-1", models.DirectionOutbound)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if h.ctrl.State() != StateCapturing {
		t.Fatalf("expected capturing, got %v", h.ctrl.State())
	}
	return sess
}

func drain(ch <-chan Notification) []Notification {
	var out []Notification
	for {
		select {
		case n := <-ch:
			out = append(out, n)
		default:
			return out
		}
	}
}

func kinds(ns []Notification) map[NotificationKind]int {
	m := make(map[NotificationKind]int)
	for _, n := range ns {
		m[n.Kind]++
	}
	return m
}

func TestController_HappyPath(t *testing.T) {
	h := newHarness(t)
	h.startCapture(t)
	h.cap.push(10)

	out, err := h.ctrl.End(context.Background())
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("expected idle, got %v", h.ctrl.State())
	}
	if out.Reference != "record:call-1" {
		t.Errorf("reference = %q", out.Reference)
	}
	if out.Record.Transcript != "hello there." || out.Record.Summary.Text != "summary of hello there." {
		t.Errorf("unexpected record: %+v", out.Record)
	}
	if out.Record.Session.EndedAt == nil || out.Record.Session.Direction != models.DirectionOutbound {
		t.Errorf("unexpected session: %+v", out.Record.Session)
	}

	h2, err := h.stt.payload.Header()
	if err != nil {
		t.Fatalf("payload header: %v", err)
	}
	if h2.DataLength != 10*320 {
		t.Errorf("payload data length = %d, want 3200", h2.DataLength)
	}
	if h.cap.stops.Load() != 1 {
		t.Errorf("capture stops = %d, want 1", h.cap.stops.Load())
	}

	got := kinds(drain(h.ctrl.Events()))
	if got[NotifyStateChanged] != 4 || got[NotifyRecognizedText] != 1 || got[NotifySummaryReady] != 1 || got[NotifyStored] != 1 {
		t.Errorf("unexpected notifications: %v", got)
	}
	if got[NotifyLevel] != 1 {
		t.Errorf("expected one rate-limited level notification, got %d", got[NotifyLevel])
	}
	if v := testutil.ToFloat64(h.metric.AudioBytesBuffered); v != 3200 {
		t.Errorf("bytes buffered metric = %v", v)
	}
}

func TestController_NoFramesUsesSilence(t *testing.T) {
	h := newHarness(t)
	h.startCapture(t)

	if _, err := h.ctrl.End(context.Background()); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := h.stt.payload.Validate(); err != nil {
		t.Fatalf("silence payload invalid: %v", err)
	}
	hdr, _ := h.stt.payload.Header()
	if hdr.Duration() != 1 {
		t.Errorf("expected 1s of silence, got %v", hdr.Duration())
	}
}

func TestController_EndWhileConnecting(t *testing.T) {
	h := newHarness(t)
	if _, err := h.ctrl.Begin(context.Background(), "", ""); err != nil {
		t.Fatalf("begin: %v", err)
	}

	out, err := h.ctrl.End(context.Background())
	if err != nil || out != nil {
		t.Fatalf("expected silent drop, got %v, %v", out, err)
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("expected idle, got %v", h.ctrl.State())
	}
	if h.stt.calls.Load() != 0 || h.store.count() != 0 {
		t.Error("no record should be produced")
	}
}

func TestController_GeneratedSessionID(t *testing.T) {
	h := newHarness(t)
	sess, err := h.ctrl.Begin(context.Background(), "", "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if len(sess.ID) != 36 || sess.Direction != models.DirectionInbound {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestController_BeginTwice(t *testing.T) {
	h := newHarness(t)
	h.startCapture(t)

	if _, err := h.ctrl.Begin(context.Background(), "call-2", ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if st := h.ctrl.Status(); st.Session == nil || st.Session.ID != "call-1" {
		t.Errorf("active session replaced: %+v", st.Session)
	}
}

func TestController_CaptureStartFailure(t *testing.T) {
	h := newHarness(t)
	h.cap.startErr = errors.New("microphone busy")

	if _, err := h.ctrl.Begin(context.Background(), "call-1", ""); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := h.ctrl.Connect(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("expected idle, got %v", h.ctrl.State())
	}
	if kinds(drain(h.ctrl.Events()))[NotifyError] != 1 {
		t.Error("expected an error notification")
	}
}

func TestController_StorageFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("disk full")
	h.startCapture(t)
	h.cap.push(2)

	out, err := h.ctrl.End(context.Background())
	if !errors.Is(err, errs.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if out == nil || out.Record.Transcript != "hello there." {
		t.Errorf("expected the record alongside the error, got %+v", out)
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("expected idle, got %v", h.ctrl.State())
	}
	if v := testutil.ToFloat64(h.metric.SessionErrors.WithLabelValues("storage")); v != 1 {
		t.Errorf("storage errors = %v", v)
	}
}

func TestController_StorageHandoffTimesOut(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	store := &hangingStore{release: make(chan struct{})}
	defer close(store.release)
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	cfg.HandoffTimeout = 30 * time.Millisecond
	capturer := &fakeCapturer{}
	stt := &fakeTranscriber{result: models.TranscriptionResult{Text: "hello there.", Confidence: 0.9, Provider: "mock"}}
	ctrl := NewController(cfg, capturer, stt, fakeSummarizer{}, store, WithMetrics(m))

	if _, err := ctrl.Begin(context.Background(), "call-1", models.DirectionInbound); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	type ended struct {
		out *Outcome
		err error
	}
	done := make(chan ended, 1)
	go func() {
		out, err := ctrl.End(context.Background())
		done <- ended{out, err}
	}()

	select {
	case res := <-done:
		if !errors.Is(res.err, errs.ErrStorage) || !errors.Is(res.err, errs.ErrTimeout) {
			t.Errorf("expected storage timeout, got %v", res.err)
		}
		if res.out == nil || res.out.Record.Session.ID != "call-1" {
			t.Errorf("expected the record alongside the error, got %+v", res.out)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("End still blocked; state=%v", ctrl.State())
	}
	if store.calls.Load() != 1 {
		t.Errorf("save calls = %d, want 1", store.calls.Load())
	}
	if ctrl.State() != StateIdle {
		t.Errorf("expected idle, got %v", ctrl.State())
	}
	if v := testutil.ToFloat64(m.SessionErrors.WithLabelValues("storage")); v != 1 {
		t.Errorf("storage errors = %v", v)
	}
}

func TestController_ValidationFailure(t *testing.T) {
	h := newHarness(t, WithValidator(rejectAll{}))
	h.startCapture(t)

	if _, err := h.ctrl.End(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
	if h.store.count() != 0 {
		t.Error("invalid record must not be stored")
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("expected idle, got %v", h.ctrl.State())
	}
}

func TestController_TerminateDuringSettle(t *testing.T) {
	h := newHarness(t)
	h.ctrl.cfg.SettleDelay = time.Hour

	if _, err := h.ctrl.Begin(context.Background(), "call-1", ""); err != nil {
		t.Fatalf("begin: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Connect(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	h.ctrl.Terminate(context.Background())

	select {
	case err := <-done:
		if !errors.Is(err, ErrTerminated) {
			t.Errorf("expected ErrTerminated, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("connect did not return after terminate")
	}
	if h.cap.starts.Load() != 0 {
		t.Error("capture must not start after terminate")
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("expected idle, got %v", h.ctrl.State())
	}
}

func TestController_TerminateDuringFinalize(t *testing.T) {
	h := newHarness(t)
	h.stt.block = true
	h.startCapture(t)

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.End(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for h.stt.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.ctrl.State() != StateFinalizing {
		t.Fatalf("expected finalizing, got %v", h.ctrl.State())
	}
	h.ctrl.Terminate(context.Background())

	select {
	case err := <-done:
		if !errors.Is(err, ErrTerminated) {
			t.Errorf("expected ErrTerminated, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("finalize did not return after terminate")
	}
	if h.store.count() != 0 {
		t.Error("terminated session must not be stored")
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("expected idle, got %v", h.ctrl.State())
	}
}

func TestController_InterruptPausesBuffering(t *testing.T) {
	h := newHarness(t)
	h.startCapture(t)

	h.cap.push(2)
	h.ctrl.Interrupt()
	h.cap.push(3)
	if st := h.ctrl.Status(); st.BufferedBytes != 640 || !st.Paused || st.State != StateCapturing {
		t.Errorf("unexpected status while interrupted: %+v", st)
	}

	h.ctrl.InterruptionEnded(false)
	h.cap.push(1)
	if st := h.ctrl.Status(); st.BufferedBytes != 640 {
		t.Errorf("buffer grew without resume hint: %d", st.BufferedBytes)
	}

	h.ctrl.InterruptionEnded(true)
	h.cap.push(1)
	if st := h.ctrl.Status(); st.BufferedBytes != 960 || st.Paused {
		t.Errorf("unexpected status after resume: %+v", st)
	}
	if v := testutil.ToFloat64(h.metric.AudioFramesDropped.WithLabelValues("paused")); v != 4 {
		t.Errorf("paused drops = %v, want 4", v)
	}
}

func TestController_Run(t *testing.T) {
	h := newHarness(t)
	events := make(chan CallEvent, 4)
	events <- CallEvent{Kind: CallBegan, SessionID: "call-9", Direction: models.DirectionInbound}
	events <- CallEvent{Kind: CallConnected}
	events <- CallEvent{Kind: CallEnded, SessionID: "other"}
	events <- CallEvent{Kind: CallEnded, SessionID: "call-9"}
	close(events)

	if err := h.ctrl.Run(context.Background(), events); err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.store.count() != 1 {
		t.Errorf("expected one stored record, got %d", h.store.count())
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("expected idle, got %v", h.ctrl.State())
	}
}

func TestController_RunCanceledDuringFinalize(t *testing.T) {
	h := newHarness(t)
	h.stt.block = true
	events := make(chan CallEvent, 4)
	events <- CallEvent{Kind: CallBegan, SessionID: "call-3"}
	events <- CallEvent{Kind: CallConnected}
	events <- CallEvent{Kind: CallEnded, SessionID: "call-3"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx, events) }()

	deadline := time.Now().Add(time.Second)
	for h.stt.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.ctrl.State() != StateFinalizing {
		t.Fatalf("expected finalizing, got %v", h.ctrl.State())
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not return while finalizing")
	}
	if h.store.count() != 0 {
		t.Error("terminated session must not be stored")
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("expected idle, got %v", h.ctrl.State())
	}
}

func TestController_RunCanceledTerminates(t *testing.T) {
	h := newHarness(t)
	h.startCapture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.ctrl.Run(ctx, make(chan CallEvent)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("expected idle, got %v", h.ctrl.State())
	}
}
