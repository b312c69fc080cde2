// Package session drives one call session at a time: it reacts to
// telephony events, runs audio capture into a frame buffer and, when the
// call ends, runs transcription and summarization and hands the record to
// storage.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/models"
	"call-recap-service/internal/observability/logging"
	"call-recap-service/internal/observability/metrics"
	"call-recap-service/internal/service/audio"
)

// Capturer is the audio capture collaborator. onFrame is called from the
// capturer's own goroutine, never from within StartCapture.
type Capturer interface {
	StartCapture(ctx context.Context, onFrame func(models.AudioFrame)) error
	StopCapture()
}

// Transcriber turns the session payload into text. It never fails.
type Transcriber interface {
	Transcribe(ctx context.Context, payload audio.Payload, language string) models.TranscriptionResult
}

// Summarizer turns a transcript into a summary. It never fails.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) models.CallSummary
}

// Store is the storage collaborator. It returns an opaque reference.
type Store interface {
	Save(ctx context.Context, rec models.StructuredRecord) (string, error)
}

// RecordValidator checks a record before handoff.
type RecordValidator interface {
	ValidateRecord(rec models.StructuredRecord) error
}

// Errors returned by the controller.
var (
	ErrNoSession  = errors.New("no active session")
	ErrTerminated = errors.New("session terminated")
)

// Config holds controller settings.
type Config struct {
	SettleDelay        time.Duration // wait after connect before capture starts
	Language           string        // passed to the transcriber; empty for its default
	Buffer             audio.BufferLimits
	LevelInterval      time.Duration // minimum gap between level notifications
	NotificationBuffer int
	HandoffTimeout     time.Duration // bound on the storage handoff
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SettleDelay:        300 * time.Millisecond,
		Buffer:             audio.DefaultLimits(),
		LevelInterval:      time.Second,
		NotificationBuffer: 64,
		HandoffTimeout:     10 * time.Second,
	}
}

// Outcome is the result of a finalized session.
type Outcome struct {
	Record    models.StructuredRecord
	Reference string
}

// Status is a point-in-time view of the controller.
type Status struct {
	State         State               `json:"state"`
	Session       *models.CallSession `json:"session,omitempty"`
	BufferedBytes int                 `json:"bufferedBytes"`
	Paused        bool                `json:"paused"`
	Truncated     bool                `json:"truncated"`
}

// active holds everything owned by the current session.
type active struct {
	session   models.CallSession
	buffer    *audio.FrameBuffer
	ctx       context.Context
	cancel    context.CancelFunc
	capturing bool
	lastLevel time.Time
	logger    zerolog.Logger
}

// Controller owns the active session and its frame buffer. Only one session
// exists at a time.
type Controller struct {
	cfg         Config
	capturer    Capturer
	transcriber Transcriber
	summarizer  Summarizer
	store       Store
	validator   RecordValidator
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	lifecycle *Lifecycle
	events    chan Notification

	mu  sync.Mutex
	cur *active
}

// Option configures a Controller.
type Option func(*Controller)

// WithValidator validates records before they are stored.
func WithValidator(v RecordValidator) Option {
	return func(c *Controller) { c.validator = v }
}

// WithMetrics replaces the default metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates a controller in IDLE.
func NewController(cfg Config, capturer Capturer, transcriber Transcriber, summarizer Summarizer, store Store, opts ...Option) *Controller {
	d := DefaultConfig()
	if cfg.LevelInterval <= 0 {
		cfg.LevelInterval = d.LevelInterval
	}
	if cfg.NotificationBuffer <= 0 {
		cfg.NotificationBuffer = d.NotificationBuffer
	}
	if cfg.HandoffTimeout <= 0 {
		cfg.HandoffTimeout = d.HandoffTimeout
	}
	if cfg.Buffer.MaxBytes == 0 {
		cfg.Buffer = d.Buffer
	}

	c := &Controller{
		cfg:         cfg,
		capturer:    capturer,
		transcriber: transcriber,
		summarizer:  summarizer,
		store:       store,
		metrics:     metrics.DefaultMetrics,
		logger:      logging.WithComponent("session"),
		events:      make(chan Notification, cfg.NotificationBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lifecycle = NewLifecycle(c.onTransition)
	return c
}

// Events returns the notification channel. Notifications are dropped when
// the channel is full.
func (c *Controller) Events() <-chan Notification {
	return c.events
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.lifecycle.State()
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.lifecycle.State()}
	if c.cur != nil {
		sess := c.cur.session
		sess.State = string(st.State)
		st.Session = &sess
		st.BufferedBytes = c.cur.buffer.Len()
		st.Paused = c.cur.buffer.Paused()
		st.Truncated = c.cur.buffer.Truncated()
	}
	return st
}

// Begin handles "session beginning": IDLE → CONNECTING. An empty id gets
// a generated one.
func (c *Controller) Begin(ctx context.Context, id string, direction models.Direction) (models.CallSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lifecycle.Can(EventBegin) {
		return models.CallSession{}, fmt.Errorf("%w: begin in state %s", ErrInvalidTransition, c.lifecycle.State())
	}
	if id == "" {
		id = uuid.NewString()
	}
	if direction == "" {
		direction = models.DirectionInbound
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	logger := logging.WithSession(id, string(direction))
	sessCtx = logger.WithContext(sessCtx)

	c.cur = &active{
		session: models.CallSession{
			ID:        id,
			Direction: direction,
			StartedAt: time.Now().UTC(),
			State:     string(StateConnecting),
		},
		buffer: audio.NewFrameBufferWithLimits(c.cfg.Buffer).WithLogger(logger),
		ctx:    sessCtx,
		cancel: cancel,
		logger: logger,
	}
	if err := c.lifecycle.Fire(ctx, EventBegin); err != nil {
		cancel()
		c.cur = nil
		return models.CallSession{}, err
	}
	c.metrics.RecordSessionStart()
	logger.Info().Msg("Session beginning")
	return c.cur.session, nil
}

// Connect handles "connected": after the settle delay it starts capture and
// moves CONNECTING → CAPTURING. If the session is ended or terminated during
// the delay, capture never starts. A capture start failure ends the session
// and returns it to IDLE.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	cur := c.cur
	if cur == nil || !c.lifecycle.Can(EventConnect) {
		c.mu.Unlock()
		return fmt.Errorf("%w: connect in state %s", ErrInvalidTransition, c.lifecycle.State())
	}
	c.mu.Unlock()

	if c.cfg.SettleDelay > 0 {
		timer := time.NewTimer(c.cfg.SettleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-cur.ctx.Done():
			return ErrTerminated
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != cur || !c.lifecycle.Can(EventConnect) {
		// ended or replaced while settling
		return ErrTerminated
	}

	if err := c.capturer.StartCapture(cur.ctx, func(f models.AudioFrame) { c.onFrame(cur, f) }); err != nil {
		cur.logger.Error().Err(err).Msg("Capture failed to start, ending session")
		c.metrics.RecordSessionError("capture")
		c.notify(Notification{Kind: NotifyError, SessionID: cur.session.ID, Error: err.Error()})
		c.discardLocked(ctx, cur)
		return fmt.Errorf("start capture: %w", err)
	}
	cur.capturing = true
	if err := c.lifecycle.Fire(ctx, EventConnect); err != nil {
		return err
	}
	cur.logger.Info().Dur("settleDelay", c.cfg.SettleDelay).Msg("Capture started")
	return nil
}

// Interrupt pauses buffering without a state change.
func (c *Controller) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.lifecycle.State() != StateCapturing {
		return
	}
	c.cur.buffer.Pause()
	c.cur.logger.Info().Msg("Audio interrupted, buffering paused")
}

// InterruptionEnded resumes buffering in place when shouldResume is set.
func (c *Controller) InterruptionEnded(shouldResume bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.lifecycle.State() != StateCapturing || !shouldResume {
		return
	}
	c.cur.buffer.Resume()
	c.cur.logger.Info().Msg("Interruption ended, buffering resumed")
}

// End handles "session ended" or a manual stop. From CONNECTING the session
// is dropped with no record. From CAPTURING it stops capture, runs the
// transcription and summarization sequence, stores the record and returns to
// IDLE. Only storage and validation failures are returned as errors; the
// controller is back in IDLE in every case.
func (c *Controller) End(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	cur := c.cur
	if cur == nil {
		c.mu.Unlock()
		return nil, ErrNoSession
	}
	state := c.lifecycle.State()
	if err := c.lifecycle.Fire(ctx, EventEnd); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if state == StateConnecting {
		cur.logger.Info().Msg("Session ended before capture began, discarding")
		c.releaseLocked(cur)
		c.mu.Unlock()
		return nil, nil
	}

	cur.capturing = false
	ended := time.Now().UTC()
	cur.session.EndedAt = &ended
	cur.session.Truncated = cur.buffer.Truncated()
	cur.session.State = string(StateFinalizing)
	session := cur.session
	c.mu.Unlock()

	// Frames arriving from here on are dropped; the capturer may block
	// until its callback returns, so stop it outside the lock.
	c.capturer.StopCapture()
	return c.finalize(cur, session)
}

// finalize runs outside the lock so Terminate can interrupt it.
func (c *Controller) finalize(cur *active, session models.CallSession) (*Outcome, error) {
	ctx := cur.ctx
	logger := cur.logger

	payload := cur.buffer.Finalize()
	logger.Info().
		Int("payloadBytes", payload.Len()).
		Bool("truncated", session.Truncated).
		Msg("Finalizing session")

	result := c.transcriber.Transcribe(ctx, payload, c.cfg.Language)
	c.notify(Notification{Kind: NotifyRecognizedText, SessionID: session.ID, Text: result.Text})

	summary := c.summarizer.Summarize(ctx, result.Text)
	c.notify(Notification{Kind: NotifySummaryReady, SessionID: session.ID, Summary: &summary})

	if ctx.Err() != nil {
		logger.Warn().Msg("Session terminated during finalization, discarding record")
		return nil, ErrTerminated
	}

	rec := models.NewStructuredRecord(session, result, summary)
	rec.Session.State = string(StateIdle)

	var (
		ref string
		err error
	)
	if c.validator != nil {
		err = c.validator.ValidateRecord(rec)
	}
	if err == nil {
		ref, err = c.handoff(ctx, rec)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != cur {
		// terminated while saving
		return nil, ErrTerminated
	}
	if err != nil {
		if errs.CodeOf(err) == "" {
			err = errs.StorageFailed("", err)
		}
		logger.Error().Err(err).Msg("Record handoff failed")
		c.metrics.RecordSessionError("storage")
		c.notify(Notification{Kind: NotifyError, SessionID: session.ID, Error: err.Error()})
		c.finishLocked(cur)
		return &Outcome{Record: rec}, err
	}

	logger.Info().Str("reference", ref).Str("method", summary.Method).Msg("Record stored")
	c.notify(Notification{Kind: NotifyStored, SessionID: session.ID, Reference: ref})
	c.finishLocked(cur)
	return &Outcome{Record: rec, Reference: ref}, nil
}

type saved struct {
	ref string
	err error
}

// handoff races the store against HandoffTimeout. A store that never
// returns is abandoned.
func (c *Controller) handoff(ctx context.Context, rec models.StructuredRecord) (string, error) {
	saveCtx, cancel := context.WithTimeout(ctx, c.cfg.HandoffTimeout)
	defer cancel()

	done := make(chan saved, 1)
	go func() {
		ref, err := c.store.Save(saveCtx, rec)
		done <- saved{ref: ref, err: err}
	}()

	select {
	case out := <-done:
		return out.ref, out.err
	case <-saveCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errs.StorageFailed("", errs.Timeout("storage"))
	}
}

func (c *Controller) finishLocked(cur *active) {
	if err := c.lifecycle.Fire(cur.ctx, EventFinish); err != nil {
		cur.logger.Warn().Err(err).Msg("Finish transition rejected")
	}
	c.releaseLocked(cur)
}

// Terminate forces the controller back to IDLE from any state, canceling
// in-flight work without waiting for it.
func (c *Controller) Terminate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.cur
	if cur == nil {
		_ = c.lifecycle.Fire(ctx, EventTerminate)
		return
	}
	cur.logger.Warn().Str("state", c.lifecycle.State().String()).Msg("Session terminated")
	c.discardLocked(ctx, cur)
}

func (c *Controller) discardLocked(ctx context.Context, cur *active) {
	if cur.capturing {
		cur.capturing = false
		go c.capturer.StopCapture()
	}
	if err := c.lifecycle.Fire(ctx, EventTerminate); err != nil {
		cur.logger.Warn().Err(err).Msg("Terminate transition rejected")
	}
	c.releaseLocked(cur)
}

func (c *Controller) releaseLocked(cur *active) {
	cur.cancel()
	if c.cur == cur {
		c.cur = nil
	}
	ended := time.Now().UTC()
	c.metrics.RecordSessionEnd(ended.Sub(cur.session.StartedAt).Seconds())
}

// onFrame runs on the capturer's goroutine.
func (c *Controller) onFrame(cur *active, frame models.AudioFrame) {
	c.mu.Lock()
	if c.cur != cur || c.lifecycle.State() != StateCapturing {
		c.mu.Unlock()
		c.metrics.RecordFrameDropped("not_capturing")
		return
	}
	wasTruncated := cur.buffer.Truncated()
	res, err := cur.buffer.Push(frame)
	emitLevel := time.Since(cur.lastLevel) >= c.cfg.LevelInterval
	if emitLevel {
		cur.lastLevel = time.Now()
	}
	c.mu.Unlock()

	switch {
	case err != nil:
		c.metrics.RecordFrameDropped("malformed")
		cur.logger.Warn().Err(err).Msg("Frame rejected")
		return
	case res.Dropped != "":
		c.metrics.RecordFrameDropped(res.Dropped)
	default:
		c.metrics.RecordAudioBuffered(res.Bytes)
	}
	if res.Truncated && !wasTruncated {
		c.metrics.RecordTruncation()
	}
	if emitLevel {
		c.notify(Notification{
			Kind:      NotifyLevel,
			SessionID: cur.session.ID,
			Level:     res.Level,
			Quality:   audio.QualityFor(res.Level),
		})
	}
}

func (c *Controller) onTransition(from, to State) {
	c.metrics.RecordTransition(string(from), string(to))
	id := ""
	if c.cur != nil {
		id = c.cur.session.ID
	}
	c.logger.Debug().Str("from", from.String()).Str("to", to.String()).Str("sessionId", id).Msg("State changed")
	c.notify(Notification{Kind: NotifyStateChanged, SessionID: id, From: from, State: to})
}

func (c *Controller) notify(n Notification) {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	select {
	case c.events <- n:
	default:
		c.metrics.RecordNotificationDropped()
	}
}
