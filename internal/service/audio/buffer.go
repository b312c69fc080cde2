// Package audio accumulates captured frames for one session and frames
// them into the payload submitted to transcription providers.
package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/models"
)

// BufferLimits defines the guardrails for one session buffer.
type BufferLimits struct {
	MaxBytes        int           // Max PCM bytes retained (header excluded)
	SilenceDuration time.Duration // Length of the payload returned when nothing was captured
	SampleRate      int           // Format used for the silence payload
	Channels        int
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() BufferLimits {
	return BufferLimits{
		MaxBytes:        20 * 1024 * 1024, // ~11 minutes at 16kHz 16-bit mono
		SilenceDuration: time.Second,
		SampleRate:      16000,
		Channels:        1,
	}
}

// PushResult reports what happened to one pushed frame.
type PushResult struct {
	Bytes     int     // PCM bytes appended
	Dropped   string  // non-empty reason when the frame was not appended
	Level     float64 // smoothed level after this frame
	Truncated bool    // the ceiling was reached by this or an earlier frame
}

// FrameBuffer is an append-only accumulator for one session. Frames are
// appended in arrival order; once MaxBytes is reached later frames are
// dropped and the buffer is flagged truncated. Older data is never evicted.
type FrameBuffer struct {
	mu     sync.Mutex
	limits BufferLimits
	logger zerolog.Logger

	pcm        []byte
	sampleRate int
	channels   int
	frames     int
	truncated  bool
	paused     bool

	meter *LevelMeter
}

// NewFrameBuffer creates a buffer with default limits.
func NewFrameBuffer() *FrameBuffer {
	return NewFrameBufferWithLimits(DefaultLimits())
}

// NewFrameBufferWithLimits creates a buffer with custom limits.
func NewFrameBufferWithLimits(limits BufferLimits) *FrameBuffer {
	d := DefaultLimits()
	if limits.SampleRate <= 0 {
		limits.SampleRate = d.SampleRate
	}
	if limits.Channels <= 0 {
		limits.Channels = d.Channels
	}
	if limits.SilenceDuration <= 0 {
		limits.SilenceDuration = d.SilenceDuration
	}
	return &FrameBuffer{
		limits: limits,
		logger: log.With().Str("component", "audio-buffer").Logger(),
		meter:  NewLevelMeter(),
	}
}

// WithLogger replaces the buffer's logger.
func (b *FrameBuffer) WithLogger(l zerolog.Logger) *FrameBuffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = l
	return b
}

// Push appends one frame. The first accepted frame fixes the buffer format;
// frames with a different format are rejected with MalformedAudio.
func (b *FrameBuffer) Push(frame models.AudioFrame) (PushResult, error) {
	if frame.SampleRate <= 0 || frame.Channels <= 0 {
		return PushResult{Dropped: "invalid_format"}, errs.MalformedAudio(
			fmt.Sprintf("frame has sample rate %d and %d channels", frame.SampleRate, frame.Channels))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused {
		return PushResult{Dropped: "paused", Truncated: b.truncated}, nil
	}
	if b.frames > 0 && (frame.SampleRate != b.sampleRate || frame.Channels != b.channels) {
		return PushResult{Dropped: "format_mismatch", Truncated: b.truncated}, errs.MalformedAudio(
			fmt.Sprintf("frame format %dHz/%dch differs from session %dHz/%dch",
				frame.SampleRate, frame.Channels, b.sampleRate, b.channels))
	}

	b.meter.Observe(frame.Samples)
	if b.truncated {
		return PushResult{Dropped: "ceiling", Level: b.meter.Level(), Truncated: true}, nil
	}
	if b.frames == 0 {
		b.sampleRate = frame.SampleRate
		b.channels = frame.Channels
	}
	b.frames++

	pcm := Float32ToPCM16(frame.Samples)
	if b.limits.MaxBytes > 0 {
		room := b.limits.MaxBytes - len(b.pcm)
		room -= room % (b.channels * bytesPerSample)
		if len(pcm) > room {
			if room < 0 {
				room = 0
			}
			pcm = pcm[:room]
			b.truncated = true
			b.logger.Warn().
				Int("maxBytes", b.limits.MaxBytes).
				Int("frames", b.frames).
				Msg("Audio buffer reached ceiling, later frames dropped")
		}
	}
	b.pcm = append(b.pcm, pcm...)

	return PushResult{Bytes: len(pcm), Level: b.meter.Level(), Truncated: b.truncated}, nil
}

// Pause halts buffering without discarding what was captured.
func (b *FrameBuffer) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = true
}

// Resume restarts buffering after Pause.
func (b *FrameBuffer) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = false
}

// Paused reports whether buffering is halted.
func (b *FrameBuffer) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Finalize assembles the payload for everything retained so far. If no frame
// was ever accepted it returns a short well-formed silence payload. It may be
// called on a buffer that stopped receiving frames mid-capture.
func (b *FrameBuffer) Finalize() Payload {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frames == 0 {
		return Silence(b.limits.SilenceDuration.Seconds(), b.limits.SampleRate, b.limits.Channels)
	}
	return FromPCM16(b.pcm, b.sampleRate, b.channels)
}

// Truncated reports whether the ceiling was reached.
func (b *FrameBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// Len returns the retained PCM byte count.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pcm)
}

// Frames returns the number of accepted frames.
func (b *FrameBuffer) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// Level returns the smoothed input level and its quality bucket.
func (b *FrameBuffer) Level() (float64, LevelQuality) {
	v := b.meter.Level()
	return v, QualityFor(v)
}
