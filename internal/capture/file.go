// Package capture provides capture collaborators that feed the session
// controller with audio frames.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/models"
	"call-recap-service/internal/service/audio"
)

// ErrAlreadyCapturing is returned when StartCapture is called twice.
var ErrAlreadyCapturing = errors.New("capture already running")

// Config controls replay pacing.
type Config struct {
	FrameDuration time.Duration // audio length per frame
	Realtime      bool          // sleep FrameDuration between frames
}

// DefaultConfig returns 100ms frames delivered in real time.
func DefaultConfig() Config {
	return Config{FrameDuration: 100 * time.Millisecond, Realtime: true}
}

// FileCapturer replays 16-bit PCM audio as a stream of frames, standing in
// for a live microphone.
type FileCapturer struct {
	cfg        Config
	pcm        []byte
	sampleRate int
	channels   int
	logger     zerolog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	running  chan struct{}
	finished chan struct{}
}

// NewFileCapturer loads a canonical 44-byte-header PCM WAV file.
func NewFileCapturer(path string, cfg Config) (*FileCapturer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, errs.PermissionDenied("file", err.Error())
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	h, err := audio.ParseHeader(b)
	if err != nil {
		return nil, err
	}
	if h.BitsPerSample != 16 || h.AudioFormat != 1 {
		return nil, errs.MalformedAudio(fmt.Sprintf("%s: need 16-bit PCM, got format %d with %d bits",
			path, h.AudioFormat, h.BitsPerSample))
	}
	data := b[audio.HeaderSize:]
	if int(h.DataLength) < len(data) {
		data = data[:h.DataLength]
	}
	return NewPCMCapturer(data, int(h.SampleRate), int(h.Channels), cfg), nil
}

// NewPCMCapturer replays raw little-endian 16-bit samples.
func NewPCMCapturer(pcm []byte, sampleRate, channels int, cfg Config) *FileCapturer {
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = DefaultConfig().FrameDuration
	}
	return &FileCapturer{
		cfg:        cfg,
		pcm:        pcm,
		sampleRate: sampleRate,
		channels:   channels,
		logger:     log.With().Str("component", "file-capture").Logger(),
		finished:   make(chan struct{}),
	}
}

// Duration returns the length of the replayed audio.
func (f *FileCapturer) Duration() time.Duration {
	bytesPerSecond := f.sampleRate * f.channels * 2
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(len(f.pcm)) * time.Second / time.Duration(bytesPerSecond)
}

// Finished is closed once every frame has been delivered.
func (f *FileCapturer) Finished() <-chan struct{} {
	return f.finished
}

// StartCapture begins delivering frames on a new goroutine.
func (f *FileCapturer) StartCapture(ctx context.Context, onFrame func(models.AudioFrame)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running != nil {
		return ErrAlreadyCapturing
	}
	if f.sampleRate <= 0 || f.channels <= 0 {
		return errs.MalformedAudio(fmt.Sprintf("invalid format %dHz/%dch", f.sampleRate, f.channels))
	}

	ctx, cancel := context.WithCancel(ctx)
	running := make(chan struct{})
	f.cancel = cancel
	f.running = running

	go func() {
		defer close(running)
		f.replay(ctx, onFrame)
	}()
	return nil
}

// StopCapture stops delivery and waits for the replay goroutine to exit.
func (f *FileCapturer) StopCapture() {
	f.mu.Lock()
	cancel, running := f.cancel, f.running
	f.cancel, f.running = nil, nil
	f.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-running
}

func (f *FileCapturer) replay(ctx context.Context, onFrame func(models.AudioFrame)) {
	frameBytes := int(f.cfg.FrameDuration.Seconds()*float64(f.sampleRate)) * f.channels * 2
	if frameBytes <= 0 {
		frameBytes = f.channels * 2
	}

	var ticker *time.Ticker
	if f.cfg.Realtime {
		ticker = time.NewTicker(f.cfg.FrameDuration)
		defer ticker.Stop()
	}

	frames := 0
	for off := 0; off < len(f.pcm); off += frameBytes {
		if ticker != nil {
			select {
			case <-ctx.Done():
				f.logger.Debug().Int("frames", frames).Msg("Replay stopped")
				return
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return
		}

		end := off + frameBytes
		if end > len(f.pcm) {
			end = len(f.pcm)
		}
		onFrame(models.AudioFrame{
			Samples:    audio.PCM16ToFloat32(f.pcm[off:end]),
			SampleRate: f.sampleRate,
			Channels:   f.channels,
			CapturedAt: time.Now(),
		})
		frames++
	}

	f.logger.Info().Int("frames", frames).Dur("duration", f.Duration()).Msg("Replay finished")
	select {
	case <-f.finished:
	default:
		close(f.finished)
	}
}
