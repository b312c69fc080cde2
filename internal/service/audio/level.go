package audio

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/smallnest/ringbuffer"
)

// LevelWindow is the number of recent frames averaged by a LevelMeter.
const LevelWindow = 10

const levelRecordSize = 4

// LevelQuality buckets a smoothed input level.
type LevelQuality string

const (
	LevelExcellent LevelQuality = "excellent"
	LevelGood      LevelQuality = "good"
	LevelFair      LevelQuality = "fair"
	LevelPoor      LevelQuality = "poor"
)

// QualityFor buckets a normalized level against fixed thresholds.
func QualityFor(level float64) LevelQuality {
	switch {
	case level >= 0.8:
		return LevelExcellent
	case level >= 0.6:
		return LevelGood
	case level >= 0.3:
		return LevelFair
	default:
		return LevelPoor
	}
}

// LevelMeter keeps the last LevelWindow normalized levels in a fixed ring
// of 4-byte records; the oldest record is evicted when the ring is full.
type LevelMeter struct {
	mu sync.Mutex
	rb *ringbuffer.RingBuffer
}

// NewLevelMeter creates an empty meter.
func NewLevelMeter() *LevelMeter {
	return &LevelMeter{
		rb: ringbuffer.New(LevelWindow * levelRecordSize).SetBlocking(false),
	}
}

// Observe records the RMS level of one frame and returns the normalized value.
func (m *LevelMeter) Observe(samples []float32) float64 {
	level := NormalizeRMS(RMS(samples))

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rb.Free() < levelRecordSize {
		discard := make([]byte, levelRecordSize)
		if n, err := m.rb.Read(discard); err != nil || n != levelRecordSize {
			m.rb.Reset()
		}
	}
	rec := make([]byte, levelRecordSize)
	binary.LittleEndian.PutUint32(rec, math.Float32bits(float32(level)))
	if _, err := m.rb.Write(rec); err != nil {
		m.rb.Reset()
		_, _ = m.rb.Write(rec)
	}
	return level
}

// Level returns the mean of the retained levels, or 0 before any frame.
func (m *LevelMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rb.IsEmpty() {
		return 0
	}
	data := m.rb.Bytes(nil)
	n := len(data) / levelRecordSize
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*levelRecordSize:])))
	}
	return sum / float64(n)
}

// Samples returns how many levels are currently averaged.
func (m *LevelMeter) Samples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rb.Length() / levelRecordSize
}

// Reset clears the window.
func (m *LevelMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rb.Reset()
}

// RMS returns the root mean square of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// NormalizeRMS maps an RMS amplitude onto [0,1] over a 60 dB range.
func NormalizeRMS(rms float64) float64 {
	if rms <= 0 || math.IsNaN(rms) {
		return 0
	}
	db := 20 * math.Log10(rms)
	v := (db + 60) / 60
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
