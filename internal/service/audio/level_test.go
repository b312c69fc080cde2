package audio

import (
	"math"
	"testing"
)

func TestQualityFor(t *testing.T) {
	tests := []struct {
		level float64
		want  LevelQuality
	}{
		{1, LevelExcellent},
		{0.8, LevelExcellent},
		{0.79, LevelGood},
		{0.6, LevelGood},
		{0.59, LevelFair},
		{0.3, LevelFair},
		{0.29, LevelPoor},
		{0, LevelPoor},
	}

	for _, tt := range tests {
		if got := QualityFor(tt.level); got != tt.want {
			t.Errorf("QualityFor(%v) = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestNormalizeRMS(t *testing.T) {
	tests := []struct {
		rms  float64
		want float64
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{0.001, 0},     // -60 dB
		{0.0001, 0},    // below floor
		{0.1, 2.0 / 3}, // -20 dB
	}

	for _, tt := range tests {
		got := NormalizeRMS(tt.rms)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeRMS(%v) = %v, want %v", tt.rms, got, tt.want)
		}
	}
}

func TestLevelMeter_AveragesLastWindow(t *testing.T) {
	m := NewLevelMeter()

	loud := []float32{1, -1, 1, -1}
	silent := []float32{0, 0, 0, 0}

	for i := 0; i < LevelWindow; i++ {
		m.Observe(silent)
	}
	if got := m.Level(); got != 0 {
		t.Errorf("silent window level = %v, want 0", got)
	}

	// Half the window loud.
	for i := 0; i < LevelWindow/2; i++ {
		m.Observe(loud)
	}
	if got := m.Level(); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("half loud level = %v, want 0.5", got)
	}
	if m.Samples() != LevelWindow {
		t.Errorf("window holds %d samples, want %d", m.Samples(), LevelWindow)
	}

	// Oldest silent entries are fully evicted.
	for i := 0; i < LevelWindow; i++ {
		m.Observe(loud)
	}
	if got := m.Level(); math.Abs(got-1) > 1e-6 {
		t.Errorf("loud window level = %v, want 1", got)
	}
}

func TestLevelMeter_Reset(t *testing.T) {
	m := NewLevelMeter()
	m.Observe([]float32{1})
	m.Reset()
	if m.Level() != 0 || m.Samples() != 0 {
		t.Errorf("expected empty meter after reset")
	}
}

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 {
		t.Error("RMS of no samples must be 0")
	}
	if got := RMS([]float32{0.5, -0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS = %v, want 0.5", got)
	}
}
