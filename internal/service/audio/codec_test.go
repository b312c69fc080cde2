package audio

import (
	"encoding/binary"
	"errors"
	"testing"

	"call-recap-service/internal/errs"
)

func TestToPayload_HeaderFields(t *testing.T) {
	tests := []struct {
		name       string
		samples    int
		sampleRate int
		channels   int
	}{
		{"16k mono", 16000, 16000, 1},
		{"8k mono", 800, 8000, 1},
		{"44.1k stereo", 882, 44100, 2},
		{"empty", 0, 16000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ToPayload(make([]float32, tt.samples), tt.sampleRate, tt.channels)

			h, err := p.Header()
			if err != nil {
				t.Fatalf("unexpected header error: %v", err)
			}
			if int(h.DataLength) != tt.samples*2 {
				t.Errorf("dataLength = %d, want %d", h.DataLength, tt.samples*2)
			}
			if int(h.ByteRate) != tt.sampleRate*tt.channels*2 {
				t.Errorf("byteRate = %d, want %d", h.ByteRate, tt.sampleRate*tt.channels*2)
			}
			if int(h.BlockAlign) != tt.channels*2 {
				t.Errorf("blockAlign = %d, want %d", h.BlockAlign, tt.channels*2)
			}
			if h.BitsPerSample != 16 || h.AudioFormat != 1 {
				t.Errorf("unexpected format: bits=%d format=%d", h.BitsPerSample, h.AudioFormat)
			}
			if err := p.Validate(); err != nil {
				t.Errorf("expected valid payload, got %v", err)
			}
		})
	}
}

func TestToPayload_TotalSize(t *testing.T) {
	p := ToPayload(make([]float32, 16000), 16000, 1)
	if p.Len() != 32044 {
		t.Errorf("expected 32044 bytes, got %d", p.Len())
	}
}

func TestToPayload_ByteExactHeader(t *testing.T) {
	p := ToPayload([]float32{0, 0}, 16000, 1)
	b := p.Bytes

	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" || string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		t.Fatalf("unexpected chunk tags: %q", b[:40])
	}
	if got := binary.LittleEndian.Uint32(b[4:8]); got != 44+4-8 {
		t.Errorf("riff size = %d, want 40", got)
	}
	if got := binary.LittleEndian.Uint32(b[16:20]); got != 16 {
		t.Errorf("fmt chunk size = %d, want 16", got)
	}
}

func TestFloat32ToPCM16_ClampAndRound(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32767},
		{2.5, 32767},
		{-3, -32767},
		{0.5, 16384},
		{-0.5, -16384},
	}

	for _, tt := range tests {
		pcm := Float32ToPCM16([]float32{tt.in})
		got := int16(binary.LittleEndian.Uint16(pcm))
		if got != tt.want {
			t.Errorf("Float32ToPCM16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPayload_ValidateRejectsMismatchedHeader(t *testing.T) {
	p := ToPayload(make([]float32, 100), 16000, 1)
	// Corrupt the data length field.
	binary.LittleEndian.PutUint32(p.Bytes[40:44], 999)

	err := p.Validate()
	if !errors.Is(err, errs.ErrMalformedAudio) {
		t.Fatalf("expected malformed audio error, got %v", err)
	}
	// The payload is not repaired.
	h, _ := p.Header()
	if h.DataLength != 999 {
		t.Errorf("header was modified: %d", h.DataLength)
	}
}

func TestPayload_ValidateShortInput(t *testing.T) {
	p := Payload{Bytes: []byte("RIFF")}
	if err := p.Validate(); !errors.Is(err, errs.ErrMalformedAudio) {
		t.Errorf("expected malformed audio error, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	p := ToPayload(make([]float32, 1000), 16000, 1)

	out, truncated, err := Truncate(p, 44+301)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !truncated {
		t.Fatal("expected truncation")
	}
	// 301 is rounded down to the 2-byte block.
	if out.Len() != 44+300 {
		t.Errorf("expected 344 bytes, got %d", out.Len())
	}
	if err := out.Validate(); err != nil {
		t.Errorf("truncated payload invalid: %v", err)
	}

	same, truncated, err := Truncate(p, p.Len())
	if err != nil || truncated || same.Len() != p.Len() {
		t.Errorf("expected unchanged payload, got len=%d truncated=%v err=%v", same.Len(), truncated, err)
	}
}

func TestSilence(t *testing.T) {
	p := Silence(1, 16000, 1)
	if err := p.Validate(); err != nil {
		t.Fatalf("silence payload invalid: %v", err)
	}
	h, _ := p.Header()
	if h.Duration() != 1 {
		t.Errorf("expected 1s of silence, got %v", h.Duration())
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 1, -1}
	out := PCM16ToFloat32(Float32ToPCM16(in))
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		diff := out[i] - in[i]
		if diff < -0.0001 || diff > 0.0001 {
			t.Errorf("sample %d: got %v, want %v", i, out[i], in[i])
		}
	}
}
