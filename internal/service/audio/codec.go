package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"call-recap-service/internal/errs"
)

// HeaderSize is the size of the canonical RIFF/WAVE PCM header.
const HeaderSize = 44

const (
	formatPCM      = 1
	bitsPerSample  = 16
	bytesPerSample = bitsPerSample / 8
)

// Header describes the fields of a 44-byte PCM WAV header.
type Header struct {
	RIFFSize      uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataLength    uint32
}

// Payload is a self-describing audio buffer: header followed by 16-bit
// little-endian samples. A payload with a malformed header can be
// constructed but Validate rejects it; it is never repaired.
type Payload struct {
	Bytes []byte
}

// Len returns the total payload size in bytes.
func (p Payload) Len() int { return len(p.Bytes) }

// Data returns the sample bytes following the header.
func (p Payload) Data() []byte {
	if len(p.Bytes) < HeaderSize {
		return nil
	}
	return p.Bytes[HeaderSize:]
}

// Header parses the header without validating it against the data.
func (p Payload) Header() (Header, error) {
	return ParseHeader(p.Bytes)
}

// Validate checks that the header exactly describes the sample data.
func (p Payload) Validate() error {
	h, err := ParseHeader(p.Bytes)
	if err != nil {
		return err
	}
	dataLen := len(p.Bytes) - HeaderSize
	switch {
	case h.AudioFormat != formatPCM:
		return errs.MalformedAudio(fmt.Sprintf("unsupported format tag %d", h.AudioFormat))
	case h.BitsPerSample != bitsPerSample:
		return errs.MalformedAudio(fmt.Sprintf("unsupported bit depth %d", h.BitsPerSample))
	case h.Channels == 0 || h.SampleRate == 0:
		return errs.MalformedAudio("zero channels or sample rate")
	case h.BlockAlign != h.Channels*bytesPerSample:
		return errs.MalformedAudio(fmt.Sprintf("block align %d does not match %d channels", h.BlockAlign, h.Channels))
	case h.ByteRate != h.SampleRate*uint32(h.BlockAlign):
		return errs.MalformedAudio(fmt.Sprintf("byte rate %d does not match sample rate %d", h.ByteRate, h.SampleRate))
	case int(h.DataLength) != dataLen:
		return errs.MalformedAudio(fmt.Sprintf("data length %d does not match %d sample bytes", h.DataLength, dataLen))
	case int(h.RIFFSize) != len(p.Bytes)-8:
		return errs.MalformedAudio(fmt.Sprintf("riff size %d does not match payload size %d", h.RIFFSize, len(p.Bytes)))
	}
	return nil
}

// Duration returns the audio length described by the header.
func (h Header) Duration() float64 {
	if h.ByteRate == 0 {
		return 0
	}
	return float64(h.DataLength) / float64(h.ByteRate)
}

// ParseHeader reads the 44-byte header from b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errs.MalformedAudio(fmt.Sprintf("payload shorter than header: %d bytes", len(b)))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return Header{}, errs.MalformedAudio("missing RIFF/WAVE tags")
	}
	if string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		return Header{}, errs.MalformedAudio("missing fmt or data sub-chunk")
	}
	if binary.LittleEndian.Uint32(b[16:20]) != 16 {
		return Header{}, errs.MalformedAudio("unexpected fmt chunk size")
	}
	return Header{
		RIFFSize:      binary.LittleEndian.Uint32(b[4:8]),
		AudioFormat:   binary.LittleEndian.Uint16(b[20:22]),
		Channels:      binary.LittleEndian.Uint16(b[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(b[24:28]),
		ByteRate:      binary.LittleEndian.Uint32(b[28:32]),
		BlockAlign:    binary.LittleEndian.Uint16(b[32:34]),
		BitsPerSample: binary.LittleEndian.Uint16(b[34:36]),
		DataLength:    binary.LittleEndian.Uint32(b[40:44]),
	}, nil
}

// ToPayload converts floating-point samples into a framed 16-bit PCM payload.
func ToPayload(samples []float32, sampleRate, channels int) Payload {
	return FromPCM16(Float32ToPCM16(samples), sampleRate, channels)
}

// FromPCM16 frames already-encoded 16-bit little-endian samples.
func FromPCM16(pcm []byte, sampleRate, channels int) Payload {
	buf := make([]byte, HeaderSize+len(pcm))
	writeHeader(buf, len(pcm), sampleRate, channels)
	copy(buf[HeaderSize:], pcm)
	return Payload{Bytes: buf}
}

// Silence returns a well-formed payload of zero samples.
func Silence(seconds float64, sampleRate, channels int) Payload {
	n := int(seconds*float64(sampleRate)) * channels
	return FromPCM16(make([]byte, n*bytesPerSample), sampleRate, channels)
}

// Truncate returns a payload holding at most maxBytes in total, keeping the
// leading samples and rewriting the header to match. Payloads already within
// the limit are returned unchanged.
func Truncate(p Payload, maxBytes int) (Payload, bool, error) {
	if len(p.Bytes) <= maxBytes {
		return p, false, nil
	}
	h, err := p.Header()
	if err != nil {
		return p, false, err
	}
	align := int(h.BlockAlign)
	if align == 0 {
		return p, false, errs.MalformedAudio("zero block align")
	}
	dataLen := maxBytes - HeaderSize
	if dataLen < 0 {
		dataLen = 0
	}
	dataLen -= dataLen % align
	return FromPCM16(p.Data()[:dataLen], int(h.SampleRate), int(h.Channels)), true, nil
}

// Float32ToPCM16 clamps each sample to [-1,1] and scales it to the int16 range.
func Float32ToPCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*bytesPerSample:], uint16(sampleToInt16(s)))
	}
	return buf
}

// PCM16ToFloat32 decodes 16-bit little-endian samples into [-1,1] floats.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/bytesPerSample)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		out[i] = float32(v) / math.MaxInt16
	}
	return out
}

func sampleToInt16(s float32) int16 {
	f := float64(s)
	if math.IsNaN(f) {
		return 0
	}
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	return int16(math.Round(f * math.MaxInt16))
}

func writeHeader(buf []byte, dataLen, sampleRate, channels int) {
	blockAlign := channels * bytesPerSample
	byteRate := sampleRate * blockAlign

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(HeaderSize+dataLen-8))
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
}
