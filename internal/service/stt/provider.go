// Package stt defines the contract shared by speech-to-text providers.
package stt

import (
	"context"
	"math"
	"strings"

	"call-recap-service/internal/models"
	"call-recap-service/internal/service/audio"
)

// Kind identifies the provider variant.
type Kind string

const (
	KindOnDevice Kind = "on_device" // local engine, short buffers, low latency
	KindCloud    Kind = "cloud"     // whole-session batch dictation
	KindMock     Kind = "mock"
)

// Provider wraps one speech-to-text backend.
//
// Transcribe fails with an *errs.Error coded PERMISSION_DENIED,
// PROVIDER_UNAVAILABLE, PROVIDER_REJECTED, PROVIDER_TIMEOUT or
// MALFORMED_RESPONSE. A provider that heard nothing returns
// models.UnrecognizedResult with a nil error.
type Provider interface {
	// Name is the identifier reported in TranscriptionResult.Provider.
	Name() string

	// Kind reports the variant.
	Kind() Kind

	// Transcribe submits a whole-session payload.
	Transcribe(ctx context.Context, payload audio.Payload, language string) (models.TranscriptionResult, error)
}

// Normalize clamps confidence, trims text and fills in provider and
// language so every variant reports the same shape.
func Normalize(r models.TranscriptionResult, provider, language string) models.TranscriptionResult {
	r.Text = strings.TrimSpace(r.Text)
	if r.Provider == "" {
		r.Provider = provider
	}
	if r.Language == "" {
		r.Language = language
	}
	r.Confidence = clamp01(r.Confidence)
	for i := range r.Segments {
		r.Segments[i].Text = strings.TrimSpace(r.Segments[i].Text)
		r.Segments[i].Confidence = clamp01(r.Segments[i].Confidence)
	}
	if r.Text == "" || r.Text == models.UnrecognizedText {
		r.Text = models.UnrecognizedText
		r.Confidence = 0
	}
	return r
}

// AverageConfidence returns the mean of per-segment confidences, or 0.
func AverageConfidence(segments []models.Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var sum float64
	for _, s := range segments {
		sum += s.Confidence
	}
	return clamp01(sum / float64(len(segments)))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
