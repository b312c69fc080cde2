// Package models defines the data structures that flow through the
// recording, transcription and summarization pipeline.
package models

import "strings"

// UnrecognizedText marks a transcription that produced nothing usable.
// Callers compare against it to tell failure apart from genuine silence.
const UnrecognizedText = "(unrecognized)"

// Segment is a timed portion of a transcript.
type Segment struct {
	Text       string  `json:"text"`
	StartMs    int64   `json:"startMs"`
	EndMs      int64   `json:"endMs"`
	Confidence float64 `json:"confidence"`
}

// TranscriptionResult is the normalized output of whichever provider answered.
type TranscriptionResult struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Provider   string    `json:"provider"`
	Language   string    `json:"language"`
	Segments   []Segment `json:"segments,omitempty"`
}

// UnrecognizedResult returns the sentinel result used when every provider failed.
func UnrecognizedResult(provider, language string) TranscriptionResult {
	return TranscriptionResult{
		Text:       UnrecognizedText,
		Confidence: 0,
		Provider:   provider,
		Language:   language,
	}
}

// IsUnrecognized reports whether the result carries no usable transcript.
func (r TranscriptionResult) IsUnrecognized() bool {
	text := strings.TrimSpace(r.Text)
	return text == "" || text == UnrecognizedText
}
