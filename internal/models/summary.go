package models

import "time"

// Summary methods recorded on a CallSummary.
const (
	MethodExtractive = "extractive"
	MethodEmpty      = "empty"
	// MethodGenerativePrefix is followed by the generator backend name.
	MethodGenerativePrefix = "generative:"
)

// QualityScore is the composite suitability of a transcript for
// generative summarization. Every field is within [0,1].
type QualityScore struct {
	Length          float64 `json:"length"`
	SentenceDensity float64 `json:"sentenceDensity"`
	Diversity       float64 `json:"diversity"`
	FillerPenalty   float64 `json:"fillerPenalty"`
	Total           float64 `json:"total"`
}

// CallSummary is the structured summary of one session.
type CallSummary struct {
	Text         string       `json:"text" validate:"required"`
	KeyPoints    []string     `json:"keyPoints"`
	ActionItems  []string     `json:"actionItems"`
	Keywords     []string     `json:"keywords"`
	Participants []string     `json:"participants"`
	Confidence   float64      `json:"confidence" validate:"gte=0,lte=1"`
	Method       string       `json:"method"`
	Quality      QualityScore `json:"quality"`
}

// StructuredRecord is the unit handed to the storage collaborator.
// It is treated as immutable once built.
type StructuredRecord struct {
	Session              CallSession `json:"session"`
	Transcript           string      `json:"transcript"`
	Provider             string      `json:"provider"`
	TranscriptConfidence float64     `json:"transcriptConfidence" validate:"gte=0,lte=1"`
	Summary              CallSummary `json:"summary"`
	CreatedAt            time.Time   `json:"createdAt"`
}

// NewStructuredRecord builds a record, copying slices so later mutation of
// the inputs cannot leak into it.
func NewStructuredRecord(session CallSession, result TranscriptionResult, summary CallSummary) StructuredRecord {
	summary.KeyPoints = cloneStrings(summary.KeyPoints)
	summary.ActionItems = cloneStrings(summary.ActionItems)
	summary.Keywords = cloneStrings(summary.Keywords)
	summary.Participants = cloneStrings(summary.Participants)
	if session.EndedAt != nil {
		ended := *session.EndedAt
		session.EndedAt = &ended
	}
	return StructuredRecord{
		Session:              session,
		Transcript:           result.Text,
		Provider:             result.Provider,
		TranscriptConfidence: result.Confidence,
		Summary:              summary,
		CreatedAt:            time.Now().UTC(),
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
