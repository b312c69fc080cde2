package summary

import (
	"strings"
	"unicode/utf8"

	"call-recap-service/internal/models"
	"call-recap-service/internal/service/extract"
)

// ApologyText is returned when there is nothing to summarize.
const ApologyText = "No summary available: the conversation contained no recognizable speech."

const (
	ExtractiveConfidence = 0.6
	EmptyConfidence      = 0.1
)

// IsEmptyTranscript reports whether text carries no recognizable speech.
func IsEmptyTranscript(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || t == models.UnrecognizedText
}

// Extractive builds a summary from the first, middle and last sentences.
// The middle sentence (index count/2) is included whenever there are more
// than two sentences. It never fails: empty input yields ApologyText.
func Extractive(text string) (summary string, keyPoints []string, confidence float64) {
	if IsEmptyTranscript(text) {
		return ApologyText, nil, EmptyConfidence
	}
	sentences := extract.SplitSentences(text)
	if len(sentences) == 0 {
		return ApologyText, nil, EmptyConfidence
	}

	idx := []int{0}
	if n := len(sentences); n > 2 {
		idx = append(idx, n/2, n-1)
	} else if n == 2 {
		idx = append(idx, 1)
	}
	for _, i := range idx {
		keyPoints = append(keyPoints, sentences[i])
	}
	return joinSentences(keyPoints), keyPoints, ExtractiveConfidence
}

// joinSentences joins with a space, except after a full-width terminator
// or closing bracket where Japanese text runs on directly.
func joinSentences(sentences []string) string {
	var b strings.Builder
	for i, s := range sentences {
		if i > 0 {
			last, _ := utf8.DecodeLastRuneInString(sentences[i-1])
			if !strings.ContainsRune("。！？」』）", last) {
				b.WriteByte(' ')
			}
		}
		b.WriteString(s)
	}
	return b.String()
}
