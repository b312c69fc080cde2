package extract

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// "Alice:", "Dr. Chen：", "Agent 2:"; a capitalized name of up to four words
	speakerNameRe = regexp.MustCompile(`^\s*((?:[A-Z][\w.'-]*)(?:\s+[A-Z0-9][\w.'-]*){0,3})\s*[:：]\s*\S`)
	// "Speaker 1:", "SPEAKER_02:", "話者1："
	speakerPlaceholderRe = regexp.MustCompile(`(?i)^\s*((?:speaker[ _]?\d+)|(?:話者\s*\d+))\s*[:：]`)
	// Japanese names followed by a full-width colon: 田中：
	speakerJaRe = regexp.MustCompile(`^\s*([\p{Han}\p{Katakana}\p{Hiragana}ー]{1,10})\s*[:：]`)
)

// speakers returns distinct speaker labels in order of first appearance.
func speakers(ctx context.Context, text string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		label := speakerLabel(line)
		if label == "" || seen[normalize(label)] {
			continue
		}
		seen[normalize(label)] = true
		out = append(out, label)
	}
	return out, nil
}

func speakerLabel(line string) string {
	if m := speakerPlaceholderRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := speakerNameRe.FindStringSubmatch(line); m != nil {
		name := strings.TrimSpace(m[1])
		// "Action: ..." and "Note: ..." are markers, not speakers.
		if isMarker(name) {
			return ""
		}
		return name
	}
	if m := speakerJaRe.FindStringSubmatch(line); m != nil && !isMarker(m[1]) {
		return m[1]
	}
	return ""
}

var markers = toSet("action todo to-do note notes summary agenda follow-up followup re subject date time 課題 宿題 対応事項 議題 日時")

func isMarker(label string) bool {
	return inSet(markers, strings.ToLower(label)) || strings.HasPrefix(strings.ToLower(label), "action")
}

// stripSpeakerLabel removes a leading speaker prefix so patterns see the
// utterance itself.
func stripSpeakerLabel(sentence string) string {
	if speakerLabel(sentence) == "" {
		return sentence
	}
	if i := strings.IndexAny(sentence, ":："); i >= 0 {
		_, size := utf8.DecodeRuneInString(sentence[i:])
		return strings.TrimSpace(sentence[i+size:])
	}
	return sentence
}
