package extract

import (
	"context"
	"regexp"
	"strings"
)

// actionPatterns are tried in order against each sentence; the first match
// wins and its first capture group is the action phrase.
var actionPatterns = []*regexp.Regexp{
	// explicit markers
	regexp.MustCompile(`(?i)\b(?:action item|action|todo|to-do|follow[- ]up)\s*[:：]\s*(.+)`),
	regexp.MustCompile(`(?:TODO|ToDo|課題|宿題|対応事項)\s*[:：]\s*(.+)`),
	// imperative requests
	regexp.MustCompile(`(?i)\b(?:please|could you|can you|would you|make sure to|make sure you|remember to|don't forget to)\s+(.+)`),
	// commitments
	regexp.MustCompile(`(?i)\b(?:i will|i'll|we will|we'll|i need to|we need to|i have to|we have to|i'm going to|we're going to|let me)\s+(.+)`),
	// deadline phrasing
	regexp.MustCompile(`(?i)^(.+?\b(?:by|before|no later than)\s+(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|today|tonight|noon|end of (?:the )?(?:day|week|month|quarter)|next \w+|this \w+|\d{1,2}(?::\d{2})?\s*(?:am|pm)?|\d{1,2}/\d{1,2}).*)`),
	// Japanese requests and deadlines
	regexp.MustCompile(`(.+?(?:までに).+)`),
	regexp.MustCompile(`(.+?)(?:をお願いします|をお願いいたします|してください|して下さい|しておきます|します予定)`),
}

// actionItems extracts commitment phrases, one per sentence at most.
func actionItems(ctx context.Context, text string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)

	for _, sentence := range SplitSentences(text) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sentence = stripSpeakerLabel(sentence)
		for _, re := range actionPatterns {
			m := re.FindStringSubmatch(sentence)
			if m == nil {
				continue
			}
			item := cleanAction(m[1])
			if item != "" && !seen[normalize(item)] {
				seen[normalize(item)] = true
				out = append(out, item)
			}
			break
		}
	}
	return out, nil
}

func cleanAction(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".!?。！？,、 ")
	return s
}
