package extract

import (
	"strings"
	"unicode"
)

var abbreviations = toSet("mr mrs ms dr prof st inc corp ltd co jr sr vs etc e.g i.e a.m p.m no approx dept")

func isFullWidthTerminator(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || isFullWidthTerminator(r)
}

func isCloser(r rune) bool {
	return strings.ContainsRune(`"')]」』）`, r)
}

// SplitSentences splits text on sentence terminators and line breaks,
// keeping each sentence's terminator. ASCII terminators end a sentence only
// before whitespace or end of text, and never after a known abbreviation
// or between digits. Empty sentences are dropped.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var (
		out   []string
		start int
	)
	emit := func(end int) {
		s := strings.TrimSpace(string(runes[start:end]))
		if s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' || r == '\r' {
			emit(i + 1)
			continue
		}
		if !isTerminator(r) {
			continue
		}

		// Absorb runs of terminators and closing quotes: "Really?!" 」
		end := i + 1
		for end < len(runes) && (isTerminator(runes[end]) || isCloser(runes[end])) {
			end++
		}

		if !isFullWidthTerminator(r) {
			if end < len(runes) && !unicode.IsSpace(runes[end]) && !isCJK(runes[end]) {
				i = end - 1
				continue
			}
			if r == '.' && end == i+1 && endsWithAbbreviation(runes[start:i]) {
				continue
			}
		}
		emit(end)
		i = end - 1
	}
	emit(len(runes))
	return out
}

func endsWithAbbreviation(prefix []rune) bool {
	s := strings.TrimSpace(string(prefix))
	if i := strings.LastIndexFunc(s, unicode.IsSpace); i >= 0 {
		s = s[i+1:]
	}
	s = strings.ToLower(strings.TrimLeft(s, `"'(`))
	if s == "" {
		return false
	}
	if _, ok := abbreviations[s]; ok {
		return true
	}
	// single initials: "J. Smith"
	return len([]rune(s)) == 1 && unicode.IsLetter([]rune(s)[0])
}

func isCJK(r rune) bool {
	switch classify(r) {
	case scriptHan, scriptKatakana, scriptHiragana:
		return true
	}
	return false
}
