package extract

import (
	"context"
	"regexp"
	"strings"
)

var (
	determiners = toSet("the a an my your our their his her its this that these those some any every each")

	// kanji/katakana noun joined by の: 会社の方針
	jaNounPhraseRe = regexp.MustCompile(`[\p{Han}\p{Katakana}ー]{2,}の[\p{Han}\p{Katakana}ー]{2,}`)
)

const maxPhraseWords = 3

// nounPhrases finds determiner-led runs of content words ("the renewal
// invoice" -> "renewal invoice") and kanji/katakana compounds joined by の.
// Only multi-word phrases are kept; single words are covered by keywords.
func nounPhrases(ctx context.Context, text string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, sentence := range SplitSentences(normalize(text)) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		words := strings.Fields(sentence)
		for i := 0; i < len(words); i++ {
			if !inSet(determiners, trimPunct(words[i])) {
				continue
			}
			var phrase []string
			for j := i + 1; j < len(words) && len(phrase) < maxPhraseWords; j++ {
				w := trimPunct(words[j])
				if w == "" || isStopword(w) || inSet(determiners, w) || isNumeric(w) {
					break
				}
				phrase = append(phrase, w)
				if w != words[j] {
					break // punctuation ends the phrase
				}
			}
			if len(phrase) >= 2 {
				add(strings.Join(phrase, " "))
			}
		}
		for _, m := range jaNounPhraseRe.FindAllString(sentence, -1) {
			add(m)
		}
	}
	return out, nil
}
