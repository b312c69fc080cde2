package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// normalize folds width and compatibility forms and lowercases.
func normalize(s string) string {
	return lower.String(norm.NFKC.String(s))
}

type script int

const (
	scriptOther script = iota
	scriptWord         // latin letters, digits, apostrophes inside words
	scriptHan
	scriptKatakana
	scriptHiragana
)

func classify(r rune) script {
	switch {
	case unicode.Is(unicode.Han, r):
		return scriptHan
	case unicode.Is(unicode.Katakana, r) || r == 'ー':
		return scriptKatakana
	case unicode.Is(unicode.Hiragana, r):
		return scriptHiragana
	case unicode.IsLetter(r) || unicode.IsDigit(r):
		return scriptWord
	default:
		return scriptOther
	}
}

type token struct {
	text   string
	script script
}

// tokenize splits text into runs of a single script. Latin words break on
// anything that is not a letter, digit or inner apostrophe; CJK text breaks
// on script changes, so kanji and katakana runs come out as content tokens
// and hiragana runs (mostly particles and inflections) as separate tokens.
func tokenize(text string) []token {
	var (
		out  []token
		cur  strings.Builder
		kind = scriptOther
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, token{text: strings.Trim(cur.String(), "'"), script: kind})
			cur.Reset()
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		k := classify(r)
		if r == '\'' && kind == scriptWord && i+1 < len(runes) && classify(runes[i+1]) == scriptWord {
			cur.WriteRune(r)
			continue
		}
		if k != kind || k == scriptOther {
			flush()
			kind = k
		}
		if k != scriptOther {
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// contentTokens returns normalized tokens worth ranking.
func contentTokens(text string) []string {
	var out []string
	for _, t := range tokenize(normalize(text)) {
		switch t.script {
		case scriptWord:
			if len([]rune(t.text)) >= 3 && !isStopword(t.text) && !isNumeric(t.text) {
				out = append(out, t.text)
			}
		case scriptHan, scriptKatakana:
			if len([]rune(t.text)) >= 2 {
				out = append(out, t.text)
			}
		}
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

var stopwords = toSet(`a about above after again against all am an and any are as at be because been
before being below between both but by can could did do does doing down during each few for from
further had has have having he her here hers herself him himself his how i if in into is it its
itself just let me more most my myself no nor not now of off on once only or other our ours
ourselves out over own same she should so some such than that the their theirs them themselves
then there these they this those through to too under until up very was we were what when where
which while who whom why will with would you your yours yourself yourselves yeah yes okay ok
uh um hmm like well really actually basically got get gonna wanna also going thing things
something anything everything know think want need said say says thanks thank hello hi bye
don't i'm it's that's we're you're they're i'll we'll can't won't isn't aren't didn't
doesn't there's let's`)

func isStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

func toSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// Words returns every normalized word token in text, stopwords included.
func Words(text string) []string {
	toks := tokenize(normalize(text))
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		out = append(out, t.text)
	}
	return out
}
