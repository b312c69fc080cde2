package extract

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// EntityClass is the coarse class of a named entity.
type EntityClass string

const (
	EntityPerson       EntityClass = "person"
	EntityOrganization EntityClass = "organization"
	EntityPlace        EntityClass = "place"
)

// Entity is a named entity found in the transcript.
type Entity struct {
	Text  string      `json:"text"`
	Class EntityClass `json:"class"`
}

var (
	orgSuffixes   = toSet("inc corp corporation llc ltd co company bank group university labs systems technologies holdings")
	placeSuffixes = toSet("city street st avenue ave road rd county state province island airport station park")
	placeCues     = toSet("in at from to near visiting")
	personTitles  = toSet("mr mrs ms dr prof sir madam")

	// Japanese: name + honorific, and company designators.
	jaPersonRe = regexp.MustCompile(`([\p{Han}\p{Katakana}ー]{1,8})(?:さん|様|さま|氏|先生|部長|課長)`)
	jaOrgRe    = regexp.MustCompile(`(?:株式会社|有限会社)[\p{Han}\p{Katakana}ー]{1,12}|[\p{Han}\p{Katakana}ー]{1,12}(?:株式会社|銀行|大学|病院)`)
	jaPlaceRe  = regexp.MustCompile(`[\p{Han}\p{Katakana}ー]{1,8}(?:都|道|府|県|市|区|町|村|駅)`)
)

// entities extracts capitalized name sequences and classifies them.
func entities(ctx context.Context, text string) ([]Entity, error) {
	text = norm.NFKC.String(text)

	var out []Entity
	seen := make(map[string]bool)
	add := func(e Entity) {
		key := normalize(e.Text)
		if e.Text == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, e)
	}

	for _, sentence := range SplitSentences(text) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, e := range latinEntities(stripSpeakerLabel(sentence)) {
			add(e)
		}
	}

	for _, m := range jaOrgRe.FindAllString(text, -1) {
		add(Entity{Text: m, Class: EntityOrganization})
	}
	for _, m := range jaPersonRe.FindAllStringSubmatch(text, -1) {
		add(Entity{Text: m[1], Class: EntityPerson})
	}
	for _, m := range jaPlaceRe.FindAllString(text, -1) {
		add(Entity{Text: m, Class: EntityPlace})
	}
	return out, nil
}

func latinEntities(sentence string) []Entity {
	words := strings.Fields(sentence)
	var out []Entity

	for i := 0; i < len(words); i++ {
		w := trimPunct(words[i])
		if !isCapitalized(w) {
			continue
		}
		// Extend over following capitalized words and org suffixes,
		// stopping after a word that carries a separator.
		j := i + 1
		for j < len(words) && !strings.ContainsAny(words[j-1], ",;:") {
			next := trimPunct(words[j])
			if !isCapitalized(next) && !inSet(orgSuffixes, strings.ToLower(next)) {
				break
			}
			j++
		}

		opening := i == 0 && j-i == 1
		span := make([]string, 0, j-i)
		for _, sw := range words[i:j] {
			span = append(span, trimPunct(sw))
		}
		for len(span) > 1 && isStopword(strings.ToLower(span[0])) {
			span = span[1:]
		}
		prev := ""
		if i > 0 {
			prev = strings.ToLower(trimPunct(words[i-1]))
		}

		// A lone capitalized word opening a sentence is usually not a name.
		if opening && !isAcronym(span[0]) {
			continue
		}
		if inSet(personTitles, strings.ToLower(span[0])) {
			if len(span) == 1 {
				continue
			}
			out = append(out, Entity{Text: strings.Join(span[1:], " "), Class: EntityPerson})
			i = j - 1
			continue
		}
		if isStopword(strings.ToLower(span[0])) && len(span) == 1 {
			continue
		}

		out = append(out, Entity{Text: strings.Join(span, " "), Class: classifyEntity(span, prev)})
		i = j - 1
	}
	return out
}

func classifyEntity(span []string, prev string) EntityClass {
	last := strings.ToLower(span[len(span)-1])
	switch {
	case inSet(orgSuffixes, last):
		return EntityOrganization
	case inSet(placeSuffixes, last):
		return EntityPlace
	case len(span) == 1 && isAcronym(span[0]):
		return EntityOrganization
	case inSet(placeCues, prev):
		return EntityPlace
	case inSet(personTitles, prev):
		return EntityPerson
	default:
		return EntityPerson
	}
}

func isCapitalized(w string) bool {
	for _, r := range w {
		return unicode.IsUpper(r)
	}
	return false
}

func isAcronym(w string) bool {
	if len(w) < 2 {
		return false
	}
	for _, r := range w {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func trimPunct(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) && r != '&'
	})
}

func inSet(set map[string]struct{}, w string) bool {
	_, ok := set[w]
	return ok
}
