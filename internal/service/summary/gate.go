package summary

import (
	"math"
	"regexp"
	"unicode/utf8"

	"call-recap-service/internal/models"
	"call-recap-service/internal/service/extract"
)

// Sub-score weights. They sum to 1.
const (
	WeightLength    = 0.2
	WeightDensity   = 0.3
	WeightDiversity = 0.3
	WeightFiller    = 0.2
)

const (
	lengthSaturation   = 400 // characters
	sentenceSaturation = 5   // terminators
	fillerCap          = 10
)

var (
	fillerWords = map[string]struct{}{
		"um": {}, "umm": {}, "uh": {}, "uhm": {}, "er": {}, "erm": {}, "ah": {}, "hmm": {},
		"like": {}, "basically": {}, "literally": {}, "actually": {}, "okay": {}, "yeah": {},
	}
	jaFillerRe = regexp.MustCompile(`えーと|えっと|あのー|えー|まあ|なんか`)
)

// Score rates how suitable text is for generative summarization. Empty
// text scores zero on every axis.
func Score(text string) models.QualityScore {
	words := extract.Words(text)
	if len(words) == 0 {
		return models.QualityScore{}
	}

	length := float64(utf8.RuneCountInString(text)) / lengthSaturation

	terminators := 0
	for _, r := range text {
		switch r {
		case '.', '!', '?', '。', '！', '？':
			terminators++
		}
	}
	density := float64(terminators) / sentenceSaturation

	unique := make(map[string]struct{}, len(words))
	fillers := len(jaFillerRe.FindAllString(text, -1))
	for _, w := range words {
		unique[w] = struct{}{}
		if _, ok := fillerWords[w]; ok {
			fillers++
		}
	}
	diversity := float64(len(unique)) / float64(len(words))
	if fillers > fillerCap {
		fillers = fillerCap
	}
	filler := 1 - float64(fillers)/fillerCap

	q := models.QualityScore{
		Length:          clamp01(length),
		SentenceDensity: clamp01(density),
		Diversity:       clamp01(diversity),
		FillerPenalty:   clamp01(filler),
	}
	q.Total = Combine(q.Length, q.SentenceDensity, q.Diversity, q.FillerPenalty)
	return q
}

// Combine weights the four sub-scores into a total in [0,1]. Out of range
// inputs are clamped first, so the total never decreases when one input
// grows and the others are held.
func Combine(length, density, diversity, filler float64) float64 {
	return clamp01(WeightLength*clamp01(length) +
		WeightDensity*clamp01(density) +
		WeightDiversity*clamp01(diversity) +
		WeightFiller*clamp01(filler))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
