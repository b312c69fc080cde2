package openai

import "math"

// logprobConfidence turns whisper segment statistics into a [0,1] score.
func logprobConfidence(avgLogprob, noSpeechProb float64) float64 {
	if avgLogprob > 0 {
		avgLogprob = 0
	}
	return math.Exp(avgLogprob) * (1 - noSpeechProb)
}
