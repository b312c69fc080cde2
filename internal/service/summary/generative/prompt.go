// Package generative provides summary.Generator backends: OpenAI chat
// completions, Gemini and a pool of Ollama servers.
package generative

import (
	"encoding/json"
	"fmt"
	"strings"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/service/summary"
)

// maxTranscriptChars bounds the transcript embedded in a prompt.
const maxTranscriptChars = 24000

const instruction = `You summarize recorded phone calls.
Respond with valid JSON only, matching this structure:
{"summary": "2-4 sentence summary", "keyPoints": ["..."], "actionItems": ["..."], "confidence": 0.0}
Write the summary in the language of the transcript. confidence is your own estimate in [0,1]
of how faithfully the summary reflects the call.`

func buildPrompt(transcript string) string {
	runes := []rune(transcript)
	if len(runes) > maxTranscriptChars {
		transcript = string(runes[:maxTranscriptChars])
	}
	return fmt.Sprintf("%s\n\nTranscript:\n%s", instruction, transcript)
}

// parseDraft decodes a model reply, tolerating markdown code fences and
// text around the JSON object.
func parseDraft(backend, raw string) (summary.Draft, error) {
	body := strings.TrimSpace(raw)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	start, end := strings.Index(body, "{"), strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return summary.Draft{}, errs.GenerativeUnavailable(backend, "reply contains no JSON object")
	}

	var d summary.Draft
	if err := json.Unmarshal([]byte(body[start:end+1]), &d); err != nil {
		return summary.Draft{}, errs.GenerativeUnavailable(backend, "reply is not valid JSON").WithCause(err)
	}
	d.Summary = strings.TrimSpace(d.Summary)
	if d.Summary == "" {
		return summary.Draft{}, errs.GenerativeUnavailable(backend, "reply has an empty summary")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		d.Confidence = 0
	}
	return d, nil
}
