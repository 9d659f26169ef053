package sanitize

import (
	"strings"

	"github.com/ternarybob/responsum/internal/services/prompt"
)

// maxResponseLength is the cap applied before sentence truncation.
const maxResponseLength = 400

// repairRatio is how far into the response the last sentence break must
// sit before a dangling fragment is dropped.
const repairRatio = 0.4

// Response cleans raw model output. Small local models echo the prompt,
// loop on repeated lines, re-ask the question, and trail off
// mid-sentence; each step below repairs one of those failure modes, in
// order. The result may be empty but is always well-formed.
func Response(raw, originalPrompt string) string {
	response := strings.TrimSpace(raw)

	// Strip a leading prompt echo.
	if strings.HasPrefix(response, originalPrompt) {
		response = strings.TrimSpace(response[len(originalPrompt):])
	}

	response = dropRepeatedLines(response)
	response = dropRepeatedQuestion(response)
	response = capLength(response, maxResponseLength)
	response = repairTrailingSentence(response)

	return response
}

// dropRepeatedLines keeps each line the first time it appears and stops
// at the first repeat. A repeated line means the model has started to
// loop; everything from there on is discarded.
func dropRepeatedLines(response string) string {
	lines := strings.Split(response, "\n")
	seen := make(map[string]bool, len(lines))
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if seen[trimmed] {
			break
		}
		seen[trimmed] = true
		kept = append(kept, trimmed)
	}

	return strings.Join(kept, "\n")
}

// dropRepeatedQuestion truncates strictly before the second occurrence
// of a question marker. A re-asked question means the model has begun a
// new turn; the answer is everything before it.
func dropRepeatedQuestion(response string) string {
	for _, marker := range []string{prompt.MarkerQuestion, prompt.MarkerCompact} {
		if strings.Count(response, marker) <= 1 {
			continue
		}
		first := strings.Index(response, marker)
		offset := strings.Index(response[first+len(marker):], marker)
		second := first + len(marker) + offset
		return strings.TrimSpace(response[:second])
	}
	return response
}

// capLength drops the trailing sentence fragment from responses over
// the limit.
func capLength(response string, limit int) string {
	if len(response) <= limit {
		return response
	}

	segments := strings.Split(response, ". ")
	if len(segments) <= 1 {
		return response
	}

	return strings.Join(segments[:len(segments)-1], ". ") + "."
}

// repairTrailingSentence cuts an unfinished trailing fragment at the
// rightmost sentence break, provided that break sits past repairRatio
// of the text.
func repairTrailingSentence(response string) string {
	if response == "" || endsComplete(response) {
		return response
	}
	if len(strings.Fields(response)) <= 3 {
		return response
	}

	last := -1
	for _, mark := range []string{".", "!", "?"} {
		if idx := strings.LastIndex(response, mark); idx > last {
			last = idx
		}
	}
	if float64(last) > float64(len(response))*repairRatio {
		return response[:last+1]
	}

	return response
}

func endsComplete(response string) bool {
	return strings.HasSuffix(response, ".") ||
		strings.HasSuffix(response, "!") ||
		strings.HasSuffix(response, "?") ||
		strings.HasSuffix(response, ":")
}
