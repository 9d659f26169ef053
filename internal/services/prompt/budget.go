package prompt

import (
	"strings"
)

// Question markers recognized in prompt templates. Budgeting protects
// everything from the rightmost marker to the end of the prompt.
const (
	MarkerQuestion = "Question:"
	MarkerCompact  = "Q:"
)

// ellipsis marks where context was cut from an oversized prompt.
const ellipsis = "..."

// minContextBudget is the smallest leading-context slice worth keeping.
// At or below this only the question segment survives.
const minContextBudget = 50

// Budget fits a prompt into maxInputLength characters. Prompts that
// already fit are returned unchanged. Oversized prompts lose leading
// context first; the question segment, once found, is never cut.
func Budget(prompt string, maxInputLength int) string {
	if len(prompt) <= maxInputLength {
		return prompt
	}

	qStart := questionStart(prompt)
	if qStart < 0 || qStart <= maxInputLength/2 {
		// No marker, or the question sits too early to treat as a
		// protected tail. Plain truncation.
		return prompt[:maxInputLength] + ellipsis
	}

	questionLength := len(prompt) - qStart
	contextBudget := maxInputLength - questionLength
	if contextBudget > minContextBudget {
		return prompt[:contextBudget] + ellipsis + prompt[qStart:]
	}

	// The question alone nearly fills the window. Drop the context.
	return prompt[qStart:]
}

// questionStart returns the index of the rightmost question marker in
// the prompt, or -1 when neither marker occurs.
func questionStart(prompt string) int {
	long := strings.LastIndex(prompt, MarkerQuestion)
	compact := strings.LastIndex(prompt, MarkerCompact)
	if long > compact {
		return long
	}
	return compact
}
