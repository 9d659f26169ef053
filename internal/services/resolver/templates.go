package resolver

import (
	"fmt"
	"strings"

	"github.com/ternarybob/responsum/internal/models"
)

// Prompt templates keyed by backend kind. Local models get the verbose
// instruction form whose "Question:" marker the input budget anchors on;
// hosted models get the compact Q/A form.
const (
	localContextTemplate  = "Based on the following context, answer the question concisely:\n\nContext:\n%s\n\nQuestion: %s\n\nAnswer:"
	localDirectTemplate   = "Answer the question concisely:\n\nQuestion: %s\n\nAnswer:"
	hostedContextTemplate = "Use the following context to answer:\n\n%s\n\nQ: %s\nA:"
	hostedDirectTemplate  = "Q: %s\nA:"
)

// contextPrompt assembles the generation prompt from retrieved chunk texts,
// joined by blank lines in retrieval order
func contextPrompt(kind models.BackendKind, question string, chunkTexts []string) string {
	contextBlock := strings.Join(chunkTexts, "\n\n")
	if kind == models.BackendLocal {
		return fmt.Sprintf(localContextTemplate, contextBlock, question)
	}
	return fmt.Sprintf(hostedContextTemplate, contextBlock, question)
}

// directPrompt assembles a contextless prompt for the degraded paths
func directPrompt(kind models.BackendKind, question string) string {
	if kind == models.BackendLocal {
		return fmt.Sprintf(localDirectTemplate, question)
	}
	return fmt.Sprintf(hostedDirectTemplate, question)
}
