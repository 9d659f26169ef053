package prompt

import (
	"strings"
	"testing"
)

func buildPrompt(context, question string) string {
	return "Based on the following context, answer the question concisely:\n\nContext:\n" +
		context + "\n\nQuestion: " + question + "\n\nAnswer:"
}

func TestBudgetShortPromptUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		maxLen int
	}{
		{"empty prompt", "", 400},
		{"plain question", "Question: What is the capital of France?\n\nAnswer:", 400},
		{"exactly at limit", strings.Repeat("a", 100), 100},
		{"one under limit", strings.Repeat("b", 99), 100},
		{"short with compact marker", "Q: why?\nA:", 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Budget(tt.prompt, tt.maxLen)
			if got != tt.prompt {
				t.Errorf("Budget() = %q, want unchanged %q", got, tt.prompt)
			}
		})
	}
}

func TestBudgetPreservesQuestion(t *testing.T) {
	question := "What port does the staging database listen on?"
	longContext := strings.Repeat("The deployment guide covers rollout steps in detail. ", 20)

	tests := []struct {
		name   string
		prompt string
		maxLen int
	}{
		{"large window", buildPrompt(longContext, question), 400},
		{"medium window", buildPrompt(longContext, question), 200},
		{"tight window", buildPrompt(longContext, question), 100},
		{"compact marker", "Use the following context to answer:\n\n" + longContext + "\n\nQ: " + question + "\nA:", 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qStart := questionStart(tt.prompt)
			if qStart <= 0 {
				t.Fatalf("test prompt has no question marker")
			}
			tail := tt.prompt[qStart:]

			got := Budget(tt.prompt, tt.maxLen)
			if !strings.Contains(got, tail) {
				t.Errorf("Budget() output lost the question tail %q:\n%q", tail, got)
			}
		})
	}
}

func TestBudgetNoMarkerTruncates(t *testing.T) {
	prompt := strings.Repeat("no markers anywhere in this text ", 30)
	maxLen := 200

	got := Budget(prompt, maxLen)
	want := prompt[:maxLen] + ellipsis
	if got != want {
		t.Errorf("Budget() = %q, want %q", got, want)
	}
}

func TestBudgetEarlyMarkerTruncates(t *testing.T) {
	// Marker inside the front half of the window is not treated as a
	// protected tail.
	prompt := "Intro. Q: early? " + strings.Repeat("padding words follow here ", 20)
	maxLen := 100

	got := Budget(prompt, maxLen)
	want := prompt[:maxLen] + ellipsis
	if got != want {
		t.Errorf("Budget() = %q, want %q", got, want)
	}
}

func TestBudgetKeepsContextHeadWhenRoomAllows(t *testing.T) {
	question := "Which service owns invoicing?"
	prompt := buildPrompt(strings.Repeat("Billing flows through the ledger service. ", 15), question)
	maxLen := 400

	qStart := questionStart(prompt)
	questionLen := len(prompt) - qStart
	contextBudget := maxLen - questionLen
	if contextBudget <= minContextBudget {
		t.Fatalf("test prompt leaves no context budget")
	}

	got := Budget(prompt, maxLen)
	want := prompt[:contextBudget] + ellipsis + prompt[qStart:]
	if got != want {
		t.Errorf("Budget() = %q, want %q", got, want)
	}
}

func TestBudgetDropsContextWhenBudgetTooSmall(t *testing.T) {
	// Question tail of 50 chars against a 100 char window leaves a
	// context budget of exactly 50, which is not enough to keep.
	question := strings.Repeat("x", 39) + "?"
	prompt := strings.Repeat("c", 60) + "\nQuestion: " + question
	qStart := questionStart(prompt)
	if len(prompt)-qStart != 50 {
		t.Fatalf("question tail is %d chars, want 50", len(prompt)-qStart)
	}

	got := Budget(prompt, 100)
	want := prompt[qStart:]
	if got != want {
		t.Errorf("Budget() = %q, want question only %q", got, want)
	}
}

func TestBudgetUsesRightmostMarker(t *testing.T) {
	// A context that itself quotes a question must not shadow the real
	// question at the end of the prompt.
	context := "The FAQ lists Question: how to reset a password, among others. " +
		strings.Repeat("More unrelated detail about account handling. ", 10)
	prompt := "Use the following context to answer:\n\n" + context + "\n\nQ: How do I delete my account?\nA:"

	got := Budget(prompt, 200)
	if !strings.Contains(got, "Q: How do I delete my account?\nA:") {
		t.Errorf("Budget() lost the trailing question: %q", got)
	}
}
