package models

// GenerationResult is the outcome of a single backend invocation. Failures
// travel inside the value rather than as Go errors, so callers must handle
// both states explicitly and cannot accidentally propagate a failure as a
// transport error.
type GenerationResult struct {
	succeeded bool
	text      string
	message   string
}

// GenerationSuccess wraps generated text in a successful result
func GenerationSuccess(text string) GenerationResult {
	return GenerationResult{succeeded: true, text: text}
}

// GenerationFailure wraps a failure description in a failed result
func GenerationFailure(message string) GenerationResult {
	return GenerationResult{succeeded: false, message: message}
}

// Succeeded reports whether the backend produced text
func (r GenerationResult) Succeeded() bool {
	return r.succeeded
}

// Text returns the generated text. Empty unless Succeeded is true.
func (r GenerationResult) Text() string {
	return r.text
}

// Message returns the failure description. Empty unless Succeeded is false.
func (r GenerationResult) Message() string {
	return r.message
}
