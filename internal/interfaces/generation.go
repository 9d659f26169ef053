package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/responsum/internal/models"
)

// ErrUnknownBackend is returned when a backend identifier does not map to
// any configured backend
var ErrUnknownBackend = errors.New("unknown backend identifier")

// GenerationBackend produces a completion for a fully assembled prompt.
// Generation failures are encoded in the GenerationResult rather than
// returned as Go errors, so every invocation yields a usable value.
type GenerationBackend interface {
	// Generate runs a single completion attempt for the prompt. Exactly one
	// attempt is made per call; failures are reported in the result, never
	// retried internally.
	Generate(ctx context.Context, prompt string) models.GenerationResult

	// Name returns the wire identifier of the backend, e.g. "hosted" or "local-gpt2"
	Name() string

	// Close releases resources held by the backend
	Close() error
}

// BackendRegistry resolves backend references to ready GenerationBackends.
// Implementations construct each backend at most once and reuse it across
// requests.
type BackendRegistry interface {
	// Backend returns the backend for the given reference, constructing it on
	// first use. Unknown references and construction failures return an error.
	Backend(ctx context.Context, ref models.BackendRef) (GenerationBackend, error)

	// List returns catalog entries for all addressable backends
	List() []models.BackendInfo

	// Close shuts down every backend constructed so far
	Close() error
}
