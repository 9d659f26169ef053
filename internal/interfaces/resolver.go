package interfaces

import (
	"context"

	"github.com/ternarybob/responsum/internal/models"
)

// QueryResolver turns a natural-language question into a cited answer.
// Resolution degrades in stages: retrieval unavailability and generation
// failure both produce a well-formed answer rather than an error. The
// returned error is reserved for request-level problems such as an
// unknown backend reference.
type QueryResolver interface {
	// Resolve answers a question using up to resultCount retrieved chunks
	// as context, generating with the backend named by ref.
	Resolve(ctx context.Context, question string, resultCount int, ref models.BackendRef) (*models.Answer, error)
}
