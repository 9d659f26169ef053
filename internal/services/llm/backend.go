package llm

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/models"
	"github.com/ternarybob/responsum/internal/services/llm/local"
	"github.com/ternarybob/responsum/internal/services/prompt"
	"github.com/ternarybob/responsum/internal/services/sanitize"
)

// hostedBackend binds the shared provider to one wire identifier
type hostedBackend struct {
	id       string
	model    string
	provider *HostedProvider
}

func newHostedBackend(id, model string, provider *HostedProvider) *hostedBackend {
	return &hostedBackend{
		id:       id,
		model:    model,
		provider: provider,
	}
}

// Generate passes the prompt to the hosted API verbatim. The hosted
// service enforces its own length limits and returns clean text, so
// there is no budgeting or sanitizing on this path.
func (b *hostedBackend) Generate(ctx context.Context, input string) models.GenerationResult {
	return b.provider.Generate(ctx, b.model, input)
}

func (b *hostedBackend) Name() string {
	return b.id
}

// Close is a no-op; the provider is shared and closed by the registry
func (b *hostedBackend) Close() error {
	return nil
}

// localBackend wraps a llama-server runtime with the prompt pipeline:
// budget the prompt to the model's input window, generate, then
// sanitize the output against the budgeted prompt.
type localBackend struct {
	id          string
	runtime     *local.Runtime
	queryConfig *common.QueryConfig
	logger      arbor.ILogger
}

func newLocalBackend(id string, runtime *local.Runtime, queryConfig *common.QueryConfig, logger arbor.ILogger) *localBackend {
	return &localBackend{
		id:          id,
		runtime:     runtime,
		queryConfig: queryConfig,
		logger:      logger,
	}
}

func (b *localBackend) Generate(ctx context.Context, input string) models.GenerationResult {
	budgeted := prompt.Budget(input, b.queryConfig.MaxInputLength)
	if budgeted != input {
		b.logger.Debug().
			Str("backend", b.id).
			Int("original_length", len(input)).
			Int("budgeted_length", len(budgeted)).
			Msg("Prompt budgeted for local model")
	}

	output, err := b.runtime.Complete(ctx, budgeted, b.queryConfig.MaxNewTokens, b.queryConfig.Temperature)
	if err != nil {
		return models.GenerationFailure(err.Error())
	}

	return models.GenerationSuccess(sanitize.Response(output, budgeted))
}

func (b *localBackend) Name() string {
	return b.id
}

func (b *localBackend) Close() error {
	return b.runtime.Stop()
}
