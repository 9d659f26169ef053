package llm

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
	"github.com/ternarybob/responsum/internal/services/llm/local"
)

// Registry constructs and caches generation backends keyed by wire
// identifier. Construction is lazy: a local backend's llama-server is
// not started until the first query that addresses it. A per-identifier
// lock serializes construction so concurrent first queries build
// exactly one instance, while different identifiers construct
// independently. Failed constructions are not cached and retry on the
// next request.
type Registry struct {
	config *common.Config
	hosted *HostedProvider
	logger arbor.ILogger

	mu       sync.Mutex
	backends map[string]interfaces.GenerationBackend
	locks    map[string]*sync.Mutex

	// buildLocal is swappable in tests to avoid llama-server startup
	buildLocal func(ctx context.Context, backendCfg *common.LocalBackendConfig) (interfaces.GenerationBackend, error)
}

// NewRegistry creates the backend registry
func NewRegistry(config *common.Config, hosted *HostedProvider, logger arbor.ILogger) *Registry {
	r := &Registry{
		config:   config,
		hosted:   hosted,
		logger:   logger,
		backends: make(map[string]interfaces.GenerationBackend),
		locks:    make(map[string]*sync.Mutex),
	}
	r.buildLocal = r.startLocalBackend
	return r
}

// Backend resolves a reference to a constructed backend, building it on
// first use
func (r *Registry) Backend(ctx context.Context, ref models.BackendRef) (interfaces.GenerationBackend, error) {
	key := ref.String()

	r.mu.Lock()
	if backend, ok := r.backends[key]; ok {
		r.mu.Unlock()
		return backend, nil
	}
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	// Another request may have finished construction while we waited
	r.mu.Lock()
	if backend, ok := r.backends[key]; ok {
		r.mu.Unlock()
		return backend, nil
	}
	r.mu.Unlock()

	backend, err := r.construct(ctx, ref)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.backends[key] = backend
	r.mu.Unlock()

	r.logger.Info().Str("backend", key).Msg("Generation backend constructed")
	return backend, nil
}

func (r *Registry) construct(ctx context.Context, ref models.BackendRef) (interfaces.GenerationBackend, error) {
	switch ref.Kind {
	case models.BackendLocal:
		backendCfg, ok := r.config.FindLocalBackend(ref.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrUnknownBackend, ref.Name)
		}
		return r.buildLocal(ctx, backendCfg)
	default:
		model := ref.Name
		if model == "" {
			model = r.hosted.DefaultModel()
		}
		return newHostedBackend(ref.String(), model, r.hosted), nil
	}
}

func (r *Registry) startLocalBackend(ctx context.Context, backendCfg *common.LocalBackendConfig) (interfaces.GenerationBackend, error) {
	modelPath := filepath.Join(r.config.Local.ModelDir, backendCfg.ChatModel)

	runtime, err := local.NewRuntime(
		backendCfg.ID,
		r.config.Local.LlamaDir,
		modelPath,
		backendCfg.Port,
		r.config.Local.ContextSize,
		r.config.Local.ThreadCount,
		r.config.Local.GPULayers,
		r.logger,
	)
	if err != nil {
		return nil, fmt.Errorf("local backend %s failed to load: %w", backendCfg.ID, err)
	}

	return newLocalBackend(backendCfg.ID, runtime, &r.config.Query, r.logger), nil
}

// List describes every addressable backend for the models catalog
func (r *Registry) List() []models.BackendInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := []models.BackendInfo{}

	_, defaultReady := r.backends[models.DefaultBackendIdentifier]
	infos = append(infos, models.BackendInfo{
		ID:    models.DefaultBackendIdentifier,
		Kind:  string(models.BackendHosted),
		Model: r.hosted.DefaultModel(),
		Ready: defaultReady,
	})

	for _, model := range []string{r.config.Gemini.Model, r.config.Claude.Model} {
		if model == "" {
			continue
		}
		_, ready := r.backends[model]
		infos = append(infos, models.BackendInfo{
			ID:    model,
			Kind:  string(models.BackendHosted),
			Model: model,
			Ready: ready,
		})
	}

	for _, backendCfg := range r.config.Local.Backends {
		_, ready := r.backends[backendCfg.ID]
		infos = append(infos, models.BackendInfo{
			ID:    backendCfg.ID,
			Kind:  string(models.BackendLocal),
			Model: backendCfg.ChatModel,
			Ready: ready,
		})
	}

	return infos
}

// Close shuts down every constructed backend and the hosted provider
func (r *Registry) Close() error {
	r.mu.Lock()
	backends := r.backends
	r.backends = make(map[string]interfaces.GenerationBackend)
	r.mu.Unlock()

	var errs []error
	for key, backend := range backends {
		if err := backend.Close(); err != nil {
			r.logger.Error().Err(err).Str("backend", key).Msg("Error closing backend")
			errs = append(errs, err)
		}
	}

	if err := r.hosted.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry shutdown had %d errors: %v", len(errs), errs)
	}
	return nil
}
