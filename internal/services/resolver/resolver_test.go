package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
)

type fakeSource struct {
	chunks    []models.RetrievedChunk
	err       error
	lastLimit int
}

func (f *fakeSource) Search(ctx context.Context, query string, limit int) ([]models.RetrievedChunk, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

type fakeProvider struct {
	source interfaces.RetrievalSource
	err    error
}

func (f *fakeProvider) Source(ctx context.Context) (interfaces.RetrievalSource, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.source, nil
}

type fakeBackend struct {
	result     models.GenerationResult
	calls      int
	lastPrompt string
}

func (f *fakeBackend) Generate(ctx context.Context, prompt string) models.GenerationResult {
	f.calls++
	f.lastPrompt = prompt
	return f.result
}

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) Close() error { return nil }

type fakeRegistry struct {
	backend interfaces.GenerationBackend
	err     error
}

func (f *fakeRegistry) Backend(ctx context.Context, ref models.BackendRef) (interfaces.GenerationBackend, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.backend, nil
}

func (f *fakeRegistry) List() []models.BackendInfo { return nil }
func (f *fakeRegistry) Close() error               { return nil }

func retrievedChunk(text, label string) models.RetrievedChunk {
	return models.RetrievedChunk{
		Chunk: &models.Chunk{Text: text, SourceLabel: label},
		Score: 0.9,
	}
}

func newTestService(provider interfaces.RetrievalProvider, registry interfaces.BackendRegistry) *Service {
	cfg := common.NewDefaultConfig()
	return NewService(provider, registry, nil, &cfg.Query, arbor.NewLogger())
}

func TestResolveNoVectorStore(t *testing.T) {
	backend := &fakeBackend{result: models.GenerationSuccess("Paris is the capital.")}
	provider := &fakeProvider{err: errors.New("store offline")}
	service := newTestService(provider, &fakeRegistry{backend: backend})

	answer, err := service.Resolve(context.Background(), "What is the capital of France?", 3, models.ParseBackendRef("hosted"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if answer.Text != "Paris is the capital." {
		t.Errorf("Text = %q, want generated text", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != models.SourceNoVectorStore {
		t.Errorf("Sources = %v, want [%q]", answer.Sources, models.SourceNoVectorStore)
	}
	if backend.calls != 1 {
		t.Errorf("backend invoked %d times, want 1", backend.calls)
	}
	if strings.Contains(backend.lastPrompt, "context") {
		t.Errorf("prompt %q should not carry a context block", backend.lastPrompt)
	}
	if !strings.Contains(backend.lastPrompt, "What is the capital of France?") {
		t.Errorf("prompt %q missing the question", backend.lastPrompt)
	}
}

func TestResolveNoRelevantDocuments(t *testing.T) {
	backend := &fakeBackend{result: models.GenerationSuccess("No idea.")}
	provider := &fakeProvider{source: &fakeSource{}}
	service := newTestService(provider, &fakeRegistry{backend: backend})

	answer, err := service.Resolve(context.Background(), "Anything about unicorns?", 3, models.ParseBackendRef("hosted"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(answer.Sources) != 1 || answer.Sources[0] != models.SourceNoDocuments {
		t.Errorf("Sources = %v, want [%q]", answer.Sources, models.SourceNoDocuments)
	}
	if backend.calls != 1 {
		t.Errorf("backend invoked %d times, want 1", backend.calls)
	}
}

func TestResolveWithContext(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		wantMarker string
	}{
		{"hosted backend", "hosted", "Q: What uses port 6379?"},
		{"local backend", "local-gpt2", "Question: What uses port 6379?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{result: models.GenerationSuccess("Redis does.")}
			provider := &fakeProvider{source: &fakeSource{chunks: []models.RetrievedChunk{
				retrievedChunk("Redis listens on port 6379.", "doc1.pdf"),
				retrievedChunk("Memcached listens on port 11211.", "doc2.pdf"),
			}}}
			service := newTestService(provider, &fakeRegistry{backend: backend})

			answer, err := service.Resolve(context.Background(), "What uses port 6379?", 2, models.ParseBackendRef(tt.identifier))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}

			if answer.Text != "Redis does." {
				t.Errorf("Text = %q, want generated text", answer.Text)
			}
			wantSources := []string{"doc1.pdf", "doc2.pdf"}
			if len(answer.Sources) != len(wantSources) {
				t.Fatalf("Sources = %v, want %v", answer.Sources, wantSources)
			}
			for i, want := range wantSources {
				if answer.Sources[i] != want {
					t.Errorf("Sources[%d] = %q, want %q", i, answer.Sources[i], want)
				}
			}

			wantContext := "Redis listens on port 6379.\n\nMemcached listens on port 11211."
			if !strings.Contains(backend.lastPrompt, wantContext) {
				t.Errorf("prompt %q missing chunks joined in retrieval order", backend.lastPrompt)
			}
			if !strings.Contains(backend.lastPrompt, tt.wantMarker) {
				t.Errorf("prompt %q missing marker %q", backend.lastPrompt, tt.wantMarker)
			}
		})
	}
}

func TestResolveGenerationFailure(t *testing.T) {
	backend := &fakeBackend{result: models.GenerationFailure("model exploded")}
	provider := &fakeProvider{source: &fakeSource{chunks: []models.RetrievedChunk{
		retrievedChunk("Some context.", "doc.pdf"),
	}}}
	service := newTestService(provider, &fakeRegistry{backend: backend})

	answer, err := service.Resolve(context.Background(), "Why?", 1, models.ParseBackendRef("hosted"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if answer.Text != "Error: model exploded" {
		t.Errorf("Text = %q, want error text", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != models.SourceError {
		t.Errorf("Sources = %v, want [%q]", answer.Sources, models.SourceError)
	}
}

func TestResolveSearchFailure(t *testing.T) {
	backend := &fakeBackend{result: models.GenerationSuccess("never reached")}
	provider := &fakeProvider{source: &fakeSource{err: errors.New("index corrupted")}}
	service := newTestService(provider, &fakeRegistry{backend: backend})

	answer, err := service.Resolve(context.Background(), "Why?", 1, models.ParseBackendRef("hosted"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if answer.Text != "Error: index corrupted" {
		t.Errorf("Text = %q, want search error text", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != models.SourceError {
		t.Errorf("Sources = %v, want [%q]", answer.Sources, models.SourceError)
	}
	if backend.calls != 0 {
		t.Errorf("backend invoked %d times after search failure, want 0", backend.calls)
	}
}

func TestResolveUnknownBackend(t *testing.T) {
	wrapped := fmt.Errorf("%w: local-missing", interfaces.ErrUnknownBackend)
	provider := &fakeProvider{source: &fakeSource{}}
	service := newTestService(provider, &fakeRegistry{err: wrapped})

	answer, err := service.Resolve(context.Background(), "Why?", 1, models.ParseBackendRef("local-missing"))
	if answer != nil {
		t.Errorf("Resolve() answer = %v, want nil for unknown backend", answer)
	}
	if !errors.Is(err, interfaces.ErrUnknownBackend) {
		t.Errorf("error = %v, want ErrUnknownBackend", err)
	}
}

func TestResolveBackendLoadFailure(t *testing.T) {
	provider := &fakeProvider{source: &fakeSource{}}
	service := newTestService(provider, &fakeRegistry{err: errors.New("local backend local-gpt2 failed to load: no model file")})

	answer, err := service.Resolve(context.Background(), "Why?", 1, models.ParseBackendRef("local-gpt2"))
	if err != nil {
		t.Fatalf("Resolve() error = %v, want load failure folded into the answer", err)
	}

	if !strings.HasPrefix(answer.Text, "Error: ") {
		t.Errorf("Text = %q, want error prefix", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != models.SourceError {
		t.Errorf("Sources = %v, want [%q]", answer.Sources, models.SourceError)
	}
}

func TestResolveDefaultResultCount(t *testing.T) {
	backend := &fakeBackend{result: models.GenerationSuccess("ok")}
	source := &fakeSource{}
	service := newTestService(&fakeProvider{source: source}, &fakeRegistry{backend: backend})

	_, err := service.Resolve(context.Background(), "Why?", 0, models.ParseBackendRef("hosted"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	cfg := common.NewDefaultConfig()
	if source.lastLimit != cfg.Query.DefaultResultCount {
		t.Errorf("search limit = %d, want default %d", source.lastLimit, cfg.Query.DefaultResultCount)
	}
}

func TestResolveUnlabeledChunk(t *testing.T) {
	backend := &fakeBackend{result: models.GenerationSuccess("ok")}
	provider := &fakeProvider{source: &fakeSource{chunks: []models.RetrievedChunk{
		retrievedChunk("Orphaned text.", ""),
	}}}
	service := newTestService(provider, &fakeRegistry{backend: backend})

	answer, err := service.Resolve(context.Background(), "Why?", 1, models.ParseBackendRef("hosted"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(answer.Sources) != 1 || answer.Sources[0] != "Unknown" {
		t.Errorf("Sources = %v, want [\"Unknown\"]", answer.Sources)
	}
}
