package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
	"github.com/ternarybob/responsum/internal/storage/badger"
)

// fakeEmbedding returns canned vectors keyed by input text
type fakeEmbedding struct {
	vectors   map[string][]float32
	available bool
	err       error
}

func (f *fakeEmbedding) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vec, ok := f.vectors[text]
	if !ok {
		return nil, errors.New("no canned vector for text")
	}
	return vec, nil
}

func (f *fakeEmbedding) GenerateQueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	return f.GenerateEmbedding(ctx, query)
}

func (f *fakeEmbedding) ModelName() string                    { return "fake" }
func (f *fakeEmbedding) Dimension() int                       { return 3 }
func (f *fakeEmbedding) IsAvailable(ctx context.Context) bool { return f.available }
func (f *fakeEmbedding) Close() error                         { return nil }

func setupChunkStorage(t *testing.T) interfaces.ChunkStorage {
	t.Helper()
	manager, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager.ChunkStorage()
}

func storeChunk(t *testing.T, storage interfaces.ChunkStorage, id, text, label string, embedding []float32) {
	t.Helper()
	require.NoError(t, storage.SaveChunk(&models.Chunk{
		ID:          id,
		DocumentID:  "doc-1",
		Text:        text,
		SourceLabel: label,
		Embedding:   embedding,
	}))
}

func TestSourceSearchRanksByScore(t *testing.T) {
	storage := setupChunkStorage(t)
	storeChunk(t, storage, "chunk-exact", "redis caching", "redis.md", []float32{1, 0, 0})
	storeChunk(t, storage, "chunk-close", "redis and memcached", "cache.md", []float32{0.7, 0.7, 0})
	storeChunk(t, storage, "chunk-far", "postgres tuning", "postgres.md", []float32{0, 1, 0})
	storeChunk(t, storage, "chunk-unembedded", "not indexed yet", "pending.md", nil)

	embedding := &fakeEmbedding{
		available: true,
		vectors:   map[string][]float32{"redis": {1, 0, 0}},
	}
	cfg := common.NewDefaultConfig()
	source := NewSource(storage, embedding, &cfg.Retrieval, arbor.NewLogger())

	matches, err := source.Search(context.Background(), "redis", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "chunk-exact", matches[0].Chunk.ID)
	assert.Equal(t, "chunk-close", matches[1].Chunk.ID)
	assert.InDelta(t, 1.0, matches[0].Score, 0.001)
	assert.True(t, matches[0].Score > matches[1].Score)
}

func TestSourceSearchEmptyIndex(t *testing.T) {
	storage := setupChunkStorage(t)
	embedding := &fakeEmbedding{
		available: true,
		vectors:   map[string][]float32{"anything": {1, 0, 0}},
	}
	cfg := common.NewDefaultConfig()
	source := NewSource(storage, embedding, &cfg.Retrieval, arbor.NewLogger())

	matches, err := source.Search(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Len(t, matches, 0)
}

func TestSourceSearchEmbeddingFailure(t *testing.T) {
	storage := setupChunkStorage(t)
	embedding := &fakeEmbedding{available: true, err: errors.New("embed server down")}
	cfg := common.NewDefaultConfig()
	source := NewSource(storage, embedding, &cfg.Retrieval, arbor.NewLogger())

	_, err := source.Search(context.Background(), "redis", 3)
	assert.Error(t, err)
}

func TestSourceSearchMinScoreFloor(t *testing.T) {
	storage := setupChunkStorage(t)
	storeChunk(t, storage, "chunk-exact", "redis caching", "redis.md", []float32{1, 0, 0})
	storeChunk(t, storage, "chunk-far", "postgres tuning", "postgres.md", []float32{0, 1, 0})

	embedding := &fakeEmbedding{
		available: true,
		vectors:   map[string][]float32{"redis": {1, 0, 0}},
	}
	cfg := common.NewDefaultConfig()
	cfg.Retrieval.MinScore = 0.5
	source := NewSource(storage, embedding, &cfg.Retrieval, arbor.NewLogger())

	matches, err := source.Search(context.Background(), "redis", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "chunk-exact", matches[0].Chunk.ID)
}

func TestSourceSearchCapsLimit(t *testing.T) {
	storage := setupChunkStorage(t)
	for i := 0; i < 5; i++ {
		storeChunk(t, storage, "chunk-"+string(rune('a'+i)), "text", "doc.md", []float32{1, 0, 0})
	}

	embedding := &fakeEmbedding{
		available: true,
		vectors:   map[string][]float32{"query": {1, 0, 0}},
	}
	cfg := common.NewDefaultConfig()
	cfg.Retrieval.MaxResultCount = 3
	source := NewSource(storage, embedding, &cfg.Retrieval, arbor.NewLogger())

	matches, err := source.Search(context.Background(), "query", 100)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestProviderSourceAvailability(t *testing.T) {
	storage := setupChunkStorage(t)
	embedding := &fakeEmbedding{available: false}
	cfg := common.NewDefaultConfig()
	provider := NewProvider(storage, embedding, &cfg.Retrieval, arbor.NewLogger())

	_, err := provider.Source(context.Background())
	assert.Error(t, err)

	embedding.available = true
	first, err := provider.Source(context.Background())
	require.NoError(t, err)

	second, err := provider.Source(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}
