package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
)

// mockEmbeddingDimension matches the nomic-embed family
const mockEmbeddingDimension = 768

// embeddingRequest is the llama-server embedding request body
type embeddingRequest struct {
	Content string `json:"content"`
}

// embeddingResponse is the object form of the embedding response
type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// batchEmbeddingResponse is the batch form with a nested vector array
type batchEmbeddingResponse struct {
	Index     int         `json:"index"`
	Embedding [][]float32 `json:"embedding"`
}

// EmbedServer wraps the shared embedding llama-server. One instance
// serves every ingest and retrieval embedding in the process.
// SECURITY: uses localhost HTTP only, no external network access.
type EmbedServer struct {
	server   *Server
	logger   arbor.ILogger
	mockMode bool
}

// NewEmbedServer starts the embedding llama-server and waits for it to
// become ready
func NewEmbedServer(llamaDir, modelPath string, port, threadCount, gpuLayers int, logger arbor.ILogger) (*EmbedServer, error) {
	binaryPath, err := FindServerBinary(llamaDir, logger)
	if err != nil {
		return nil, fmt.Errorf("llama-server binary not found: %w", err)
	}
	if err := VerifyModelFile(modelPath); err != nil {
		return nil, fmt.Errorf("model verification failed: %w", err)
	}

	server := NewEmbeddingServer(binaryPath, modelPath, port, threadCount, gpuLayers, logger)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("failed to start embedding server: %w", err)
	}

	logger.Info().
		Str("model", modelPath).
		Str("url", server.URL()).
		Msg("Embedding server initialized")

	return &EmbedServer{
		server: server,
		logger: logger,
	}, nil
}

// NewMockEmbedServer creates an embed server that fabricates vectors
// without a llama-server binary. For tests.
func NewMockEmbedServer(logger arbor.ILogger) *EmbedServer {
	logger.Warn().Msg("Created embedding server in MOCK mode - using fake vectors")
	return &EmbedServer{
		logger:   logger,
		mockMode: true,
	}
}

// Ready reports whether embeddings can be served
func (e *EmbedServer) Ready() bool {
	if e.mockMode {
		return true
	}
	return e.server != nil && e.server.Ready()
}

// Embed generates an embedding vector for the given text
func (e *EmbedServer) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.mockMode {
		return mockEmbedding(text), nil
	}

	if !e.Ready() {
		return nil, fmt.Errorf("embedding server not ready")
	}

	e.logger.Debug().
		Int("text_length", len(text)).
		Msg("Generating embedding")

	jsonData, err := json.Marshal(embeddingRequest{Content: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	client := localhostClient(30 * time.Second)
	req, err := http.NewRequestWithContext(ctx, "POST", e.server.URL()+"/embedding", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		e.logger.Error().Err(err).Msg("Embedding generation failed")
		return nil, fmt.Errorf("llama-server request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		e.logger.Error().
			Int("status_code", resp.StatusCode).
			Str("response", string(body)).
			Msg("Embedding server returned error")
		return nil, fmt.Errorf("llama-server returned status %d: %s", resp.StatusCode, string(body))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	embedding, err := parseEmbedding(bodyBytes)
	if err != nil {
		preview := len(bodyBytes)
		if preview > 200 {
			preview = 200
		}
		e.logger.Error().
			Err(err).
			Str("response_preview", string(bodyBytes[:preview])).
			Msg("Failed to parse embedding response in any known format")
		return nil, err
	}

	e.logger.Debug().
		Int("dimension", len(embedding)).
		Msg("Embedding generated")

	return embedding, nil
}

// parseEmbedding handles the three response shapes llama-server builds
// have used: an object {"embedding":[...]}, a bare array, and a batch
// [{"index":0,"embedding":[[...]]}].
func parseEmbedding(body []byte) ([]float32, error) {
	var obj embeddingResponse
	if err := json.Unmarshal(body, &obj); err == nil && len(obj.Embedding) > 0 {
		return obj.Embedding, nil
	}

	var flat []float32
	if err := json.Unmarshal(body, &flat); err == nil && len(flat) > 0 {
		return flat, nil
	}

	var batch []batchEmbeddingResponse
	if err := json.Unmarshal(body, &batch); err == nil && len(batch) > 0 {
		if len(batch[0].Embedding) > 0 && len(batch[0].Embedding[0]) > 0 {
			return batch[0].Embedding[0], nil
		}
		return nil, fmt.Errorf("batch embedding response has empty embedding array")
	}

	return nil, fmt.Errorf("failed to parse embedding JSON")
}

// mockEmbedding builds a deterministic vector from the text so tests
// get stable, comparable embeddings
func mockEmbedding(text string) []float32 {
	embedding := make([]float32, mockEmbeddingDimension)
	seed := 0
	for _, c := range text {
		seed += int(c)
	}

	for i := range embedding {
		embedding[i] = float32((seed+i)%100) / 100.0
	}

	return embedding
}

// Stop shuts down the embedding server
func (e *EmbedServer) Stop() error {
	if e.server == nil {
		return nil
	}
	return e.server.Stop()
}
