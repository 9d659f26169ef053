package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// completionRequest is the llama-server chat completion request body
type completionRequest struct {
	Messages    []completionMessage `json:"messages"`
	Temperature float32             `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Stream      bool                `json:"stream"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionResponse is the llama-server chat completion response body
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Runtime drives the llama-server for one local backend. Construction
// starts the subprocess and blocks until it is ready; Stop shuts it
// down.
// SECURITY: guarantees 100% local operation with no external network
// calls.
type Runtime struct {
	id         string
	binaryPath string
	modelPath  string
	server     *Server
	logger     arbor.ILogger
	mockMode   bool

	healthMu     sync.RWMutex
	healthStatus error
	healthTime   time.Time

	stopHealth chan struct{}
}

// NewRuntime starts a llama-server for the given backend and waits for
// it to become ready
func NewRuntime(id, llamaDir, modelPath string, port, contextSize, threadCount, gpuLayers int, logger arbor.ILogger) (*Runtime, error) {
	binaryPath, err := FindServerBinary(llamaDir, logger)
	if err != nil {
		return nil, fmt.Errorf("llama-server binary not found: %w", err)
	}
	if err := VerifyModelFile(modelPath); err != nil {
		return nil, fmt.Errorf("model verification failed: %w", err)
	}

	server := NewCompletionServer(binaryPath, modelPath, port, contextSize, threadCount, gpuLayers, logger)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("failed to start completion server: %w", err)
	}

	r := &Runtime{
		id:         id,
		binaryPath: binaryPath,
		modelPath:  modelPath,
		server:     server,
		logger:     logger,
		stopHealth: make(chan struct{}),
	}

	r.refreshHealth(context.Background())
	go r.healthUpdater()

	logger.Info().
		Str("backend", id).
		Str("model", modelPath).
		Str("url", server.URL()).
		Int("context_size", contextSize).
		Msg("Local runtime initialized")

	return r, nil
}

// NewMockRuntime creates a runtime that fabricates responses without a
// llama-server binary or model files. For tests.
func NewMockRuntime(id string, logger arbor.ILogger) *Runtime {
	logger.Warn().Str("backend", id).Msg("Created local runtime in MOCK mode - using fake responses")
	return &Runtime{
		id:         id,
		logger:     logger,
		mockMode:   true,
		stopHealth: make(chan struct{}),
	}
}

// ID returns the backend identifier this runtime serves
func (r *Runtime) ID() string {
	return r.id
}

// Ready reports whether completions can be served
func (r *Runtime) Ready() bool {
	if r.mockMode {
		return true
	}
	return r.server != nil && r.server.Ready()
}

// Complete generates a completion for a single prompt
func (r *Runtime) Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	if r.mockMode {
		return fmt.Sprintf("Mock response to: %s", prompt), nil
	}

	if !r.Ready() {
		return "", fmt.Errorf("completion server not ready")
	}

	r.logger.Debug().
		Str("backend", r.id).
		Int("prompt_length", len(prompt)).
		Msg("Generating completion")

	reqBody := completionRequest{
		Messages: []completionMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      false,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	client := localhostClient(240 * time.Second)
	req, err := http.NewRequestWithContext(ctx, "POST", r.server.URL()+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		r.logger.Error().Err(err).Str("backend", r.id).Msg("Completion request failed")
		return "", fmt.Errorf("llama-server request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		r.logger.Error().
			Int("status_code", resp.StatusCode).
			Str("response", string(body)).
			Msg("Completion server returned error")
		return "", fmt.Errorf("llama-server returned status %d: %s", resp.StatusCode, string(body))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var completion completionResponse
	if err := json.Unmarshal(bodyBytes, &completion); err != nil {
		preview := len(bodyBytes)
		if preview > 200 {
			preview = 200
		}
		r.logger.Error().
			Err(err).
			Str("response", string(bodyBytes[:preview])).
			Msg("Failed to parse completion response")
		return "", fmt.Errorf("failed to parse completion JSON: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}

	text := completion.Choices[0].Message.Content
	r.logger.Debug().
		Str("backend", r.id).
		Int("response_length", len(text)).
		Msg("Completion generated")

	return text, nil
}

// Healthy returns the cached health status. A background goroutine
// refreshes the cache every 60 seconds so queries never pay for the
// check.
func (r *Runtime) Healthy(ctx context.Context) error {
	if r.mockMode {
		return nil
	}

	r.healthMu.RLock()
	defer r.healthMu.RUnlock()
	return r.healthStatus
}

func (r *Runtime) refreshHealth(ctx context.Context) {
	r.logger.Trace().Str("backend", r.id).Msg("Refreshing health check cache")

	var err error

	info, statErr := os.Stat(r.binaryPath)
	if statErr != nil {
		err = fmt.Errorf("llama-server binary not accessible: %w", statErr)
	} else if info.IsDir() {
		err = fmt.Errorf("llama-server path is a directory: %s", r.binaryPath)
	}

	if err == nil {
		if verifyErr := VerifyModelFile(r.modelPath); verifyErr != nil {
			err = fmt.Errorf("model verification failed: %w", verifyErr)
		}
	}

	if err == nil {
		cmd := exec.CommandContext(ctx, r.binaryPath, "--version")
		output, versionErr := cmd.CombinedOutput()
		if versionErr != nil {
			r.logger.Debug().
				Err(versionErr).
				Str("output", string(output)).
				Msg("Failed to get llama-server version")
			err = fmt.Errorf("llama-server binary not functional: %w", versionErr)
		} else {
			r.logger.Trace().
				Str("version", strings.TrimSpace(string(output))).
				Msg("Health check passed")
		}
	}

	r.healthMu.Lock()
	r.healthStatus = err
	r.healthTime = time.Now()
	r.healthMu.Unlock()

	if err != nil {
		r.logger.Info().Err(err).Str("backend", r.id).Msg("Local runtime health check failed")
	}
}

func (r *Runtime) healthUpdater() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopHealth:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			r.refreshHealth(ctx)
			cancel()
		}
	}
}

// Stop shuts down the completion server and the health updater
func (r *Runtime) Stop() error {
	r.logger.Info().Str("backend", r.id).Msg("Stopping local runtime")

	select {
	case <-r.stopHealth:
	default:
		close(r.stopHealth)
	}

	if r.server == nil {
		return nil
	}
	return r.server.Stop()
}
