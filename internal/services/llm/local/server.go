package local

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
)

// Server manages a single llama-server subprocess.
// SECURITY: the server binds to 127.0.0.1 only; no external access is
// possible.
type Server struct {
	binaryPath   string
	modelPath    string
	port         int
	embedding    bool
	contextSize  int
	threadCount  int
	gpuLayers    int
	readyTimeout time.Duration
	logger       arbor.ILogger

	cmd   *exec.Cmd
	ready bool
}

// NewCompletionServer configures a llama-server for chat completions.
// Larger models can take a while to load, so readiness waits up to a
// minute.
func NewCompletionServer(binaryPath, modelPath string, port, contextSize, threadCount, gpuLayers int, logger arbor.ILogger) *Server {
	return &Server{
		binaryPath:   binaryPath,
		modelPath:    modelPath,
		port:         port,
		embedding:    false,
		contextSize:  contextSize,
		threadCount:  threadCount,
		gpuLayers:    gpuLayers,
		readyTimeout: 60 * time.Second,
		logger:       logger,
	}
}

// NewEmbeddingServer configures a llama-server in embedding mode.
func NewEmbeddingServer(binaryPath, modelPath string, port, threadCount, gpuLayers int, logger arbor.ILogger) *Server {
	return &Server{
		binaryPath:   binaryPath,
		modelPath:    modelPath,
		port:         port,
		embedding:    true,
		threadCount:  threadCount,
		gpuLayers:    gpuLayers,
		readyTimeout: 30 * time.Second,
		logger:       logger,
	}
}

// URL returns the server's base URL
func (s *Server) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.port)
}

// Pid returns the managed process id, or 0 when not running
func (s *Server) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Ready reports whether the server passed its readiness check
func (s *Server) Ready() bool {
	return s.ready
}

func (s *Server) args() []string {
	if s.embedding {
		return []string{
			"-m", s.modelPath,
			"--embedding",
			"--host", "127.0.0.1", // SECURITY: localhost only
			"--port", strconv.Itoa(s.port),
			"-t", strconv.Itoa(s.threadCount),
			"-ngl", strconv.Itoa(s.gpuLayers),
			"-b", "4096", // Larger batch so long chunks embed in one pass
			"-ub", "4096",
			"--log-disable",
		}
	}
	return []string{
		"-m", s.modelPath,
		"--host", "127.0.0.1", // SECURITY: localhost only
		"--port", strconv.Itoa(s.port),
		"-c", strconv.Itoa(s.contextSize),
		"-t", strconv.Itoa(s.threadCount),
		"-ngl", strconv.Itoa(s.gpuLayers),
		"-b", "2048",
		"--log-disable",
	}
}

// Start launches the subprocess and blocks until it answers /health or
// the readiness timeout expires.
func (s *Server) Start() error {
	s.logger.Info().
		Str("model", s.modelPath).
		Str("url", s.URL()).
		Bool("embedding", s.embedding).
		Msg("Starting llama-server")

	cmd := exec.Command(s.binaryPath, s.args()...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start llama-server: %w", err)
	}
	s.cmd = cmd

	s.logger.Info().
		Int("pid", cmd.Process.Pid).
		Msg("llama-server started, waiting for ready")

	ctx, cancel := context.WithTimeout(context.Background(), s.readyTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return fmt.Errorf("llama-server on port %d did not become ready within %s", s.port, s.readyTimeout)
		case <-ticker.C:
			if s.checkHealth() {
				s.ready = true
				s.logger.Info().Int("port", s.port).Msg("llama-server is ready")
				return nil
			}
		}
	}
}

// checkHealth probes the /health endpoint
func (s *Server) checkHealth() bool {
	client := localhostClient(1 * time.Second)
	resp, err := client.Get(s.URL() + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Stop shuts the subprocess down, interrupt first, kill if it does not
// exit in time. Windows has no interrupt so it goes straight to kill.
func (s *Server) Stop() error {
	if s.cmd == nil || s.cmd.Process == nil {
		s.logger.Debug().Msg("llama-server not running, nothing to stop")
		return nil
	}

	pid := s.cmd.Process.Pid
	s.logger.Info().Int("pid", pid).Msg("Stopping llama-server")

	if !isWindows() {
		if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
			s.logger.Debug().
				Err(err).
				Int("pid", pid).
				Msg("Failed to send interrupt signal (expected on some platforms)")
		}
	}

	timeout := 2 * time.Second
	if isWindows() {
		timeout = 500 * time.Millisecond
	}

	done := make(chan error, 1)
	go func() {
		done <- s.cmd.Wait()
	}()

	var shutdownErr error
	select {
	case <-time.After(timeout):
		s.logger.Info().Int("pid", pid).Msg("Terminating llama-server")
		if err := s.cmd.Process.Kill(); err != nil {
			s.logger.Error().Err(err).Int("pid", pid).Msg("Failed to kill llama-server")
			shutdownErr = fmt.Errorf("failed to kill llama-server (pid %d): %w", pid, err)
		} else {
			s.logger.Info().Int("pid", pid).Msg("llama-server terminated")
		}
	case err := <-done:
		if err != nil && !isProcessExitError(err) {
			s.logger.Warn().Err(err).Int("pid", pid).Msg("llama-server exited with error")
			shutdownErr = fmt.Errorf("llama-server exit error (pid %d): %w", pid, err)
		} else {
			s.logger.Info().Int("pid", pid).Msg("llama-server stopped")
		}
	}

	s.ready = false
	return shutdownErr
}
