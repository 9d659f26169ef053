package local

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// FindServerBinary locates the llama-server binary in the configured
// directory or standard locations
func FindServerBinary(llamaDir string, logger arbor.ILogger) (string, error) {
	const binaryName = "llama-server"

	locations := []string{}
	if llamaDir != "" {
		locations = append(locations, llamaDir+"/"+binaryName)
		locations = append(locations, llamaDir+"/"+binaryName+".exe")
	}
	locations = append(locations,
		"./bin/"+binaryName,
		"./bin/"+binaryName+".exe",
		"./"+binaryName,
		"./"+binaryName+".exe",
		binaryName, // PATH lookup
	)

	for _, location := range locations {
		path, err := exec.LookPath(location)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		logger.Debug().
			Str("location", location).
			Str("resolved_path", path).
			Msg("Found llama-server binary")
		return path, nil
	}

	return "", fmt.Errorf("%s not found in: %v", binaryName, locations)
}

// VerifyModelFile checks that a GGUF model file exists and is non-empty
func VerifyModelFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", path)
	}
	if err != nil {
		return fmt.Errorf("cannot access model file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("model path is a directory: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("model file is empty: %s", path)
	}
	return nil
}

// localhostClient builds an HTTP client whose transport refuses any
// connection that is not to the local machine.
// SECURITY: all llama-server traffic stays on 127.0.0.1.
func localhostClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				if !strings.HasPrefix(addr, "127.0.0.1:") && !strings.HasPrefix(addr, "localhost:") {
					return nil, fmt.Errorf("security violation: attempt to connect to non-localhost address: %s", addr)
				}
				return (&net.Dialer{}).DialContext(ctx, network, addr)
			},
		},
	}
}

// CleanupOrphanedProcesses finds and kills llama-server processes left
// over from previous runs. PIDs in keep are skipped. Call once at
// startup, before any managed server exists.
func CleanupOrphanedProcesses(keep map[int]bool, logger arbor.ILogger) error {
	logger.Debug().Msg("Searching for orphaned llama-server processes")

	if isWindows() {
		return cleanupOrphansWindows(keep, logger)
	}
	return cleanupOrphansUnix(keep, logger)
}

func cleanupOrphansUnix(keep map[int]bool, logger arbor.ILogger) error {
	output, err := exec.Command("pgrep", "llama-server").Output()
	if err != nil {
		// pgrep exits non-zero when nothing matches
		logger.Debug().Msg("No orphaned llama-server processes found")
		return nil
	}

	killedCount := 0
	for _, pidStr := range strings.Fields(string(output)) {
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			continue
		}
		if keep[pid] {
			logger.Debug().Int("pid", pid).Msg("Skipping managed process")
			continue
		}

		logger.Warn().Int("pid", pid).Msg("Found orphaned llama-server process, killing")
		if err := exec.Command("kill", "-9", strconv.Itoa(pid)).Run(); err != nil {
			logger.Debug().
				Err(err).
				Int("pid", pid).
				Msg("Failed to kill orphaned process (may have already exited)")
		} else {
			killedCount++
		}
	}

	if killedCount > 0 {
		logger.Info().Int("count", killedCount).Msg("Cleaned up orphaned llama-server processes")
	} else {
		logger.Debug().Msg("No orphaned llama-server processes found")
	}
	return nil
}

func cleanupOrphansWindows(keep map[int]bool, logger arbor.ILogger) error {
	output, err := exec.Command("tasklist", "/FI", "IMAGENAME eq llama-server.exe", "/NH").Output()
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to list processes (non-critical)")
		return nil
	}

	killedCount := 0
	for _, line := range strings.Split(string(output), "\n") {
		if !strings.Contains(line, "llama-server.exe") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		if keep[pid] {
			logger.Debug().Int("pid", pid).Msg("Skipping managed process")
			continue
		}

		logger.Warn().Int("pid", pid).Msg("Found orphaned llama-server process, killing")
		if err := exec.Command("taskkill", "/F", "/PID", fields[1]).Run(); err != nil {
			// Exit status 128 means the process was already gone
			if !strings.Contains(err.Error(), "exit status 128") {
				logger.Debug().
					Err(err).
					Int("pid", pid).
					Msg("Failed to kill orphaned process (may have already exited)")
			}
		} else {
			killedCount++
		}
	}

	if killedCount > 0 {
		logger.Info().Int("count", killedCount).Msg("Cleaned up orphaned llama-server processes")
	} else {
		logger.Debug().Msg("No orphaned llama-server processes found")
	}
	return nil
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return os.PathSeparator == '\\' && os.PathListSeparator == ';'
}

// isProcessExitError returns true if the error is a normal process exit
func isProcessExitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "signal: killed") ||
		strings.Contains(errStr, "exit status 0")
}
