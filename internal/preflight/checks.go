package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"lorekeeper/internal/config"
	"lorekeeper/internal/deps"
	"lorekeeper/internal/services/llm"
)

const openAICheckTimeout = 30 * time.Second

// CheckOpenAI verifies that the chat API is reachable and the key is valid.
// It makes a single request bounded by a 30-second timeout.
func CheckOpenAI(ctx context.Context, cfg *config.Config) Result {
	const name = "OpenAI API"
	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, openAICheckTimeout)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		Model:          cfg.Analysis.Model,
		MaxTokens:      20,
		TimeoutSeconds: int(openAICheckTimeout / time.Second),
	}, llm.WithStage("preflight"))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeAPIError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (model %s)", cfg.Analysis.Model)}
}

// CheckAPIKey reports whether an OpenAI key is configured without using it.
func CheckAPIKey(cfg *config.Config) Result {
	const name = "OpenAI API key"
	key := strings.TrimSpace(cfg.OpenAI.APIKey)
	if key == "" {
		return Result{Name: name, Detail: "not set; export OPENAI_API_KEY or set openai.api_key"}
	}
	return Result{Name: name, Passed: true, Detail: "configured (" + maskKey(key) + ")"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps locates and probes the encoder binaries. FFmpeg is required
// for compression; FFprobe only improves duration metadata.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []Result {
	timeout := time.Duration(cfg.Compression.ProbeTimeoutSeconds) * time.Second
	statuses := deps.Check(ctx, deps.Encoders(cfg.Compression.FFmpegBinary, cfg.Compression.FFprobeBinary), timeout)

	results := make([]Result, 0, len(statuses))
	for _, status := range statuses {
		result := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional, Detail: status.Detail}
		if status.Available {
			result.Detail = status.Version
		}
		results = append(results, result)
	}
	return results
}

// summarizeAPIError produces a human-readable summary for API health check failures.
func summarizeAPIError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "..." + key[len(key)-4:]
}
