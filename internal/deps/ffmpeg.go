package deps

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds the version query used as an availability check.
const DefaultProbeTimeout = 10 * time.Second

var commandContext = exec.CommandContext

// ProbeVersion runs `<binary> -version` and reports whether the tool answers
// within timeout. The first output line is captured as the version string.
func ProbeVersion(ctx context.Context, name, binary string, timeout time.Duration) Status {
	status := Status{Name: name, Command: strings.TrimSpace(binary)}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := commandContext(probeCtx, status.Command, "-version").CombinedOutput()
	if err != nil {
		switch {
		case errors.Is(probeCtx.Err(), context.DeadlineExceeded):
			status.Detail = fmt.Sprintf("%s -version did not answer within %s", status.Command, timeout)
		case errors.Is(err, exec.ErrNotFound):
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		default:
			status.Detail = fmt.Sprintf("%s -version failed: %v", status.Command, err)
		}
		return status
	}

	status.Available = true
	line, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n")
	status.Version = strings.TrimSpace(line)
	return status
}
