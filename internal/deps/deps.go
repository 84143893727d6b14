package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Tool is an external program Lorekeeper runs.
type Tool struct {
	Name     string
	Binary   string
	Purpose  string
	Optional bool
}

// Status reports whether a tool can be used.
type Status struct {
	Name      string
	Command   string
	Path      string
	Optional  bool
	Available bool
	Version   string
	Detail    string
}

// Encoders lists ffmpeg, which compression cannot run without, and ffprobe,
// which only fills in durations.
func Encoders(ffmpeg, ffprobe string) []Tool {
	return []Tool{
		{Name: "FFmpeg", Binary: ffmpeg, Purpose: "compresses recordings over the upload limit"},
		{Name: "FFprobe", Binary: ffprobe, Purpose: "reads recording durations", Optional: true},
	}
}

// Locate resolves each tool on PATH without running it.
func Locate(tools []Tool) []Status {
	results := make([]Status, 0, len(tools))
	for _, tool := range tools {
		status := Status{Name: tool.Name, Command: strings.TrimSpace(tool.Binary), Optional: tool.Optional}
		switch path, err := exec.LookPath(status.Command); {
		case status.Command == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
			if tool.Purpose != "" {
				status.Detail += "; it " + tool.Purpose
			}
		default:
			status.Path = path
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

// Check locates every tool and asks the ones it finds for their version.
func Check(ctx context.Context, tools []Tool, timeout time.Duration) []Status {
	located := Locate(tools)
	for i, status := range located {
		if !status.Available {
			continue
		}
		probed := ProbeVersion(ctx, status.Name, status.Command, timeout)
		probed.Path = status.Path
		probed.Optional = status.Optional
		located[i] = probed
	}
	return located
}
