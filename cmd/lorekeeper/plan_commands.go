package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lorekeeper/internal/audio"
	"lorekeeper/internal/compression"
	"lorekeeper/internal/config"
	"lorekeeper/internal/deps"
	"lorekeeper/internal/fileutil"
	"lorekeeper/internal/media/ffprobe"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <session|file>",
		Short: "Show what processing would do to a recording",
		Long: `Show the size, the compression passes that would run, a rough processing
time and manual options. The argument is a session reference or a path to an
audio file that has not been added yet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := planTarget(cmd, ctx, args[0])
			if err != nil {
				return err
			}
			preview := compression.PreviewFor(asset)
			if ctx.jsonOutput() {
				return writeJSON(cmd, preview)
			}
			out := cmd.OutOrStdout()
			printPreview(out, asset, preview, shouldColorize(out))
			if line := probeSummary(cmd, ctx, asset.Path); line != "" {
				fmt.Fprintf(out, "\nStream:      %s\n", line)
			}
			return nil
		},
	}
}

// planTarget treats arg as a file when it exists on disk and as a session
// reference otherwise.
func planTarget(cmd *cobra.Command, ctx *commandContext, arg string) (audio.Asset, error) {
	if path, err := config.ExpandPath(arg); err == nil {
		if info, statErr := os.Stat(path); statErr == nil && !info.IsDir() {
			return audio.NewAsset(path)
		}
	}
	store, err := ctx.openStore()
	if err != nil {
		return audio.Asset{}, err
	}
	sess, err := store.Resolve(cmd.Context(), arg)
	if err != nil {
		return audio.Asset{}, err
	}
	return sess.Source, nil
}

// probeSummary describes the primary audio stream of path, or returns "" when
// ffprobe cannot read it.
func probeSummary(cmd *cobra.Command, ctx *commandContext, path string) string {
	cfg, err := ctx.ensureConfig()
	if err != nil || strings.TrimSpace(cfg.Compression.FFprobeBinary) == "" {
		return ""
	}
	probeCtx, cancel := context.WithTimeout(cmd.Context(), deps.DefaultProbeTimeout)
	defer cancel()
	result, err := ffprobe.Inspect(probeCtx, cfg.Compression.FFprobeBinary, path)
	if err != nil {
		return ""
	}
	stream, ok := result.PrimaryAudio()
	if !ok {
		return "no audio stream"
	}
	parts := []string{valueOr(stream.CodecName, "unknown codec")}
	if hz := stream.SampleRateHz(); hz > 0 {
		parts = append(parts, fmt.Sprintf("%d Hz", hz))
	}
	if stream.Channels > 0 {
		parts = append(parts, fmt.Sprintf("%d ch", stream.Channels))
	}
	if rate := result.BitRate(); rate > 0 {
		parts = append(parts, fmt.Sprintf("%d kbps", rate/1000))
	}
	if n := result.AudioStreamCount(); n > 1 {
		parts = append(parts, fmt.Sprintf("%d audio streams, the first is used", n))
	}
	return strings.Join(parts, ", ")
}

var passColumns = []column{
	{title: "Pass", numeric: true},
	{title: "Name"},
	{title: "Settings"},
	{title: "Estimate", numeric: true},
}

func printPreview(out io.Writer, asset audio.Asset, p compression.Preview, colorize bool) {
	for _, line := range renderSectionHeader(filepath.Base(asset.Path), colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Size:        %.1f MB (%s)\n", p.SizeMB, p.Format)
	fmt.Fprintf(out, "Processing:  about %s\n", p.EstimatedTime)
	if !p.NeedsCompression {
		fmt.Fprintln(out, renderStatusLine("Compression", statusOK, "not needed", colorize))
		return
	}
	fmt.Fprintln(out, renderStatusLine("Compression", statusWarn, p.Reason, colorize))

	rows := make([][]string, 0, len(p.Passes))
	for i, pass := range p.Passes {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			pass.Name,
			pass.Settings.String(),
			fmt.Sprintf("%.1f MB", pass.Settings.EstimatedSizeMB),
		})
	}
	fmt.Fprintln(out, renderTable(passColumns, rows))

	if a := p.Advice; a != nil {
		fmt.Fprintf(out, "\nManual options (expected reduction %s):\n", a.EstimatedReduction)
		for _, m := range a.Methods {
			fmt.Fprintf(out, "  - %s\n", m)
		}
		for _, c := range a.Commands {
			fmt.Fprintf(out, "  $ %s\n", c)
		}
	}
	if p.Split {
		fmt.Fprintf(out, "\nSplitting into %d parts of about %.0f MB also works.\n", p.Segments, compression.DefaultSegmentMB)
		for _, c := range compression.SplitCommands(asset.Path, asset.Duration, p.Segments) {
			fmt.Fprintf(out, "  $ %s\n", c)
		}
	}
}

func newCompressCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "compress <file>",
		Short: "Compress an audio file under the transcription limit without adding it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			source, err := audio.NewAsset(path)
			if err != nil {
				return err
			}
			if !source.ExceedsCeiling() && source.Format.TranscriptionReady() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is %.1f MB and needs no compression\n", filepath.Base(path), source.SizeMB())
				return nil
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			executor, err := ctx.newExecutor()
			if err != nil {
				return err
			}
			chain := compression.NewChain(executor, cfg.Paths.WorkDir, ctx.log())
			result := chain.Run(cmd.Context(), source)
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, compressReport(result)); err != nil {
					return err
				}
			}
			if !result.Succeeded() {
				if !ctx.jsonOutput() {
					fmt.Fprintln(cmd.OutOrStdout(), result.Outcome.Message)
					if result.Remediation != "" {
						fmt.Fprintln(cmd.OutOrStdout(), result.Remediation)
					}
				}
				return fmt.Errorf("compression %s", result.State)
			}

			target := strings.TrimSpace(output)
			if target == "" {
				target = strings.TrimSuffix(path, filepath.Ext(path)) + ".compressed" + filepath.Ext(result.Outcome.Asset.Path)
			}
			if err := moveFile(result.Outcome.Asset.Path, target); err != nil {
				return err
			}
			if !ctx.jsonOutput() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\nWrote %s\n", result.Outcome.Message, target)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default <name>.compressed.<ext> next to the input)")
	return cmd
}

type compressSummary struct {
	State       compression.State `json:"state"`
	Message     string            `json:"message"`
	SizeMB      float64           `json:"size_mb,omitempty"`
	Settings    string            `json:"settings,omitempty"`
	Attempts    int               `json:"attempts"`
	Remediation string            `json:"remediation,omitempty"`
}

func compressReport(r compression.Result) compressSummary {
	return compressSummary{
		State:       r.State,
		Message:     r.Outcome.Message,
		SizeMB:      r.Outcome.SizeMB(),
		Settings:    r.Outcome.Settings.String(),
		Attempts:    len(r.Attempts),
		Remediation: r.Remediation,
	}
}

// moveFile renames src to dst, copying across filesystems when needed.
func moveFile(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%s already exists", dst)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if _, err := fileutil.CopyVerified(src, dst); err != nil {
		return errors.Join(fmt.Errorf("move compressed file: %w", err), os.Remove(src))
	}
	return os.Remove(src)
}

