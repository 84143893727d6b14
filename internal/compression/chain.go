package compression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"lorekeeper/internal/audio"
	"lorekeeper/internal/logging"
	"lorekeeper/internal/services"
)

// State is the position of a Chain run.
type State string

const (
	StatePlanned             State = "planned"
	StateNormalAttempted     State = "normal_attempted"
	StateAggressiveAttempted State = "aggressive_attempted"
	StateExtremeAttempted    State = "extreme_attempted"
	StateExhausted           State = "exhausted"
	StateSucceeded           State = "succeeded"
	// StateEscalationExhausted follows a failed manual escalation; nothing
	// further can be attempted.
	StateEscalationExhausted State = "escalation_exhausted"
)

// CanEscalate reports whether a manual escalation may start from s.
func (s State) CanEscalate() bool { return s == StateExhausted }

// Encoder is the subset of Executor the chain depends on.
type Encoder interface {
	Compress(ctx context.Context, req Request) Outcome
}

// Pass is one rung of the chain.
type Pass struct {
	Name     string
	State    State
	Settings Settings
}

// Attempt records one executed pass.
type Attempt struct {
	Pass    Pass
	Outcome Outcome
}

// Result is the terminal report of a chain run.
type Result struct {
	State    State
	Outcome  Outcome
	Attempts []Attempt
	// Remediation is operator guidance; set when State is exhausted.
	Remediation string
}

// Succeeded reports whether the chain produced an asset under the ceiling.
func (r Result) Succeeded() bool { return r.State == StateSucceeded }

// Chain sequences encoder passes until one fits under the transcription ceiling.
type Chain struct {
	encoder   Encoder
	workDir   string
	ceilingMB float64
	logger    *slog.Logger
}

// NewChain builds a chain writing candidates into workDir. An empty workDir
// places candidates next to the source.
func NewChain(encoder Encoder, workDir string, logger *slog.Logger) *Chain {
	return &Chain{
		encoder:   encoder,
		workDir:   workDir,
		ceilingMB: audio.CeilingMB,
		logger:    logging.NewComponentLogger(logger, "compression-chain"),
	}
}

// Passes lists the automatic passes Run would attempt for source, in order.
// Sources that need a codec change skip the aggressive rung.
func Passes(source audio.Asset) []Pass {
	size := source.SizeMB()
	passes := []Pass{{Name: "normal", State: StateNormalAttempted, Settings: Plan(size, source.Format)}}
	if !source.Format.RequiresConversion() {
		passes = append(passes, Pass{Name: "aggressive", State: StateAggressiveAttempted, Settings: AggressiveSettings(size, source.Format)})
	}
	return append(passes, Pass{Name: "extreme", State: StateExtremeAttempted, Settings: ExtremeSettings(size, source.Format)})
}

// Run compresses source through the automatic passes. The source file is never
// modified; at most one candidate exists on disk at any point and only a
// candidate under the ceiling survives the run.
func (c *Chain) Run(ctx context.Context, source audio.Asset) Result {
	return c.run(ctx, source, Passes(source), StateExhausted)
}

// Escalate grants one further manual attempt with the last-resort preset. It is
// only legal from StateExhausted.
func (c *Chain) Escalate(ctx context.Context, source audio.Asset, from State) Result {
	if !from.CanEscalate() {
		err := services.Wrap(services.ErrValidation, "compression", "escalate",
			fmt.Sprintf("manual escalation requires state %s, chain is %s", StateExhausted, from), nil)
		return Result{State: from, Outcome: failed(err, Settings{}, 0)}
	}
	pass := Pass{Name: "last-resort", State: StateExtremeAttempted, Settings: LastResortSettings(source.SizeMB(), source.Format)}
	return c.run(ctx, source, []Pass{pass}, StateEscalationExhausted)
}

func (c *Chain) run(ctx context.Context, source audio.Asset, passes []Pass, exhausted State) Result {
	logger := logging.WithContext(ctx, c.logger)
	result := Result{State: StatePlanned}
	var (
		current         *audio.Asset
		currentSettings Settings
	)

	for i, pass := range passes {
		outcome := c.encoder.Compress(ctx, Request{
			Source:   source,
			Settings: pass.Settings,
			Output:   c.candidatePath(source, pass),
		})
		result.State = pass.State
		result.Attempts = append(result.Attempts, Attempt{Pass: pass, Outcome: outcome})

		if !outcome.Succeeded {
			logging.WarnWithContext(logger, "compression pass failed", "compression_pass",
				logging.String("pass", pass.Name),
				logging.String("settings", pass.Settings.String()),
				logging.Error(outcome.Err),
				logging.String(logging.FieldImpact, "trying the next pass"),
			)
			if errors.Is(outcome.Err, services.ErrDependencyUnavailable) {
				logger.Info("compression chain aborted", logging.Args(logging.DecisionAttrs("compression_chain", "abort", "encoder unavailable")...)...)
				removeCandidate(current)
				result.State = exhausted
				result.Outcome = outcome
				result.Remediation = "ffmpeg is required to compress recordings over the upload limit; install it or compress the file manually."
				return result
			}
			continue
		}

		if current == nil || outcome.Asset.SizeBytes < current.SizeBytes {
			currentSettings = pass.Settings
		}
		current = keepSmaller(current, outcome.Asset, logger)
		if outcome.SizeMB() <= c.ceilingMB {
			result.State = StateSucceeded
			result.Outcome = outcome
			logger.Info("compression chain succeeded",
				logging.String("pass", pass.Name),
				logging.Float64("size_mb", round1(outcome.SizeMB())),
			)
			return result
		}

		reason := fmt.Sprintf("%.1f MB exceeds %.0f MB", outcome.SizeMB(), c.ceilingMB)
		next := "exhausted"
		if i+1 < len(passes) {
			next = passes[i+1].Name
		}
		logger.Info("compression pass over ceiling", logging.Args(logging.DecisionAttrs("compression_escalation", next, reason)...)...)
	}

	lastSizeMB := 0.0
	if current != nil {
		lastSizeMB = current.SizeMB()
	}
	removeCandidate(current)

	result.State = exhausted
	if lastSizeMB == 0 {
		// every pass failed to encode; surface the last encoder error
		last := result.Attempts[len(result.Attempts)-1].Outcome
		result.Remediation = "every compression pass failed; compress the file manually or check the encoder diagnostics."
		result.Outcome = last
		return result
	}
	result.Remediation = Remediation(source, lastSizeMB, currentSettings)
	if final := result.Attempts[len(result.Attempts)-1]; !final.Outcome.Succeeded {
		result.Remediation += fmt.Sprintf("\nThe %s pass (%s) failed: %s", final.Pass.Name, final.Pass.Settings, final.Outcome.Message)
	}
	err := services.Wrap(services.ErrStillTooLarge, "compression", "fallback chain", result.Remediation, nil)
	result.Outcome = failed(err, currentSettings, 0)
	return result
}

func (c *Chain) candidatePath(source audio.Asset, pass Pass) string {
	dir := c.workDir
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Dir(source.Path)
	}
	stem := strings.TrimSuffix(filepath.Base(source.Path), filepath.Ext(source.Path))
	target := pass.Settings.Target
	if target == "" {
		target = audio.FormatMP3
	}
	return filepath.Join(dir, fmt.Sprintf("%s.%s.%s", stem, pass.Name, target))
}

// keepSmaller returns whichever of current and next is smaller and deletes the
// other from disk.
func keepSmaller(current, next *audio.Asset, logger *slog.Logger) *audio.Asset {
	if current == nil {
		return next
	}
	if next.SizeBytes < current.SizeBytes {
		removeCandidate(current)
		return next
	}
	logger.Debug("discarding candidate that did not shrink",
		logging.String("candidate", next.Path),
		logging.Int64("candidate_bytes", next.SizeBytes),
		logging.Int64("current_bytes", current.SizeBytes),
	)
	removeCandidate(next)
	return current
}

func removeCandidate(a *audio.Asset) {
	if a != nil {
		_ = os.Remove(a.Path)
	}
}
