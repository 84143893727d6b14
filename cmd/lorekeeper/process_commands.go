package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lorekeeper/internal/compression"
	"lorekeeper/internal/httpapi"
	"lorekeeper/internal/services"
	"lorekeeper/internal/session"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "process [session]",
		Short: "Compress, transcribe and analyze a session",
		Long: `Run a session through the pipeline: compression when the recording is
over the 25 MB transcription limit or in a format the service rejects,
then transcription and analysis. Completed sessions are left untouched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("pass a session or --all")
			}
			return ctx.withStore(func(store *session.Store) error {
				orchestrator, err := ctx.newOrchestrator(store)
				if err != nil {
					return err
				}
				if !all {
					sess, err := store.Resolve(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return runAndReport(cmd, ctx, orchestrator.Process, sess.ID)
				}

				pending, err := store.List(cmd.Context(), session.StatusUploaded)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No uploaded sessions to process")
					return nil
				}
				failed := 0
				for _, sess := range pending {
					if err := runAndReport(cmd, ctx, orchestrator.Process, sess.ID); err != nil {
						if cmd.Context().Err() != nil {
							return err
						}
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d sessions failed", failed, len(pending))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Process every uploaded session in order")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var resetOnly bool

	cmd := &cobra.Command{
		Use:   "retry <session>",
		Short: "Clear a failed session and process it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *session.Store) error {
				sess, err := store.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if sess.Status != session.StatusError {
					return fmt.Errorf("session %d is %s; only failed sessions can be retried", sess.Number, sess.Status)
				}
				if err := store.Retry(cmd.Context(), sess.ID); err != nil {
					return err
				}
				if resetOnly {
					fmt.Fprintf(cmd.OutOrStdout(), "Session %d reset to %s\n", sess.Number, session.StatusUploaded)
					return nil
				}
				orchestrator, err := ctx.newOrchestrator(store)
				if err != nil {
					return err
				}
				return runAndReport(cmd, ctx, orchestrator.Process, sess.ID)
			})
		},
	}
	cmd.Flags().BoolVar(&resetOnly, "reset-only", false, "Reset the session without processing it")
	return cmd
}

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "recover [session]",
		Short: "Mark sessions stuck in transcribing or analyzing as interrupted",
		Long: `Mark sessions left in transcribing or analyzing by a crashed or killed
run as failed with kind "interrupted" so they can be retried. Do not run it
while another process is working on the session.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("pass a session or --all")
			}
			return ctx.withStore(func(store *session.Store) error {
				var targets []*session.Session
				if all {
					stuck, err := store.List(cmd.Context(), session.StatusTranscribing, session.StatusAnalyzing)
					if err != nil {
						return err
					}
					targets = stuck
				} else {
					sess, err := store.Resolve(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					targets = []*session.Session{sess}
				}

				out := cmd.OutOrStdout()
				if len(targets) == 0 {
					fmt.Fprintln(out, "No stuck sessions")
					return nil
				}
				for _, sess := range targets {
					recovered, err := store.Recover(cmd.Context(), sess.ID)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Session %d marked %s (%s)\n", recovered.Number, recovered.Status, recovered.ErrorKind)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Recover every stuck session")
	return cmd
}

func newEscalateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "escalate <session>",
		Short: "Try the last-resort compression on a session that is still too large",
		Long: `Run one more compression pass at 8 kbps mono 8000 Hz on a session whose
automatic compression was exhausted. Speech stays intelligible for most
recordings, but quality drops sharply. Escalation is allowed once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *session.Store) error {
				sess, err := store.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				orchestrator, err := ctx.newOrchestrator(store)
				if err != nil {
					return err
				}
				return runAndReport(cmd, ctx, orchestrator.Escalate, sess.ID)
			})
		},
	}
}

type pipelineStep func(ctx context.Context, id string) (*session.Session, error)

// runAndReport runs step for id and prints the outcome.
func runAndReport(cmd *cobra.Command, ctx *commandContext, step pipelineStep, id string) error {
	sess, err := step(cmd.Context(), id)
	if err != nil {
		return reportFailure(cmd, ctx, sess, err)
	}
	if ctx.jsonOutput() {
		return writeJSON(cmd, httpapi.FromSession(sess, false))
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %d %s: %s\n", sess.Number, colorStatus(sess.Status, shouldColorize(out)), sess.DisplayTitle())
	if sess.Analysis != nil && sess.Analysis.TLDRSummary != "" {
		fmt.Fprintf(out, "  %s\n", sess.Analysis.TLDRSummary)
	}
	return nil
}

// reportFailure prints the persisted failure of sess and returns a short
// error for the exit status.
func reportFailure(cmd *cobra.Command, ctx *commandContext, sess *session.Session, err error) error {
	if sess == nil {
		return err
	}
	if ctx.jsonOutput() {
		view := httpapi.FromSession(sess, false)
		_ = writeJSON(cmd, httpapi.ErrorResponse{Error: err.Error(), Kind: services.Kind(err), Session: &view})
		return fmt.Errorf("session %d failed: %s", sess.Number, services.Kind(err))
	}
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderStatusLine(fmt.Sprintf("Session %d", sess.Number), statusError, services.Kind(err), colorize))
	if sess.Status == session.StatusError && sess.ErrorMessage != "" {
		fmt.Fprintln(out, sess.ErrorMessage)
	} else {
		fmt.Fprintln(out, err.Error())
	}
	if sess.ErrorKind == services.KindStillTooLarge && compression.State(sess.CompressionState).CanEscalate() {
		fmt.Fprintf(out, "Run `lorekeeper escalate %d` to try the last-resort preset once.\n", sess.Number)
	}
	return fmt.Errorf("session %d failed: %s", sess.Number, services.Kind(err))
}
