package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lorekeeper/internal/export"
	"lorekeeper/internal/httpapi"
	"lorekeeper/internal/ingest"
	"lorekeeper/internal/session"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var title, date string
	var process bool

	cmd := &cobra.Command{
		Use:   "add <recording>...",
		Short: "Add session recordings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var recordedAt time.Time
			if strings.TrimSpace(date) != "" {
				parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(date))
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				recordedAt = parsed
			}
			if title != "" && len(args) > 1 {
				return errors.New("--title applies to a single recording")
			}

			return ctx.withStore(func(store *session.Store) error {
				cfg, _ := ctx.ensureConfig()
				ingester := ingest.New(cfg, store, ctx.log())
				var added []*session.Session
				for _, path := range args {
					sess, err := ingester.Ingest(cmd.Context(), ingest.Request{Path: path, Title: title, RecordedAt: recordedAt})
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					added = append(added, sess)
				}

				if process {
					orchestrator, err := ctx.newOrchestrator(store)
					if err != nil {
						return err
					}
					for i, sess := range added {
						updated, err := orchestrator.Process(cmd.Context(), sess.ID)
						if updated != nil {
							added[i] = updated
						}
						if err != nil {
							return reportFailure(cmd, ctx, updated, err)
						}
					}
				}

				if ctx.jsonOutput() {
					views := make([]httpapi.Session, 0, len(added))
					for _, sess := range added {
						views = append(views, httpapi.FromSession(sess, false))
					}
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				for _, sess := range added {
					fmt.Fprintf(out, "Session %d added (%s, %s) status %s\n",
						sess.Number, sess.OriginalName, formatSizeMB(sess.Source.SizeBytes), sess.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Session title")
	cmd.Flags().StringVarP(&date, "date", "d", "", "Recording date (YYYY-MM-DD)")
	cmd.Flags().BoolVarP(&process, "process", "p", false, "Process the recordings right away")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *session.Store) error {
				sessions, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					views := make([]httpapi.Session, 0, len(sessions))
					for _, sess := range sessions {
						views = append(views, httpapi.FromSession(sess, false))
					}
					return writeJSON(cmd, views)
				}

				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(sessions))
				for _, sess := range sessions {
					rows = append(rows, sessionRow(sess, colorize))
				}
				fmt.Fprintln(out, renderTable(sessionColumns, rows))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func parseStatuses(values []string) ([]session.Status, error) {
	var statuses []session.Status
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" {
			continue
		}
		st, ok := session.ParseStatus(raw)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", raw)
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var transcript bool

	cmd := &cobra.Command{
		Use:   "show <session>",
		Short: "Show a session and its analysis",
		Long:  "Show a session. <session> is a session number, #number, id or unique id prefix.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *session.Store) error {
				sess, err := store.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, httpapi.FromSession(sess, transcript))
				}
				out := cmd.OutOrStdout()
				printSession(out, sess, shouldColorize(out), transcript)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&transcript, "transcript", false, "Include the full transcript")
	return cmd
}

func newNoteCommand(ctx *commandContext) *cobra.Command {
	var appendNote, clearNotes bool

	cmd := &cobra.Command{
		Use:   "note <session> [text...]",
		Short: "Set or append free-form notes on a session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args[1:], " "))
			if text == "" && !clearNotes {
				return errors.New("note text is required (use --clear to remove notes)")
			}
			return ctx.withStore(func(store *session.Store) error {
				sess, err := store.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				notes := text
				if appendNote && strings.TrimSpace(sess.Notes) != "" {
					notes = strings.TrimRight(sess.Notes, "\n") + "\n" + text
				}
				if clearNotes {
					notes = ""
				}
				if err := store.UpdateNotes(cmd.Context(), sess.ID, notes); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Notes updated for session %d\n", sess.Number)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&appendNote, "append", "a", false, "Append to existing notes")
	cmd.Flags().BoolVar(&clearNotes, "clear", false, "Remove all notes")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	var keepFiles bool

	cmd := &cobra.Command{
		Use:     "remove <session>",
		Aliases: []string{"rm"},
		Short:   "Remove a session and its recording",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *session.Store) error {
				sess, err := store.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := store.Remove(cmd.Context(), sess.ID); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !keepFiles {
					if err := ingest.RemoveFiles(sess); err != nil {
						fmt.Fprintf(out, "Warning: recording files not removed: %v\n", err)
					}
				}
				fmt.Fprintf(out, "Session %d removed\n", sess.Number)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&keepFiles, "keep-files", false, "Keep the stored recording on disk")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var transcript, stdout, all bool

	cmd := &cobra.Command{
		Use:   "export [session]",
		Short: "Export sessions as Markdown",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("pass a session or --all")
			}
			return ctx.withStore(func(store *session.Store) error {
				var sessions []*session.Session
				if all {
					list, err := store.List(cmd.Context(), session.StatusCompleted)
					if err != nil {
						return err
					}
					sessions = list
				} else {
					sess, err := store.Resolve(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					sessions = []*session.Session{sess}
				}

				out := cmd.OutOrStdout()
				opts := export.Options{IncludeTranscript: transcript}
				if stdout {
					for i, sess := range sessions {
						if i > 0 {
							fmt.Fprintln(out, "\n---")
						}
						fmt.Fprint(out, export.Markdown(sess, opts))
					}
					return nil
				}

				cfg, _ := ctx.ensureConfig()
				for _, sess := range sessions {
					path, err := export.WriteFile(cfg.Paths.ExportDir, sess, opts)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Session %d exported to %s\n", sess.Number, path)
				}
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No completed sessions to export")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&transcript, "transcript", false, "Include the full transcript")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Print instead of writing into the export directory")
	cmd.Flags().BoolVar(&all, "all", false, "Export every completed session")
	return cmd
}

func newRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session> <title...>",
		Short: "Set the title of a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args[1:], " "))
			if title == "" {
				return errors.New("title must not be empty")
			}
			return ctx.withStore(func(store *session.Store) error {
				sess, err := store.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := store.UpdateTitle(cmd.Context(), sess.ID, title); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %d renamed to %q\n", sess.Number, title)
				return nil
			})
		},
	}
}
