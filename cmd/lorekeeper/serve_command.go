package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lorekeeper/internal/httpapi"
	"lorekeeper/internal/logging"
	"lorekeeper/internal/preflight"
	"lorekeeper/internal/session"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var recoverStuck bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.API.Bind = bind
			}
			for _, dir := range []struct{ name, path string }{
				{"Upload directory", cfg.Paths.UploadDir},
				{"Work directory", cfg.Paths.WorkDir},
			} {
				if r := preflight.CheckDirectoryAccess(dir.name, dir.path); !r.Passed {
					return fmt.Errorf("%s: %s", r.Name, r.Detail)
				}
			}

			return ctx.withStore(func(store *session.Store) error {
				logger := ctx.log()
				if recoverStuck {
					stuck, err := store.List(cmd.Context(), session.StatusTranscribing, session.StatusAnalyzing)
					if err != nil {
						return err
					}
					for _, sess := range stuck {
						if _, err := store.Recover(cmd.Context(), sess.ID); err != nil {
							return err
						}
						logger.Info("stuck session marked interrupted",
							logging.SessionID(sess.ID),
							logging.String("status", string(sess.Status)),
						)
					}
				}

				orchestrator, err := ctx.newOrchestrator(store)
				if err != nil {
					return err
				}
				server := httpapi.New(cfg, store, orchestrator, logger)
				return server.Run(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides api.bind)")
	cmd.Flags().BoolVar(&recoverStuck, "recover-stuck", false, "Mark sessions left in transcribing or analyzing as interrupted before serving")
	return cmd
}
