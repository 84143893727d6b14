package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lorekeeper/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var online bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check directories, encoder binaries, the session store and API credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)

			store, storeErr := ctx.openStore()
			if storeErr != nil {
				results = append(results, preflight.Result{Name: "Session store", Detail: storeErr.Error()})
			} else {
				results = append(results, preflight.CheckDatabase(cmd.Context(), store))
			}
			if online {
				results = append(results, preflight.CheckOpenAI(cmd.Context(), cfg))
			}

			failed := preflight.Failed(results)
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Lorekeeper readiness", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, r := range results {
					kind := statusOK
					switch {
					case !r.Passed && r.Optional:
						kind = statusWarn
					case !r.Passed:
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d required check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "Also call the OpenAI API to verify the key")
	return cmd
}
