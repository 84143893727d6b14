package main

import (
	"github.com/spf13/cobra"
)

const (
	groupSessions = "sessions"
	groupAudio    = "audio"
	groupSetup    = "setup"
)

func newRootCommand() *cobra.Command {
	var (
		configFlag string
		jsonFlag   bool
	)
	ctx := newCommandContext(&configFlag, &jsonFlag)

	root := &cobra.Command{
		Use:           "lorekeeper",
		Short:         "Transcribe and summarize tabletop session recordings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print machine-readable JSON")

	root.AddGroup(
		&cobra.Group{ID: groupSessions, Title: "Sessions:"},
		&cobra.Group{ID: groupAudio, Title: "Audio:"},
		&cobra.Group{ID: groupSetup, Title: "Setup:"},
	)
	grouped := map[string][]*cobra.Command{
		groupSessions: {
			newAddCommand(ctx),
			newListCommand(ctx),
			newShowCommand(ctx),
			newProcessCommand(ctx),
			newRetryCommand(ctx),
			newRecoverCommand(ctx),
			newEscalateCommand(ctx),
			newNoteCommand(ctx),
			newRenameCommand(ctx),
			newRemoveCommand(ctx),
			newExportCommand(ctx),
		},
		groupAudio: {newPlanCommand(ctx), newCompressCommand(ctx)},
		groupSetup: {newCheckCommand(ctx), newServeCommand(ctx), newConfigCommand(ctx)},
	}
	for id, cmds := range grouped {
		for _, cmd := range cmds {
			cmd.GroupID = id
			root.AddCommand(cmd)
		}
	}
	return root
}
