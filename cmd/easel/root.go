package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := newCommandContext()

	root := &cobra.Command{
		Use:           "easel",
		Short:         "Layered canvas session for a remote image generation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
	}
	root.PersistentFlags().StringVar(&ctx.socketFlag, "socket", "", "Session socket (default <state_dir>/easel.sock)")
	root.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file (default ~/.config/easel/config.toml)")

	root.AddGroup(
		&cobra.Group{ID: "session", Title: "Session:"},
		&cobra.Group{ID: "canvas", Title: "Canvas:"},
		&cobra.Group{ID: "staging", Title: "Generation and staging:"},
		&cobra.Group{ID: "inspect", Title: "Inspection:"},
	)
	add := func(group string, cmds ...*cobra.Command) {
		for _, cmd := range cmds {
			cmd.GroupID = group
			root.AddCommand(cmd)
		}
	}
	add("session", newRunCommand(ctx), newCheckCommand(ctx))
	add("session", newSessionCommands(ctx)...)
	add("canvas",
		newLayersCommand(ctx),
		newLayerCommand(ctx),
		newDrawCommand(ctx),
		newRenderCommand(ctx),
	)
	add("staging", newStagingCommands(ctx)...)
	add("inspect", newGalleryCommand(ctx), newLogsCommand(ctx), newConfigCommand(ctx))
	return root
}
