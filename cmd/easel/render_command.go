package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"easel/internal/config"
	"easel/internal/fileutil"
	"easel/internal/ipc"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var output string
	var submission bool
	var mask bool

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Write the current canvas to a PNG file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(output) == "" {
				return fmt.Errorf("--output is required")
			}
			if submission && mask {
				return fmt.Errorf("--submission and --mask are mutually exclusive")
			}
			target := ipc.RenderInteractive
			switch {
			case submission:
				target = ipc.RenderSubmission
			case mask:
				target = ipc.RenderMask
			}
			path, err := config.ExpandPath(output)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Render(ipc.RenderRequest{Target: target})
				if err != nil {
					return err
				}
				if err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
					_, err := w.Write(resp.PNG)
					return err
				}); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Wrote %dx%d %s render (version %d) to %s\n", resp.Width, resp.Height, target, resp.Version, path)
				for _, renderErr := range resp.Errors {
					fmt.Fprintf(out, "warning: %s\n", renderErr)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination PNG path")
	cmd.Flags().BoolVar(&submission, "submission", false, "Render exactly what a submission would send")
	cmd.Flags().BoolVar(&mask, "mask", false, "Render the inpaint mask")
	return cmd
}
