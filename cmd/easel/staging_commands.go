package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"easel/internal/ipc"
)

func newStagingCommands(ctx *commandContext) []*cobra.Command {
	var req ipc.SubmitRequest
	var seed int64
	submitCmd := &cobra.Command{
		Use:   "submit [prompt]",
		Short: "Flatten the canvas and submit a generation job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				req.PositivePrompt = args[0]
			}
			if strings.TrimSpace(req.PositivePrompt) == "" {
				return fmt.Errorf("a prompt is required")
			}
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Submitted job %s (%s)\n", resp.JobID, resp.Mode)
				for _, placeholder := range resp.Placeholders {
					fmt.Fprintf(out, "warning: sent placeholder for %s\n", placeholder)
				}
				return nil
			})
		},
	}
	submitCmd.Flags().StringVar(&req.Mode, "mode", "", "Where results land: canvas or gallery (default from config)")
	submitCmd.Flags().StringVar(&req.NegativePrompt, "negative", "", "Negative prompt")
	submitCmd.Flags().StringVar(&req.Model, "model", "", "Model key")
	submitCmd.Flags().IntVar(&req.Steps, "steps", 0, "Denoising steps")
	submitCmd.Flags().Float64Var(&req.CFGScale, "cfg-scale", 0, "Classifier-free guidance scale")
	submitCmd.Flags().StringVar(&req.Scheduler, "scheduler", "", "Scheduler name")
	submitCmd.Flags().Float64Var(&req.Strength, "strength", 0, "Image-to-image denoising strength")
	submitCmd.Flags().Int64Var(&seed, "seed", 0, "Fixed seed")

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the outstanding job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cancel()
				if err != nil {
					return err
				}
				if !resp.Cancelled {
					fmt.Fprintln(cmd.OutOrStdout(), "No job outstanding")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled job %s\n", resp.JobID)
				return nil
			})
		},
	}

	acceptCmd := &cobra.Command{
		Use:   "accept",
		Short: "Commit the selected staged result as a new layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Accept()
				if err != nil {
					return err
				}
				if !resp.Committed {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to accept")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Accepted %s as layer %s\n", resp.ImageName, resp.LayerID)
				return nil
			})
		},
	}

	var selectedOnly bool
	discardCmd := &cobra.Command{
		Use:   "discard",
		Short: "Drop staged results without touching the canvas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Discard(ipc.DiscardRequest{SelectedOnly: selectedOnly}); err != nil {
					return err
				}
				if selectedOnly {
					fmt.Fprintln(cmd.OutOrStdout(), "Discarded selected result")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Discarded staging session")
				}
				return nil
			})
		},
	}
	discardCmd.Flags().BoolVar(&selectedOnly, "selected", false, "Discard only the selected result")

	return []*cobra.Command{
		submitCmd,
		cancelCmd,
		acceptCmd,
		discardCmd,
		newStagingSelectCommand(ctx, "next", "Select the next staged result", false),
		newStagingSelectCommand(ctx, "prev", "Select the previous staged result", true),
	}
}

func newStagingSelectCommand(ctx *commandContext, use, short string, previous bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StagingSelect(ipc.StagingSelectRequest{Previous: previous})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Selected result %d\n", resp.Index+1)
				return nil
			})
		},
	}
}
