package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"easel/internal/document"
	"easel/internal/ipc"
	"easel/internal/tool"
)

func newDrawCommand(ctx *commandContext) *cobra.Command {
	var toolName string
	var layerID string

	cmd := &cobra.Command{
		Use:   "draw <x,y>...",
		Short: "Replay one gesture on the selected layer",
		Long: "Replay one pointer gesture: down on the first point, move through the rest, up on the last.\n" +
			"Brush and eraser paint a stroke; move and transform shift or scale the layer by the gesture.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tool.ParseTool(toolName)
			if err != nil {
				return err
			}
			points, err := parsePoints(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Draw(ipc.DrawRequest{Tool: string(t), LayerID: layerID, Points: points})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !resp.Changed {
					fmt.Fprintln(out, "Nothing changed")
					return nil
				}
				fmt.Fprintf(out, "Applied %s gesture (version %d)\n", t, resp.Version)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&toolName, "tool", "t", string(tool.Brush), "Tool: brush, eraser, move or transform")
	cmd.Flags().StringVar(&layerID, "layer", "", "Select this layer before drawing")
	return cmd
}

// parsePoints reads "x,y" pairs. Whitespace-separated pairs inside one
// argument are accepted too.
func parsePoints(args []string) ([]document.Point, error) {
	var points []document.Point
	for _, arg := range args {
		for _, field := range strings.Fields(arg) {
			xs, ys, ok := strings.Cut(field, ",")
			if !ok {
				return nil, fmt.Errorf("point %q: expected x,y", field)
			}
			x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
			if err != nil {
				return nil, fmt.Errorf("point %q: %w", field, err)
			}
			y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
			if err != nil {
				return nil, fmt.Errorf("point %q: %w", field, err)
			}
			points = append(points, document.Point{X: x, Y: y})
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("at least one point is required")
	}
	return points, nil
}
