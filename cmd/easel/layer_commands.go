package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"easel/internal/api"
	"easel/internal/document"
	"easel/internal/ipc"
)

func newLayersCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "layers",
		Short: "List the layer stack, top first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Layers()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Layers) == 0 {
					fmt.Fprintln(out, "Canvas is empty")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"", "ID", "Kind", "Name", "Enabled", "Locked", "Content"},
					layerRows(resp.Layers),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				fmt.Fprintf(out, "Document version %d\n", resp.Version)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print layers as JSON")
	return cmd
}

func layerRows(layers []api.Layer) [][]string {
	rows := make([][]string, 0, len(layers))
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		marker := ""
		if l.Selected {
			marker = "*"
		}
		rows = append(rows, []string{
			marker,
			l.ID,
			l.KindLabel,
			l.Name,
			yesNo(l.Enabled),
			yesNo(l.Locked),
			layerContent(l),
		})
	}
	return rows
}

func layerContent(l api.Layer) string {
	switch {
	case l.HasBitmap && l.Strokes > 0:
		return "bitmap + " + strconv.Itoa(l.Strokes) + " strokes"
	case l.HasBitmap:
		return "bitmap"
	case l.Strokes > 0:
		return strconv.Itoa(l.Strokes) + " strokes"
	default:
		return "-"
	}
}

func newLayerCommand(ctx *commandContext) *cobra.Command {
	layerCmd := &cobra.Command{
		Use:   "layer",
		Short: "Add, remove and arrange layers",
	}

	var name string
	addCmd := &cobra.Command{
		Use:   "add <kind>",
		Short: "Add a layer on top of the stack and select it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := document.ParseKind(args[0])
			if err != nil {
				return fmt.Errorf("%w (expected one of %s)", err, kindNames())
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LayerAdd(ipc.LayerAddRequest{Kind: string(kind), Name: name})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s layer %s\n", kind, resp.ID)
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "Layer name")
	layerCmd.AddCommand(addCmd)

	actions := []struct {
		use    string
		action string
		short  string
		done   string
	}{
		{"rm", ipc.LayerRemove, "Remove a layer", "Removed"},
		{"reset", ipc.LayerReset, "Clear a layer's paint", "Reset"},
		{"raise", ipc.LayerRaise, "Move a layer one step up", "Raised"},
		{"lower", ipc.LayerLower, "Move a layer one step down", "Lowered"},
		{"front", ipc.LayerFront, "Move a layer to the top", "Moved to front"},
		{"back", ipc.LayerBack, "Move a layer to the bottom", "Moved to back"},
		{"enable", ipc.LayerEnable, "Enable a layer", "Enabled"},
		{"disable", ipc.LayerDisable, "Disable a layer", "Disabled"},
		{"lock", ipc.LayerLock, "Lock a layer against edits", "Locked"},
		{"unlock", ipc.LayerUnlock, "Unlock a layer", "Unlocked"},
		{"select", ipc.LayerSelect, "Select a layer for drawing", "Selected"},
	}
	for _, a := range actions {
		layerCmd.AddCommand(&cobra.Command{
			Use:   a.use + " <id>",
			Short: a.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.Layer(ipc.LayerRequest{ID: args[0], Action: a.action})
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s layer %s (version %d)\n", a.done, args[0], resp.Version)
					return nil
				})
			},
		})
	}

	layerCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Canvas cleared")
				return nil
			})
		},
	})

	return layerCmd
}

func kindNames() string {
	kinds := document.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
