package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"easel/internal/ipc"
)

func newGalleryCommand(ctx *commandContext) *cobra.Command {
	galleryCmd := &cobra.Command{
		Use:   "gallery",
		Short: "Inspect images recorded by this session",
	}

	var board string
	var limit int
	var asJSON bool
	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List gallery images on a board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.GalleryList(ipc.GalleryListRequest{Board: board, Limit: limit})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Images) == 0 {
					fmt.Fprintf(out, "Board %s has no images\n", resp.Board)
				} else {
					rows := make([][]string, 0, len(resp.Images))
					for _, img := range resp.Images {
						rows = append(rows, []string{
							img.ImageName,
							fmt.Sprintf("%dx%d", img.Width, img.Height),
							img.Category,
							img.InsertedAt,
						})
					}
					fmt.Fprintf(out, "Board %s\n", resp.Board)
					fmt.Fprintln(out, renderTable([]string{"Image", "Size", "Category", "Inserted"}, rows, nil))
				}
				if len(resp.Boards) > 1 {
					rows := make([][]string, 0, len(resp.Boards))
					for _, b := range resp.Boards {
						rows = append(rows, []string{b.BoardID, strconv.Itoa(b.Images)})
					}
					fmt.Fprintln(out, renderTable([]string{"Board", "Images"}, rows, []columnAlignment{alignLeft, alignRight}))
				}
				return nil
			})
		},
	}
	lsCmd.Flags().StringVar(&board, "board", "", "Board id (default: the current selection)")
	lsCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum images to list")
	lsCmd.Flags().BoolVar(&asJSON, "json", false, "Print the listing as JSON")
	galleryCmd.AddCommand(lsCmd)

	return galleryCmd
}
