package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"easel/internal/ipc"
	"easel/internal/logging"
	"easel/internal/logs"
	"easel/internal/logstream"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var component string
	var fromFile bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display session events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if fromFile {
				entries, err := logs.LastLines(filepath.Join(cfg.Paths.LogDir, "easel.log"), lines)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No log entries available")
				}
				for _, line := range entries {
					fmt.Fprintln(out, line)
				}
				return nil
			}

			apiClient, err := logs.NewStreamClient(cfg.API.Bind, cfg.API.Token)
			if err != nil {
				return fmt.Errorf("preview api address: %w", err)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				printed, err := logstream.Stream(cmd.Context(), apiClient, client, logstream.Options{
					Lines:     lines,
					Follow:    follow,
					Component: component,
				}, func(evt logging.LogEvent) {
					fmt.Fprintln(out, formatLogEvent(evt))
				})
				if err != nil {
					return err
				}
				if !printed && !follow {
					fmt.Fprintln(out, "No log entries available")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow new events")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of recent events to show")
	cmd.Flags().StringVar(&component, "component", "", "Only show events from this component")
	cmd.Flags().BoolVar(&fromFile, "file", false, "Read the session log file instead of asking the session")
	return cmd
}

func formatLogEvent(evt logging.LogEvent) string {
	ts := evt.Timestamp.Local().Format("15:04:05")
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{ts, level}
	if c := strings.TrimSpace(evt.Component); c != "" {
		parts = append(parts, "["+c+"]")
	}
	line := strings.Join(parts, " ")
	if msg := strings.TrimSpace(evt.Message); msg != "" {
		line += " " + msg
	}
	var subject []string
	if evt.JobID != "" {
		subject = append(subject, "job="+evt.JobID)
	}
	if evt.LayerID != "" {
		subject = append(subject, "layer="+evt.LayerID)
	}
	if len(evt.Fields) > 0 {
		keys := make([]string, 0, len(evt.Fields))
		for k := range evt.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			subject = append(subject, k+"="+evt.Fields[k])
		}
	}
	if len(subject) > 0 {
		line += " (" + strings.Join(subject, " ") + ")"
	}
	return line
}
