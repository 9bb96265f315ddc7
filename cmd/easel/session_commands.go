package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"easel/internal/api"
	"easel/internal/daemonctl"
	"easel/internal/daemonrun"
	"easel/internal/ipc"
	"easel/internal/preflight"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the easel session in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if socket := ctx.socketOverride(); socket != "" && socket != cfg.SocketPath() {
				return fmt.Errorf("--socket must match the configured state_dir (%s)", cfg.SocketPath())
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&development, "development", false, "Panic on lifecycle violations")
	return cmd
}

func newSessionCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start an easel session in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := sessionExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonctl.LaunchOptions{SocketPath: ctx.socketPath(), ConfigPath: ctx.configPath()},
				10*time.Second,
			)
			if err != nil {
				return err
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Session started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Session already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the easel session",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.Stop(ctx.socketPath(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrSessionNotRunning) {
				fmt.Fprintln(stdout, "Session is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Session did not exit in time; killed pid %d\n", result.PID)
				if cfg := ctx.configValue(); cfg != nil {
					_ = os.Remove(daemonrun.PIDPath(cfg))
				}
			}
			fmt.Fprintln(stdout, "Session stopped")
			return nil
		},
	}

	var statusJSON bool
	var statusEvents int
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show session, staging and job progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				if statusJSON {
					return writeJSON(cmd, resp.Status)
				}
				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)
				for _, line := range renderSessionStatus(resp.Status, colorize) {
					fmt.Fprintln(stdout, line)
				}
				if statusEvents <= 0 {
					return nil
				}
				page, err := client.LogTail(ipc.LogTailRequest{Limit: statusEvents})
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout)
				for _, line := range renderSectionHeader("Recent Events", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, evt := range page.Events {
					fmt.Fprintln(stdout, formatLogEvent(evt))
				}
				return nil
			})
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status as JSON")
	statusCmd.Flags().IntVar(&statusEvents, "events", 0, "Also print the most recent N session events")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func renderSessionStatus(status api.SessionStatus, colorize bool) []string {
	lines := renderSectionHeader("Session", colorize)
	runKind := statusOK
	if !status.Running {
		runKind = statusError
	}
	lines = append(lines,
		renderStatusLine("Running", runKind, fmt.Sprintf("%s (pid %d)", yesNo(status.Running), status.PID), colorize),
		renderStatusLine("Event stream", connectionKind(status.Connected), connectionDetail(status.Connected), colorize),
		renderStatusLine("Document", statusInfo, fmt.Sprintf("%dx%d, %d layers, version %d", status.Width, status.Height, status.LayerCount, status.DocVersion), colorize),
		renderStatusLine("Tool", statusInfo, status.Tool, colorize),
	)
	if status.Selected != "" {
		lines = append(lines, renderStatusLine("Selected layer", statusInfo, status.Selected, colorize))
	}
	if status.PreviewAddress != "" {
		lines = append(lines, renderStatusLine("Preview API", statusInfo, "http://"+status.PreviewAddress, colorize))
	}
	if status.LockFilePath != "" {
		lines = append(lines, renderStatusLine("State dir", statusInfo, filepath.Dir(status.LockFilePath), colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Staging", colorize)...)
	st := status.Staging
	lines = append(lines, renderStatusLine("Phase", stagingKind(st), st.Phase, colorize))
	if st.JobID != "" {
		lines = append(lines, renderStatusLine("Job", statusInfo, fmt.Sprintf("%s (%s)", st.JobID, st.Mode), colorize))
	}
	if len(st.Items) > 0 {
		lines = append(lines, renderStatusLine("Items", statusInfo, fmt.Sprintf("%d, selected %d", len(st.Items), st.Selected+1), colorize))
	}
	if p := status.LastProgress; p != nil {
		detail := p.Message
		if p.Percentage != nil {
			detail = strings.TrimSpace(fmt.Sprintf("%.0f%% %s", *p.Percentage*100, detail))
		}
		lines = append(lines, renderStatusLine("Progress", statusInfo, detail, colorize))
	}
	return lines
}

func connectionKind(connected bool) statusKind {
	if connected {
		return statusOK
	}
	return statusWarn
}

func connectionDetail(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected; results arrive after reconnect"
}

func stagingKind(st api.Staging) statusKind {
	for _, item := range st.Items {
		if item.Status == "failed" {
			return statusWarn
		}
	}
	return statusInfo
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks against the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				state := "ok"
				if !r.Passed {
					state = "failed"
				}
				rows = append(rows, []string{r.Name, state, yesNo(r.Required), r.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Result", "Required", "Detail"}, rows, nil))
			if failed, ok := preflight.FirstRequiredFailure(results); ok {
				return fmt.Errorf("%s: %s", failed.Name, failed.Detail)
			}
			return nil
		},
	}
}

func sessionExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
