package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"easel/internal/canvas"
	"easel/internal/config"
	"easel/internal/daemon"
	"easel/internal/gallery"
	"easel/internal/ipc"
	"easel/internal/jobservice"
	"easel/internal/logging"
	"easel/internal/notifications"
)

// Options configures session process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// PIDPath is where a running session records its process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "easel.pid")
}

// Run starts the easel session and blocks until cmdCtx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "easel.log")
	logHub := logging.NewStreamHub(4096)
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr", logPath},
		Development: opts.Development || cfg.Canvas.Development,
		Stream:      logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logServiceSnapshot(logger, cfg)

	store, err := gallery.Open(cfg)
	if err != nil {
		logger.Error("open gallery store", logging.Error(err))
		return err
	}

	gallerySvc := gallery.NewService(store, cfg, logger)
	notifier := notifications.NewService(cfg)
	jobs := jobservice.New(cfg, logger)
	manager := canvas.New(cfg, canvas.Deps{
		Jobs:     jobs,
		Gallery:  gallerySvc,
		Notifier: notifier,
	}, logger)

	d, err := daemon.New(cfg, daemon.Deps{
		Manager: manager,
		Gallery: gallerySvc,
		Store:   store,
		Events:  jobs,
		Hub:     logHub,
	}, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create session: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "session start failed", "session_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, state_dir access and for another running session"),
		)
		return err
	}

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("easel session shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logServiceSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("service snapshot",
		logging.String(logging.FieldEventType, "service_snapshot"),
		logging.String("base_url", cfg.Service.BaseURL),
		logging.String("events_url", cfg.Service.EventsURL),
		logging.Bool("service_token_present", strings.TrimSpace(cfg.Service.Token) != ""),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("preview_api_enabled", strings.TrimSpace(cfg.API.Bind) != ""),
		logging.Bool("preview_file_enabled", strings.TrimSpace(cfg.Paths.PreviewPath) != ""),
		logging.Int("width", cfg.Canvas.Width),
		logging.Int("height", cfg.Canvas.Height),
	)
}
