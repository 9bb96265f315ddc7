package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"easel/internal/api"
	"easel/internal/canvas"
	"easel/internal/config"
	"easel/internal/gallery"
	"easel/internal/jobservice"
	"easel/internal/logging"
	"easel/internal/preflight"
	"easel/internal/services"
)

const component = "daemon"

// Subscriber opens the job event stream.
type Subscriber interface {
	Subscribe(ctx context.Context, handler jobservice.FrameHandler) (*jobservice.Subscription, error)
}

// Deps are the collaborators a Daemon coordinates. Manager is required.
type Deps struct {
	Manager *canvas.Manager
	Gallery *gallery.Service
	// Store is closed by Daemon.Close.
	Store  *gallery.Store
	Events Subscriber
	Hub    *logging.StreamHub
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithReconnectDelay sets the initial event stream reconnect delay. It
// doubles per failed attempt up to a minute.
func WithReconnectDelay(delay time.Duration) Option {
	return func(d *Daemon) { d.retry = delay }
}

// WithoutPreflight skips the service and directory checks on Start.
func WithoutPreflight() Option {
	return func(d *Daemon) { d.skipPreflight = true }
}

// Daemon coordinates a canvas session and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	manager *canvas.Manager
	gallery *gallery.Service
	store   *gallery.Store
	events  Subscriber
	hub     *logging.StreamHub
	preview *PreviewSurface

	lockPath string
	lock     *flock.Flock

	retry         time.Duration
	skipPreflight bool

	mu         sync.Mutex
	running    atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	api        *apiServer
	apiAddress atomic.Value
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || deps.Manager == nil {
		return nil, errors.New("daemon requires config and canvas manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, component),
		manager:  deps.Manager,
		gallery:  deps.Gallery,
		store:    deps.Store,
		events:   deps.Events,
		hub:      deps.Hub,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		retry:    time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.preview = NewPreviewSurface(cfg.Paths.PreviewPath, d.logger)
	return d, nil
}

// Start acquires the session lock, initializes the canvas, connects the
// event stream, and starts the preview API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if !d.skipPreflight {
		if err := d.runPreflight(ctx); err != nil {
			return err
		}
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return services.Wrap(services.ErrConfiguration, component, "start", "another easel session is using "+d.cfg.Paths.StateDir, nil)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.manager.Initialize(d.ctx, d.preview); err != nil {
		d.abortStart()
		return fmt.Errorf("initialize canvas: %w", err)
	}

	apiSrv, err := newAPIServer(d.cfg, d, d.logger)
	if err == nil {
		err = apiSrv.start(d.ctx)
	}
	if err != nil {
		_ = d.manager.Destroy()
		d.abortStart()
		return fmt.Errorf("start preview api: %w", err)
	}
	d.api = apiSrv
	d.apiAddress.Store(apiSrv.address())

	if d.events != nil {
		d.wg.Add(1)
		go d.streamLoop(d.ctx)
	} else {
		logging.WarnWithContext(d.logger, "no event stream configured", "event_stream_disabled",
			logging.String(logging.FieldImpact, "submitted jobs never report results"),
		)
	}

	d.running.Store(true)
	d.logger.Info("easel session started",
		logging.String("lock", d.lockPath),
		logging.Int("pid", os.Getpid()),
		logging.String(logging.FieldEventType, "session_started"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	d.cancel()
	d.ctx, d.cancel = nil, nil
	_ = d.lock.Unlock()
}

func (d *Daemon) runPreflight(ctx context.Context) error {
	results := preflight.RunAll(ctx, d.cfg)
	if failed, ok := preflight.FirstRequiredFailure(results); ok {
		return services.Wrap(services.ErrConfiguration, component, "preflight", failed.Name+": "+failed.Detail, nil)
	}
	for _, r := range results {
		if r.Passed {
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run easel check for details"),
			logging.String(logging.FieldImpact, "session starts degraded"),
		)
	}
	return nil
}

// streamLoop keeps the event stream attached to the Manager until ctx ends.
func (d *Daemon) streamLoop(ctx context.Context) {
	defer d.wg.Done()

	delay := d.retry
	for {
		sub, err := d.events.Subscribe(ctx, d.manager.HandleFrame)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.manager.SetConnected(false)
			logging.WarnWithContext(d.logger, "event stream unavailable", "stream_connect_failed",
				logging.Error(err),
				logging.Duration("retry_in", delay),
				logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
				logging.String(logging.FieldImpact, "job results are delayed until the stream reconnects"),
			)
			if !sleepContext(ctx, delay) {
				return
			}
			delay = min(delay*2, time.Minute)
			continue
		}
		delay = d.retry

		if err := d.manager.AttachStream(sub); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case <-sub.Done():
		}
		d.manager.SetConnected(false)
		attrs := []logging.Attr{logging.String(logging.FieldEventType, "stream_reconnecting")}
		if err := sub.Err(); err != nil {
			attrs = append(attrs, logging.Error(err))
		}
		d.logger.Info("event stream closed, reconnecting", logging.Args(attrs...)...)
		if !sleepContext(ctx, delay) {
			return
		}
	}
}

func sleepContext(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Stop destroys the canvas session and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.api.stop()
	d.api = nil
	d.apiAddress.Store("")
	if err := d.manager.Destroy(); err != nil {
		d.logger.Warn("canvas destroy failed", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release session lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("easel session stopped", logging.String(logging.FieldEventType, "session_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not run.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status reports the session summary plus host paths.
func (d *Daemon) Status() api.SessionStatus {
	status := d.manager.Status()
	status.Running = status.Running && d.running.Load()
	status.LockFilePath = d.lockPath
	if d.store != nil {
		status.GalleryDBPath = d.store.Path()
	}
	if addr, ok := d.apiAddress.Load().(string); ok {
		status.PreviewAddress = addr
	}
	return status
}

// Manager returns the canvas Manager the session hosts.
func (d *Daemon) Manager() *canvas.Manager {
	return d.manager
}

// Gallery returns the gallery service, or nil when none is configured.
func (d *Daemon) Gallery() *gallery.Service {
	return d.gallery
}

// LogStream returns the in-memory event hub, or nil.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.hub
}

// Preview returns the surface the render loop presents to.
func (d *Daemon) Preview() *PreviewSurface {
	return d.preview
}
