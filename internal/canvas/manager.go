package canvas

import (
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"easel/internal/api"
	"easel/internal/compositor"
	"easel/internal/config"
	"easel/internal/document"
	"easel/internal/events"
	"easel/internal/execution"
	"easel/internal/jobservice"
	"easel/internal/logging"
	"easel/internal/notifications"
	"easel/internal/services"
	"easel/internal/staging"
	"easel/internal/state"
	"easel/internal/tool"
)

const component = "canvas"

// Surface receives finished interactive frames.
type Surface interface {
	Present(frame *image.RGBA, version uint64)
}

// JobService is the remote generation service as the Manager uses it.
type JobService interface {
	Submit(ctx context.Context, sub jobservice.Submission) (string, error)
	Cancel(ctx context.Context, jobID string) error
	ImageDTO(ctx context.Context, name string) (api.ImageDTO, error)
	Resolve(ctx context.Context, ref document.ImageRef) (image.Image, error)
}

// Deps are the external collaborators of a Manager. All are optional; a
// Manager without Jobs cannot submit or resolve images.
type Deps struct {
	Jobs     JobService
	Gallery  events.GalleryInserter
	Notifier notifications.Service
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now for the document and time-based overlays.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithPreferences sets the initial presentation preferences.
func WithPreferences(prefs state.Preferences) Option {
	return func(m *Manager) { m.prefs = prefs }
}

type lifecycle int

const (
	lifecycleCreated lifecycle = iota
	lifecycleRunning
	lifecycleDestroyed
)

func (l lifecycle) String() string {
	switch l {
	case lifecycleRunning:
		return "running"
	case lifecycleDestroyed:
		return "destroyed"
	default:
		return "created"
	}
}

// Manager owns the document and everything that mutates it.
type Manager struct {
	cfg            *config.Config
	logger         *slog.Logger
	jobs           JobService
	now            func() time.Time
	prefs          state.Preferences
	background     color.Color
	interval       time.Duration
	resolveTimeout time.Duration

	doc      *document.Document
	st       *state.Handle
	staging  *staging.Controller
	tools    *tool.Engine
	ingestor *events.Ingestor

	mu     sync.Mutex
	phase  lifecycle
	stream io.Closer

	root       context.Context
	cancelRoot context.CancelFunc
	wg         sync.WaitGroup

	rmu     sync.Mutex
	pending map[string]*resolution

	dirty     atomic.Bool
	connected atomic.Bool
}

// New builds a Manager over an empty document sized from the [canvas]
// configuration.
func New(cfg *config.Config, deps Deps, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:            cfg,
		logger:         logging.NewComponentLogger(logger, component),
		jobs:           deps.Jobs,
		now:            time.Now,
		interval:       time.Duration(cfg.Canvas.RenderIntervalMS) * time.Millisecond,
		resolveTimeout: time.Duration(cfg.Service.ResolveTimeout) * time.Second,
		pending:        make(map[string]*resolution),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.interval <= 0 {
		m.interval = 16 * time.Millisecond
	}
	if m.resolveTimeout <= 0 {
		m.resolveTimeout = 30 * time.Second
	}
	if bg, err := config.ParseColor(cfg.Canvas.Background); err == nil {
		m.background = bg
	}

	m.doc = document.New(
		document.WithLogger(logger),
		document.WithSize(cfg.Canvas.Width, cfg.Canvas.Height),
		document.WithClock(func() time.Time { return m.now() }),
	)
	m.st = state.New(m.doc, execution.NewTable(), m.prefs)
	m.staging = staging.New(m.st,
		staging.WithLogger(logger),
		staging.WithAutoAccept(cfg.Staging.AutoAccept),
	)
	m.tools = tool.NewEngine(m.doc, toolSettings(cfg), logger)

	ingest := events.Deps{
		State:    m.st,
		Staging:  m.staging,
		Gallery:  deps.Gallery,
		Notifier: deps.Notifier,
		Resolver: m,
		Logger:   logger,
	}
	if deps.Jobs != nil {
		ingest.Images = deps.Jobs
	}
	m.ingestor = events.New(ingest)

	m.root, m.cancelRoot = context.WithCancel(context.Background())
	m.dirty.Store(true)
	compositor.BindLogger(m.logger)
	return m
}

func toolSettings(cfg *config.Config) tool.Settings {
	settings := tool.DefaultSettings()
	if c, err := config.ParseColor(cfg.Tools.BrushColor); err == nil {
		settings.BrushColor = c
	}
	if cfg.Tools.BrushWidth > 0 {
		settings.BrushWidth = cfg.Tools.BrushWidth
	}
	if cfg.Tools.EraserWidth > 0 {
		settings.EraserWidth = cfg.Tools.EraserWidth
	}
	return settings
}

// Initialize binds the Manager to surface and starts the render loop. A nil
// surface runs headless. It must be called exactly once, before Destroy.
func (m *Manager) Initialize(ctx context.Context, surface Surface) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != lifecycleCreated {
		return m.violation("initialize", "manager is already "+m.phase.String())
	}
	m.phase = lifecycleRunning
	if surface != nil {
		m.wg.Add(1)
		go m.renderLoop(ctx, surface)
	}
	m.logger.Info("canvas initialized",
		logging.Int("width", m.cfg.Canvas.Width),
		logging.Int("height", m.cfg.Canvas.Height),
		logging.Bool("headless", surface == nil),
		logging.String(logging.FieldEventType, "canvas_initialized"),
	)
	return nil
}

// AttachStream hands the current event subscription to the Manager so
// Destroy can detach it. It replaces and closes any earlier subscription. A
// stream attached after Destroy is closed immediately.
func (m *Manager) AttachStream(stream io.Closer) error {
	m.mu.Lock()
	if m.phase == lifecycleDestroyed {
		m.mu.Unlock()
		_ = stream.Close()
		return services.Wrap(services.ErrLifecycle, component, "attach stream", "manager destroyed", nil)
	}
	previous := m.stream
	m.stream = stream
	m.mu.Unlock()

	if previous != nil && previous != stream {
		if err := previous.Close(); err != nil {
			m.logger.Debug("previous stream close", logging.Error(err))
		}
	}
	m.connected.Store(true)
	return nil
}

// SetConnected records whether the event stream is live, for status reports.
func (m *Manager) SetConnected(connected bool) {
	m.connected.Store(connected)
}

// Destroy detaches the event stream, abandons in-flight resolutions and stops
// the render loop. Once it returns nothing touches the document again.
// Calling it before Initialize is a lifecycle violation; later calls are
// no-ops.
func (m *Manager) Destroy() error {
	m.mu.Lock()
	switch m.phase {
	case lifecycleCreated:
		m.mu.Unlock()
		return m.violation("destroy", "manager was never initialized")
	case lifecycleDestroyed:
		m.mu.Unlock()
		return nil
	}
	m.phase = lifecycleDestroyed
	stream := m.stream
	m.stream = nil

	m.rmu.Lock()
	m.cancelRoot()
	m.rmu.Unlock()
	abandoned := m.cancelPending()
	m.tools.Abort()
	m.mu.Unlock()

	var closeErr error
	if stream != nil {
		closeErr = stream.Close()
	}
	m.connected.Store(false)
	m.wg.Wait()

	if jobID := m.staging.Reset(); jobID != "" {
		m.logger.Info("outstanding job left running on destroy", logging.String(logging.FieldJobID, jobID))
	}
	m.logger.Info("canvas destroyed",
		logging.Int("abandoned_resolutions", abandoned),
		logging.Bool("stream_attached", stream != nil),
		logging.String(logging.FieldEventType, "canvas_destroyed"),
	)
	if closeErr != nil {
		m.logger.Debug("stream close reported an error", logging.Error(closeErr))
	}
	return nil
}

// HandleFrame feeds one raw event frame to the ingestor. Frames arriving
// after Destroy are dropped.
func (m *Manager) HandleFrame(ctx context.Context, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == lifecycleDestroyed {
		return services.Wrap(services.ErrLifecycle, component, "handle frame", "manager destroyed", nil)
	}
	err := m.ingestor.HandleFrame(ctx, raw)
	m.invalidate()
	return err
}

// liveLocked rejects document operations once the Manager is destroyed.
func (m *Manager) liveLocked(operation string) error {
	if m.phase == lifecycleDestroyed {
		return m.violation(operation, "manager destroyed")
	}
	return nil
}

func (m *Manager) violation(operation, message string) error {
	err := services.Wrap(services.ErrLifecycle, component, operation, message, nil)
	if m.cfg.Canvas.Development {
		panic(err)
	}
	logging.ErrorWithContext(m.logger, "lifecycle violation", "lifecycle_violation",
		logging.String("operation", operation),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
	)
	return err
}

func (m *Manager) invalidate() {
	m.dirty.Store(true)
}
