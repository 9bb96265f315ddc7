package staging

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"easel/internal/document"
	"easel/internal/logging"
	"easel/internal/services"
	"easel/internal/state"
)

const component = "staging"

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logging.NewComponentLogger(logger, component) }
}

// WithAutoAccept commits canvas results as soon as their pixels resolve.
func WithAutoAccept(enabled bool) Option {
	return func(c *Controller) { c.autoAccept = enabled }
}

// Controller is the staging state machine. All methods are safe for
// concurrent use.
type Controller struct {
	mu         sync.Mutex
	st         *state.Handle
	logger     *slog.Logger
	autoAccept bool

	sessionID string
	jobID     string
	mode      Mode
	phase     Phase
	items     []*Item
	selected  int
	awaiting  bool
}

// New returns an idle controller committing into st.Document.
func New(st *state.Handle, opts ...Option) *Controller {
	c := &Controller{
		st:       st,
		logger:   logging.NewComponentLogger(nil, component),
		phase:    PhaseIdle,
		selected: -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reserve opens a session before submission. It fails with ErrStagingBusy
// while another job is awaiting or streaming. A session holding unaccepted
// results is replaced.
func (c *Controller) Reserve(mode Mode) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase.Busy() {
		return "", services.Wrap(services.ErrStagingBusy, component, "reserve",
			fmt.Sprintf("job %s is still %s", c.jobLabel(), c.phase), nil)
	}
	if c.phase == PhaseReady {
		c.logger.Info("unaccepted results replaced",
			logging.String(logging.FieldSessionID, c.sessionID),
			logging.Int("items", len(c.items)),
			logging.String(logging.FieldEventType, "staging_superseded"),
		)
	}
	c.resetLocked()
	c.sessionID = uuid.NewString()
	c.mode = mode
	c.phase = PhaseAwaiting
	c.awaiting = true
	c.logger.Info("staging session reserved",
		logging.String(logging.FieldSessionID, c.sessionID),
		logging.String("mode", string(mode)),
		logging.String(logging.FieldEventType, "staging_reserved"),
	)
	return c.sessionID, nil
}

// Bind attaches the job id returned by submission to a reserved session.
func (c *Controller) Bind(sessionID, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sessionID != c.sessionID || c.phase != PhaseAwaiting || c.jobID != "" {
		return services.Wrap(services.ErrStaleResult, component, "bind", "session no longer reserved", nil)
	}
	c.jobID = jobID
	c.logger.Debug("staging session bound",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String(logging.FieldJobID, jobID),
	)
	return nil
}

// Abort releases a reservation whose submission failed.
func (c *Controller) Abort(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sessionID == "" || sessionID != c.sessionID {
		return
	}
	c.logger.Info("staging session aborted", logging.String(logging.FieldSessionID, sessionID))
	c.resetLocked()
}

// Progress records job progress (0..1) on the in-flight item, creating a
// placeholder item when none exists. The first item of a session is selected
// so its reveal draws while the job streams. Progress never decreases. preview, when
// non-nil, replaces the live preview pixels. It reports whether the session
// matched.
func (c *Controller) Progress(jobID string, progress *float64, preview image.Image) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.liveLocked(jobID) {
		return false
	}
	it := c.inFlightLocked()
	if it == nil {
		if c.phase == PhaseReady {
			return false
		}
		it = c.appendLocked(&Item{Status: ItemPending})
	}
	if progress != nil {
		p := clamp01(*progress)
		if it.Progress == nil || p > *it.Progress {
			it.Progress = &p
		}
	}
	if preview != nil {
		it.Preview = preview
	}
	it.Status = ItemStreaming
	if c.phase == PhaseAwaiting {
		c.phase = PhaseStreaming
	}
	return true
}

// Preview asks for an intermediate image to be resolved into the live
// preview of the in-flight item. Intermediate images never become final.
func (c *Controller) Preview(jobID string, ref document.ImageRef) (ResolveRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.liveLocked(jobID) || c.phase == PhaseReady {
		return ResolveRequest{}, false
	}
	it := c.inFlightLocked()
	if it == nil {
		it = c.appendLocked(&Item{Status: ItemStreaming})
	}
	if c.phase == PhaseAwaiting {
		c.phase = PhaseStreaming
	}
	return ResolveRequest{
		SessionID:    c.sessionID,
		JobID:        c.jobID,
		ItemID:       it.ID,
		Image:        ref,
		Intermediate: true,
	}, true
}

// Stage records a final image for the bound job at offset and returns the
// resolution request for its pixels. Repeated delivery of an image already
// staged in this session is ignored.
func (c *Controller) Stage(jobID string, ref document.ImageRef, offset document.Point) (ResolveRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.liveLocked(jobID) {
		c.logger.Debug("stage ignored",
			logging.String(logging.FieldJobID, jobID),
			logging.String("image", ref.Name),
		)
		return ResolveRequest{}, false
	}
	for _, it := range c.items {
		if it.Image != nil && it.Image.Name == ref.Name {
			return ResolveRequest{}, false
		}
	}
	it := c.inFlightLocked()
	if it == nil {
		it = c.appendLocked(&Item{})
	}
	img := ref
	it.Image = &img
	it.Offset = offset
	it.Status = ItemResolving
	c.awaiting = false
	if c.selected < 0 {
		c.selected = c.indexLocked(it.ID)
	}
	c.phase = PhaseStreaming
	c.logger.Info("image staged",
		logging.String(logging.FieldSessionID, c.sessionID),
		logging.String(logging.FieldJobID, jobID),
		logging.String("image", ref.Name),
		logging.Float64("offset_x", offset.X),
		logging.Float64("offset_y", offset.Y),
		logging.String(logging.FieldEventType, "staging_staged"),
	)
	return ResolveRequest{SessionID: c.sessionID, JobID: c.jobID, ItemID: it.ID, Image: img}, true
}

// Resolved delivers pixels for a request. A result for a session or item that
// no longer matches returns ErrStaleResult and changes nothing. With
// auto-accept in canvas mode the item is committed and the returned Commit
// names the new layer.
func (c *Controller) Resolved(req ResolveRequest, bitmap image.Image) (*Commit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, err := c.matchLocked(req)
	if err != nil {
		return nil, err
	}
	if req.Intermediate {
		if !it.Status.inFlight() {
			return nil, staleErr("resolved", "item already final")
		}
		it.Preview = bitmap
		return nil, nil
	}

	it.Bitmap = bitmap
	it.Preview = nil
	it.Status = ItemReady
	one := 1.0
	it.Progress = &one
	c.settleLocked()

	if c.mode == ModeCanvas && c.autoAccept {
		c.selected = c.indexLocked(it.ID)
		return c.commitLocked(it)
	}
	return nil, nil
}

// ResolveFailed marks the item of a request failed. Other items are kept.
func (c *Controller) ResolveFailed(req ResolveRequest, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, err := c.matchLocked(req)
	if err != nil {
		return err
	}
	if req.Intermediate {
		c.logger.Debug("preview resolution failed", logging.String("image", req.Image.Name), logging.Error(cause))
		return nil
	}
	c.failItemLocked(it, fmt.Sprintf("resolve %s: %v", req.Image.Name, cause))
	return nil
}

// Fail marks the in-flight item failed after a job error. A failed job with
// no item yet gets a failed placeholder so the failure stays visible.
func (c *Controller) Fail(jobID, message string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.liveLocked(jobID) {
		return false
	}
	it := c.inFlightLocked()
	if it == nil {
		for _, candidate := range c.items {
			if candidate.Status == ItemResolving {
				it = candidate
				break
			}
		}
	}
	if it == nil {
		it = c.appendLocked(&Item{})
	}
	c.failItemLocked(it, message)
	return true
}

// CompleteGallery ends a gallery-mode session once its job delivered. The
// document is not touched.
func (c *Controller) CompleteGallery(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.liveLocked(jobID) || c.mode != ModeGallery {
		return false
	}
	c.logger.Info("gallery session resolved",
		logging.String(logging.FieldSessionID, c.sessionID),
		logging.String(logging.FieldJobID, jobID),
		logging.String("phase", string(PhaseResolved)),
		logging.String(logging.FieldEventType, "staging_resolved"),
	)
	c.resetLocked()
	return true
}

// Accept commits the selected item to the document.
func (c *Controller) Accept() (*Commit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseIdle {
		return nil, services.Wrap(services.ErrValidation, component, "accept", "no staging session", nil)
	}
	if c.selected < 0 || c.selected >= len(c.items) {
		return nil, services.Wrap(services.ErrValidation, component, "accept", "no staged item selected", nil)
	}
	it := c.items[c.selected]
	if it.Status != ItemReady {
		return nil, services.Wrap(services.ErrValidation, component, "accept",
			fmt.Sprintf("selected item is %s", it.Status), nil)
	}
	if c.mode != ModeCanvas {
		c.resetLocked()
		return nil, nil
	}
	return c.commitLocked(it)
}

// Discard drops the whole session without touching the document. It does not
// apply while a job is outstanding; use Cancel for that.
func (c *Controller) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.phase == PhaseIdle:
		return nil
	case c.phase.Busy():
		return services.Wrap(services.ErrStagingBusy, component, "discard", "job still running; cancel it first", nil)
	}
	c.logger.Info("staging session discarded",
		logging.String(logging.FieldSessionID, c.sessionID),
		logging.String("phase", string(PhaseResolved)),
		logging.String(logging.FieldEventType, "staging_discarded"),
	)
	c.resetLocked()
	return nil
}

// DiscardSelected removes the selected item. Removing the last item ends a
// session that is not waiting on its job.
func (c *Controller) DiscardSelected() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected < 0 || c.selected >= len(c.items) {
		return services.Wrap(services.ErrValidation, component, "discard selected", "no staged item selected", nil)
	}
	if c.items[c.selected].Status.inFlight() || c.items[c.selected].Status == ItemResolving {
		return services.Wrap(services.ErrValidation, component, "discard selected", "selected item is still in flight", nil)
	}
	c.items = append(c.items[:c.selected], c.items[c.selected+1:]...)
	if c.selected >= len(c.items) {
		c.selected = len(c.items) - 1
	}
	if len(c.items) == 0 && !c.phase.Busy() {
		c.resetLocked()
	}
	return nil
}

// Cancel ends an outstanding session and returns the job id to cancel
// remotely. Late events for the job no longer match once it returns.
func (c *Controller) Cancel() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.phase.Busy() {
		return "", false
	}
	jobID := c.jobID
	c.logger.Info("staging session cancelled",
		logging.String(logging.FieldSessionID, c.sessionID),
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldEventType, "staging_cancelled"),
	)
	c.resetLocked()
	return jobID, jobID != ""
}

// SelectNext moves the selection forward, wrapping around.
func (c *Controller) SelectNext() int {
	return c.step(1)
}

// SelectPrev moves the selection back, wrapping around.
func (c *Controller) SelectPrev() int {
	return c.step(-1)
}

func (c *Controller) step(delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.items)
	if n == 0 {
		return -1
	}
	if c.selected < 0 {
		c.selected = 0
		return 0
	}
	c.selected = ((c.selected+delta)%n + n) % n
	return c.selected
}

// Snapshot returns a copy of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]Item, len(c.items))
	for i, it := range c.items {
		items[i] = it.clone()
	}
	return Snapshot{
		SessionID: c.sessionID,
		JobID:     c.jobID,
		Mode:      c.mode,
		Phase:     c.phase,
		Items:     items,
		Selected:  c.selected,
		Awaiting:  c.awaiting,
	}
}

// Reset drops the session unconditionally and returns the job id that was
// still outstanding, if any.
func (c *Controller) Reset() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var jobID string
	if c.phase.Busy() {
		jobID = c.jobID
	}
	c.resetLocked()
	return jobID
}

func (c *Controller) commitLocked(it *Item) (*Commit, error) {
	name := "Staged image"
	if it.Image != nil && it.Image.Name != "" {
		name = it.Image.Name
	}
	layerID, err := c.st.Document.AddLayer(document.KindRaster,
		document.WithName(name),
		document.WithPaint(document.PaintData{Bitmap: it.Bitmap}),
		document.WithTransform(document.Translate(it.Offset.X, it.Offset.Y)),
	)
	if err != nil {
		return nil, err
	}
	commit := &Commit{
		SessionID: c.sessionID,
		JobID:     c.jobID,
		ItemID:    it.ID,
		LayerID:   layerID,
		Offset:    it.Offset,
	}
	if it.Image != nil {
		commit.Image = *it.Image
	}
	c.logger.Info("staged image committed",
		logging.String(logging.FieldSessionID, c.sessionID),
		logging.String(logging.FieldJobID, c.jobID),
		logging.String(logging.FieldLayerID, layerID),
		logging.String("image", commit.Image.Name),
		logging.String("phase", string(PhaseResolved)),
		logging.String(logging.FieldEventType, "staging_committed"),
	)
	c.resetLocked()
	return commit, nil
}

func (c *Controller) failItemLocked(it *Item, message string) {
	it.Status = ItemFailed
	it.Error = message
	it.Preview = nil
	c.awaiting = false
	c.settleLocked()
	if c.selected < 0 {
		c.selected = c.indexLocked(it.ID)
	}
	logging.WarnWithContext(c.logger, "staged item failed", "staging_item_failed",
		logging.String(logging.FieldSessionID, c.sessionID),
		logging.String(logging.FieldJobID, c.jobID),
		logging.String("item_id", it.ID),
		logging.String("reason", message),
		logging.String(logging.FieldErrorHint, "retry the generation or discard the staged result"),
		logging.String(logging.FieldImpact, "staged item marked failed; other items kept"),
	)
}

// settleLocked moves to ready once no item is waiting on the job or on pixels.
func (c *Controller) settleLocked() {
	for _, it := range c.items {
		if it.Status.inFlight() || it.Status == ItemResolving {
			return
		}
	}
	c.phase = PhaseReady
}

func (c *Controller) matchLocked(req ResolveRequest) (*Item, error) {
	if req.SessionID == "" || req.SessionID != c.sessionID {
		return nil, staleErr("resolved", "session no longer live")
	}
	idx := c.indexLocked(req.ItemID)
	if idx < 0 {
		return nil, staleErr("resolved", "item superseded")
	}
	it := c.items[idx]
	if !req.Intermediate {
		if it.Status != ItemResolving || it.Image == nil || it.Image.Name != req.Image.Name {
			return nil, staleErr("resolved", "item no longer awaiting pixels")
		}
	}
	return it, nil
}

// liveLocked reports whether events for jobID belong to the current session.
func (c *Controller) liveLocked(jobID string) bool {
	return jobID != "" && jobID == c.jobID && c.phase != PhaseIdle
}

func (c *Controller) inFlightLocked() *Item {
	for i := len(c.items) - 1; i >= 0; i-- {
		if c.items[i].Status.inFlight() {
			return c.items[i]
		}
	}
	return nil
}

func (c *Controller) appendLocked(it *Item) *Item {
	it.ID = uuid.NewString()
	if it.Status == "" {
		it.Status = ItemPending
	}
	c.items = append(c.items, it)
	if c.selected < 0 {
		c.selected = len(c.items) - 1
	}
	return it
}

func (c *Controller) indexLocked(itemID string) int {
	for i, it := range c.items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

func (c *Controller) resetLocked() {
	c.sessionID = ""
	c.jobID = ""
	c.mode = ""
	c.phase = PhaseIdle
	c.items = nil
	c.selected = -1
	c.awaiting = false
}

func (c *Controller) jobLabel() string {
	if c.jobID == "" {
		return "(unsubmitted)"
	}
	return c.jobID
}

func staleErr(operation, message string) error {
	return services.Wrap(services.ErrStaleResult, component, operation, message, nil)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
