package document

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"easel/internal/logging"
	"easel/internal/services"
)

const component = "document"

// Direction selects how Reorder moves a layer in the stack.
type Direction string

const (
	Up      Direction = "up"
	Down    Direction = "down"
	ToFront Direction = "front"
	ToBack  Direction = "back"
)

// ParseDirection accepts up, down, front, back (and raise/lower aliases).
func ParseDirection(value string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "up", "raise":
		return Up, nil
	case "down", "lower":
		return Down, nil
	case "front", "tofront", "to_front", "top":
		return ToFront, nil
	case "back", "toback", "to_back", "bottom":
		return ToBack, nil
	default:
		return "", fmt.Errorf("unknown direction %q", value)
	}
}

// Document is the mutable layer set of one canvas.
type Document struct {
	mu       sync.RWMutex
	version  uint64
	layers   []*Layer
	nextSeq  uint64
	selected string
	width    int
	height   int
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Document.
type Option func(*Document)

// WithLogger routes document diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Document) { d.logger = logging.NewComponentLogger(logger, component) }
}

// WithSize sets the document frame used for flattening.
func WithSize(width, height int) Option {
	return func(d *Document) {
		d.width = width
		d.height = height
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Document) { d.now = now }
}

// New builds an empty document.
func New(opts ...Option) *Document {
	d := &Document{
		width:  1024,
		height: 1024,
		logger: logging.NewComponentLogger(nil, component),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// LayerOption customizes a layer at creation.
type LayerOption func(*Layer)

func WithName(name string) LayerOption {
	return func(l *Layer) { l.Name = strings.TrimSpace(name) }
}

func WithConfig(cfg Config) LayerOption {
	return func(l *Layer) { l.Config = cfg }
}

func WithPaint(p PaintData) LayerOption {
	return func(l *Layer) { l.Paint = p.clone() }
}

func WithTransform(t Transform) LayerOption {
	return func(l *Layer) { l.Transform = t }
}

func WithZIndex(z int) LayerOption {
	return func(l *Layer) { l.ZIndex = z }
}

func WithEnabled(enabled bool) LayerOption {
	return func(l *Layer) { l.Enabled = enabled }
}

// Version returns the mutation counter.
func (d *Document) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Size returns the document frame.
func (d *Document) Size() (int, int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.width, d.height
}

// AddLayer creates a layer of kind on top of the stack, selects it, and
// returns its id.
func (d *Document) AddLayer(kind Kind, opts ...LayerOption) (string, error) {
	if !kind.Valid() {
		return "", services.Wrap(services.ErrValidation, component, "add layer", fmt.Sprintf("unknown kind %q", kind), nil)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	layer := &Layer{
		ID:        uuid.NewString(),
		Kind:      kind,
		Enabled:   true,
		Transform: Identity(),
		ZIndex:    d.topZLocked() + 1,
	}
	for _, opt := range opts {
		opt(layer)
	}
	if layer.Config == nil {
		layer.Config = d.defaultConfigLocked(kind)
	}
	if layer.Config.Kind() != kind {
		return "", services.Wrap(services.ErrValidation, component, "add layer",
			fmt.Sprintf("config for %s given to %s layer", layer.Config.Kind(), kind), nil)
	}
	if layer.Name == "" {
		layer.Name = fmt.Sprintf("%s %d", kind.DisplayName(), d.countKindLocked(kind)+1)
	}
	d.nextSeq++
	layer.seq = d.nextSeq
	layer.TouchedAt = d.now()

	d.layers = append(d.layers, layer)
	d.selected = layer.ID
	d.bumpLocked()

	d.logger.Debug("layer added",
		logging.String(logging.FieldLayerID, layer.ID),
		logging.String("kind", string(kind)),
		logging.Int("z_index", layer.ZIndex),
		logging.Uint64(logging.FieldDocVersion, d.version),
	)
	return layer.ID, nil
}

// RemoveLayer deletes a layer.
func (d *Document) RemoveLayer(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.indexLocked(id)
	if idx < 0 {
		return d.notFound("remove layer", id)
	}
	d.layers = append(d.layers[:idx], d.layers[idx+1:]...)
	if d.selected == id {
		d.selected = ""
	}
	d.bumpLocked()
	return nil
}

// ResetLayer restores default paint and config. Only raster and regional
// guidance layers can be reset; other kinds report ErrUnsupportedOperation and
// are left untouched. A reset regional guidance layer keeps its mask colour.
func (d *Document) ResetLayer(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	layer := d.findLocked(id)
	if layer == nil {
		return d.notFound("reset layer", id)
	}
	if !layer.Kind.Resettable() {
		err := services.Wrap(services.ErrUnsupportedOperation, component, "reset layer",
			fmt.Sprintf("%s layers cannot be reset", layer.Kind), nil)
		logging.WarnWithContext(d.logger, "layer reset not supported", "layer_reset_unsupported",
			logging.String(logging.FieldLayerID, id),
			logging.String("kind", string(layer.Kind)),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "layer left unchanged"),
		)
		return err
	}

	cfg := DefaultConfig(layer.Kind)
	if prev, ok := layer.Config.(RegionalGuidanceConfig); ok {
		rg := cfg.(RegionalGuidanceConfig)
		rg.MaskColor = prev.MaskColor
		cfg = rg
	}
	layer.Config = cfg
	layer.Paint = PaintData{}
	layer.Transform = Identity()
	layer.Enabled = true
	d.bumpLocked()
	return nil
}

// Reorder moves a layer within the stack and renumbers zIndex densely. A move
// that leaves the order unchanged is not a mutation.
func (d *Document) Reorder(id string, dir Direction) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ordered := d.orderedLocked()
	from := -1
	for i, l := range ordered {
		if l.ID == id {
			from = i
			break
		}
	}
	if from < 0 {
		return d.notFound("reorder layer", id)
	}

	to := from
	switch dir {
	case Up:
		to = min(from+1, len(ordered)-1)
	case Down:
		to = max(from-1, 0)
	case ToFront:
		to = len(ordered) - 1
	case ToBack:
		to = 0
	default:
		return services.Wrap(services.ErrValidation, component, "reorder layer", fmt.Sprintf("unknown direction %q", dir), nil)
	}
	if to == from {
		return nil
	}

	moving := ordered[from]
	ordered = append(ordered[:from], ordered[from+1:]...)
	ordered = append(ordered[:to], append([]*Layer{moving}, ordered[to:]...)...)
	for i, l := range ordered {
		l.ZIndex = i
	}
	d.bumpLocked()
	return nil
}

// SetEnabled toggles visibility. Setting the current value is not a mutation.
func (d *Document) SetEnabled(id string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	layer := d.findLocked(id)
	if layer == nil {
		return d.notFound("set enabled", id)
	}
	if layer.Enabled != enabled {
		layer.Enabled = enabled
		d.bumpLocked()
	}
	return nil
}

// SetLocked toggles the lock that blocks move and transform.
func (d *Document) SetLocked(id string, locked bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	layer := d.findLocked(id)
	if layer == nil {
		return d.notFound("set locked", id)
	}
	if layer.Locked != locked {
		layer.Locked = locked
		d.bumpLocked()
	}
	return nil
}

// Select makes id the selected layer; an empty id clears the selection.
func (d *Document) Select(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id == "" {
		if d.selected != "" {
			d.selected = ""
			d.bumpLocked()
		}
		return nil
	}
	layer := d.findLocked(id)
	if layer == nil {
		return d.notFound("select layer", id)
	}
	layer.TouchedAt = d.now()
	d.selected = id
	d.bumpLocked()
	return nil
}

// Selected returns the selected layer id.
func (d *Document) Selected() (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selected, d.selected != ""
}

// SetConfig replaces the kind-specific payload of a layer.
func (d *Document) SetConfig(id string, cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	layer := d.findLocked(id)
	if layer == nil {
		return d.notFound("set config", id)
	}
	if cfg == nil || cfg.Kind() != layer.Kind {
		return services.Wrap(services.ErrValidation, component, "set config", "config kind does not match layer", nil)
	}
	layer.Config = cfg.clone()
	layer.TouchedAt = d.now()
	d.bumpLocked()
	return nil
}

// MutatePaintData applies patch to a layer as a single mutation.
func (d *Document) MutatePaintData(id string, patch Patch) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	layer := d.findLocked(id)
	if layer == nil {
		return d.notFound("mutate paint", id)
	}
	if patch.IsZero() {
		return nil
	}
	patch.apply(layer)
	d.bumpLocked()
	return nil
}

// Clear removes every layer.
func (d *Document) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.layers = nil
	d.selected = ""
	d.bumpLocked()
}

// Layer returns a copy of one layer.
func (d *Document) Layer(id string) (Layer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	layer := d.findLocked(id)
	if layer == nil {
		return Layer{}, false
	}
	return layer.Clone(), true
}

// LayerAt returns the topmost enabled layer whose bounds contain p. Hidden
// layers never capture the pointer.
func (d *Document) LayerAt(p Point) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ordered := d.orderedLocked()
	for i := len(ordered) - 1; i >= 0; i-- {
		if ordered[i].Enabled && ordered[i].Bounds().Contains(p) {
			return ordered[i].ID, true
		}
	}
	return "", false
}

// Snapshot returns an immutable copy of the document in draw order.
func (d *Document) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ordered := d.orderedLocked()
	layers := make([]Layer, len(ordered))
	for i, l := range ordered {
		layers[i] = l.Clone()
	}
	return Snapshot{
		Version:  d.version,
		Width:    d.width,
		Height:   d.height,
		Selected: d.selected,
		Layers:   layers,
	}
}

func (d *Document) notFound(operation, id string) error {
	err := services.Wrap(services.ErrLayerNotFound, component, operation, id, nil)
	logging.WarnWithContext(d.logger, "layer not found", "layer_not_found",
		logging.String(logging.FieldLayerID, id),
		logging.String("operation", operation),
		logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
		logging.String(logging.FieldImpact, "operation ignored"),
	)
	return err
}

func (d *Document) bumpLocked() {
	d.version++
}

func (d *Document) indexLocked(id string) int {
	for i, l := range d.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (d *Document) findLocked(id string) *Layer {
	if idx := d.indexLocked(id); idx >= 0 {
		return d.layers[idx]
	}
	return nil
}

func (d *Document) topZLocked() int {
	top := -1
	for _, l := range d.layers {
		if l.ZIndex > top {
			top = l.ZIndex
		}
	}
	return top
}

func (d *Document) countKindLocked(kind Kind) int {
	n := 0
	for _, l := range d.layers {
		if l.Kind == kind {
			n++
		}
	}
	return n
}

func (d *Document) defaultConfigLocked(kind Kind) Config {
	cfg := DefaultConfig(kind)
	if rg, ok := cfg.(RegionalGuidanceConfig); ok {
		rg.MaskColor = maskPalette[d.countKindLocked(KindRegionalGuidance)%len(maskPalette)]
		return rg
	}
	return cfg
}

// orderedLocked returns layers sorted by zIndex, then insertion order.
func (d *Document) orderedLocked() []*Layer {
	ordered := append([]*Layer(nil), d.layers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ZIndex != ordered[j].ZIndex {
			return ordered[i].ZIndex < ordered[j].ZIndex
		}
		return ordered[i].seq < ordered[j].seq
	})
	return ordered
}
