package staging

import (
	"fmt"
	"image"
	"strings"

	"easel/internal/document"
)

// Mode selects where a job's output lands.
type Mode string

const (
	ModeCanvas  Mode = "canvas"
	ModeGallery Mode = "gallery"
)

// ParseMode accepts a staging mode name.
func ParseMode(value string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(value))); m {
	case ModeCanvas, ModeGallery:
		return m, nil
	default:
		return "", fmt.Errorf("unknown staging mode %q", value)
	}
}

// Phase is the controller state.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAwaiting  Phase = "awaiting"
	PhaseStreaming Phase = "streaming"
	// PhaseReady holds resolved or failed items until the user accepts or
	// discards them.
	PhaseReady Phase = "ready"
	// PhaseResolved is transient: it is logged when a session ends with a
	// commit or discard and is never observable in a snapshot.
	PhaseResolved Phase = "resolved"
)

// Busy reports whether a job is outstanding.
func (p Phase) Busy() bool {
	return p == PhaseAwaiting || p == PhaseStreaming
}

// ItemStatus tracks one staged image.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemStreaming ItemStatus = "streaming"
	ItemResolving ItemStatus = "resolving"
	ItemReady     ItemStatus = "ready"
	ItemFailed    ItemStatus = "failed"
)

func (s ItemStatus) inFlight() bool {
	return s == ItemPending || s == ItemStreaming
}

// Item is one staged image. Progress is nil until the job reports a value.
type Item struct {
	ID       string
	Image    *document.ImageRef
	Offset   document.Point
	Progress *float64
	Status   ItemStatus
	Error    string
	// Bitmap holds the resolved final pixels.
	Bitmap image.Image
	// Preview holds the latest intermediate pixels while the job runs.
	Preview image.Image
}

func (it Item) clone() Item {
	if it.Image != nil {
		ref := *it.Image
		it.Image = &ref
	}
	if it.Progress != nil {
		p := *it.Progress
		it.Progress = &p
	}
	return it
}

// Snapshot is an immutable copy of the staging session.
type Snapshot struct {
	SessionID string
	JobID     string
	Mode      Mode
	Phase     Phase
	Items     []Item
	// Selected indexes Items; -1 when nothing is selected.
	Selected int
	// Awaiting is true until the first result or failure arrives.
	Awaiting bool
}

// Active reports whether a session exists.
func (s Snapshot) Active() bool {
	return s.Phase != PhaseIdle && s.Phase != ""
}

// SelectedItem returns the item drawn on the canvas.
func (s Snapshot) SelectedItem() (Item, bool) {
	if s.Selected < 0 || s.Selected >= len(s.Items) {
		return Item{}, false
	}
	return s.Items[s.Selected], true
}

// ResolveRequest asks the caller to fetch pixels for a staged item and report
// back through Resolved or ResolveFailed.
type ResolveRequest struct {
	SessionID string
	JobID     string
	ItemID    string
	Image     document.ImageRef
	// Intermediate requests only refresh the live preview.
	Intermediate bool
}

// Key identifies the request for cancellation bookkeeping.
func (r ResolveRequest) Key() string {
	if r.Intermediate {
		return r.ItemID + "/preview"
	}
	return r.ItemID
}

// Commit describes a staged item written to the document.
type Commit struct {
	SessionID string
	JobID     string
	ItemID    string
	LayerID   string
	Image     document.ImageRef
	Offset    document.Point
}
