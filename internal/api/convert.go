package api

import (
	"encoding/json"
	"time"

	"easel/internal/document"
	"easel/internal/execution"
	"easel/internal/staging"
	"easel/internal/state"
)

// FromLayer converts a document layer to its API representation.
func FromLayer(l document.Layer, selectedID string) Layer {
	dto := Layer{
		ID:        l.ID,
		Kind:      string(l.Kind),
		KindLabel: l.Kind.DisplayName(),
		Name:      l.Name,
		Enabled:   l.Enabled,
		Locked:    l.Locked,
		Selected:  l.ID == selectedID,
		ZIndex:    l.ZIndex,
		Transform: l.Transform,
		Strokes:   len(l.Paint.Strokes),
		HasBitmap: l.Paint.Bitmap != nil || len(l.Paint.Encoded) > 0,
		TouchedAt: FormatTime(l.TouchedAt),
	}
	if b := l.Bounds(); !b.Empty() {
		dto.Bounds = &Rect{X: b.MinX, Y: b.MinY, Width: b.MaxX - b.MinX, Height: b.MaxY - b.MinY}
	}
	if l.Config != nil {
		if raw, err := json.Marshal(l.Config); err == nil {
			dto.Config = raw
		}
	}
	return dto
}

// FromSnapshot converts every layer of a snapshot, keeping draw order.
func FromSnapshot(snap document.Snapshot) []Layer {
	out := make([]Layer, 0, len(snap.Layers))
	for _, l := range snap.Layers {
		out = append(out, FromLayer(l, snap.Selected))
	}
	return out
}

// FromStaging converts a staging snapshot.
func FromStaging(snap staging.Snapshot) Staging {
	phase := snap.Phase
	if phase == "" {
		phase = staging.PhaseIdle
	}
	dto := Staging{
		SessionID: snap.SessionID,
		JobID:     snap.JobID,
		Mode:      string(snap.Mode),
		Phase:     string(phase),
		Awaiting:  snap.Awaiting,
		Selected:  snap.Selected,
		Items:     make([]StagedItem, 0, len(snap.Items)),
	}
	for _, it := range snap.Items {
		item := StagedItem{
			ID:        it.ID,
			OffsetX:   it.Offset.X,
			OffsetY:   it.Offset.Y,
			Progress:  it.Progress,
			Status:    string(it.Status),
			Error:     it.Error,
			HasPixels: it.Bitmap != nil || it.Preview != nil,
		}
		if it.Image != nil {
			item.Image = it.Image.Name
		}
		dto.Items = append(dto.Items, item)
	}
	return dto
}

// FromProgress converts a tracked progress event.
func FromProgress(evt state.ProgressEvent) *Progress {
	return &Progress{
		JobID:      evt.JobID,
		Message:    evt.Message,
		Percentage: evt.Percentage,
		At:         FormatTime(evt.At),
	}
}

// FromExecutions converts the execution table.
func FromExecutions(states []execution.State) []Execution {
	out := make([]Execution, 0, len(states))
	for _, st := range states {
		out = append(out, Execution{
			NodeID:    st.NodeID,
			Status:    string(st.Status),
			Progress:  st.Progress,
			Outputs:   len(st.Outputs),
			Error:     st.Error,
			UpdatedAt: FormatTime(st.UpdatedAt),
		})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
