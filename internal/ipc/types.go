package ipc

import (
	"easel/internal/api"
	"easel/internal/document"
	"easel/internal/jobservice"
)

// StatusRequest fetches session status.
type StatusRequest struct{}

// StatusResponse wraps the session summary.
type StatusResponse struct {
	Status api.SessionStatus `json:"status"`
}

// LayersRequest lists the layer stack.
type LayersRequest struct{}

// LayersResponse mirrors the HTTP API layer list.
type LayersResponse = api.LayersResponse

// LayerAddRequest creates a layer on top of the stack.
type LayerAddRequest struct {
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`
}

// LayerAddResponse returns the new layer id.
type LayerAddResponse struct {
	ID      string `json:"id"`
	Version uint64 `json:"version"`
}

// Layer actions accepted by LayerRequest.
const (
	LayerRemove  = "remove"
	LayerReset   = "reset"
	LayerRaise   = "raise"
	LayerLower   = "lower"
	LayerFront   = "front"
	LayerBack    = "back"
	LayerEnable  = "enable"
	LayerDisable = "disable"
	LayerLock    = "lock"
	LayerUnlock  = "unlock"
	LayerSelect  = "select"
)

// LayerRequest applies Action to the layer ID.
type LayerRequest struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// LayerResponse reports the document version after the action.
type LayerResponse struct {
	Version uint64 `json:"version"`
}

// ClearRequest removes every layer.
type ClearRequest struct{}

// DrawRequest replays one gesture with Tool. LayerID, when set, is selected
// first.
type DrawRequest struct {
	Tool    string           `json:"tool"`
	LayerID string           `json:"layer_id,omitempty"`
	Points  []document.Point `json:"points"`
}

// DrawResponse reports whether the gesture changed the document.
type DrawResponse struct {
	Changed bool   `json:"changed"`
	Version uint64 `json:"version"`
}

// SubmitRequest enqueues a generation job. Zero-valued parameters take the
// configured defaults.
type SubmitRequest struct {
	Mode           string  `json:"mode,omitempty"`
	PositivePrompt string  `json:"positive_prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Model          string  `json:"model,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	CFGScale       float64 `json:"cfg_scale,omitempty"`
	Scheduler      string  `json:"scheduler,omitempty"`
	Strength       float64 `json:"strength,omitempty"`
	Seed           *int64  `json:"seed,omitempty"`
}

// Apply overlays the non-zero fields of r on defaults.
func (r SubmitRequest) Apply(defaults jobservice.Params) jobservice.Params {
	p := defaults
	p.PositivePrompt = r.PositivePrompt
	p.NegativePrompt = r.NegativePrompt
	if r.Model != "" {
		p.Model = r.Model
	}
	if r.Steps > 0 {
		p.Steps = r.Steps
	}
	if r.CFGScale > 0 {
		p.CFGScale = r.CFGScale
	}
	if r.Scheduler != "" {
		p.Scheduler = r.Scheduler
	}
	if r.Strength > 0 {
		p.Strength = r.Strength
	}
	if r.Seed != nil {
		seed := *r.Seed
		p.Seed = &seed
	}
	return p
}

// SubmitResponse identifies the enqueued job.
type SubmitResponse struct {
	SessionID    string   `json:"session_id"`
	JobID        string   `json:"job_id"`
	Mode         string   `json:"mode"`
	Placeholders []string `json:"placeholders,omitempty"`
}

// CancelRequest cancels the outstanding job.
type CancelRequest struct{}

// CancelResponse reports the cancelled job, if any.
type CancelResponse struct {
	JobID     string `json:"job_id,omitempty"`
	Cancelled bool   `json:"cancelled"`
}

// AcceptRequest commits the selected staged item.
type AcceptRequest struct{}

// AcceptResponse describes the commit, when one happened.
type AcceptResponse struct {
	Committed bool   `json:"committed"`
	LayerID   string `json:"layer_id,omitempty"`
	ImageName string `json:"image_name,omitempty"`
}

// DiscardRequest drops the staging session, or only the selected item.
type DiscardRequest struct {
	SelectedOnly bool `json:"selected_only"`
}

// DiscardResponse is empty on success.
type DiscardResponse struct{}

// StagingSelectRequest moves the staging selection forward or back.
type StagingSelectRequest struct {
	Previous bool `json:"previous"`
}

// StagingSelectResponse returns the new selection index.
type StagingSelectResponse struct {
	Index int `json:"index"`
}

// Render targets accepted by RenderRequest.
const (
	RenderInteractive = "interactive"
	RenderSubmission  = "submission"
	RenderMask        = "mask"
)

// RenderRequest asks for a PNG of the document.
type RenderRequest struct {
	Target string `json:"target"`
}

// RenderResponse carries the encoded frame.
type RenderResponse struct {
	PNG     []byte   `json:"png"`
	Version uint64   `json:"version"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
	Errors  []string `json:"errors,omitempty"`
}

// GalleryListRequest lists gallery images. An empty Board uses the current
// selection.
type GalleryListRequest struct {
	Board string `json:"board,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// BoardCount reports how many images a board holds.
type BoardCount struct {
	BoardID string `json:"board_id"`
	Images  int    `json:"images"`
}

// GalleryListResponse returns images and per-board counts.
type GalleryListResponse struct {
	Board  string             `json:"board"`
	Images []api.GalleryImage `json:"images"`
	Boards []BoardCount       `json:"boards"`
}

// LogTailRequest reads session events after Since.
type LogTailRequest struct {
	Since     uint64 `json:"since"`
	Limit     int    `json:"limit"`
	Follow    bool   `json:"follow"`
	WaitMilli int    `json:"wait_ms"`
}

// LogTailResponse mirrors the HTTP API log page.
type LogTailResponse = api.LogStreamResponse

func layersResponse(snap document.Snapshot) LayersResponse {
	return LayersResponse{Version: snap.Version, Layers: api.FromSnapshot(snap)}
}
