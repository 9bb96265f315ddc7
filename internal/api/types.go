package api

import (
	"encoding/json"
	"strings"

	"easel/internal/document"
	"easel/internal/logging"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// NoBoard is the board id used for images that belong to no board.
const NoBoard = "none"

// ImageDTO describes an image held by the generation service.
type ImageDTO struct {
	ImageName      string `json:"image_name"`
	ImageURL       string `json:"image_url,omitempty"`
	ThumbnailURL   string `json:"thumbnail_url,omitempty"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	BoardID        string `json:"board_id,omitempty"`
	Category       string `json:"image_category,omitempty"`
	IsIntermediate bool   `json:"is_intermediate"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// Ref returns the document reference for the image.
func (d ImageDTO) Ref() document.ImageRef {
	return document.ImageRef{Name: d.ImageName, Width: d.Width, Height: d.Height}
}

// Board returns the board id, or NoBoard when unset.
func (d ImageDTO) Board() string {
	if b := strings.TrimSpace(d.BoardID); b != "" {
		return b
	}
	return NoBoard
}

// Rect is a document-space box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Layer describes a document layer in a transport-friendly format.
type Layer struct {
	ID        string             `json:"id"`
	Kind      string             `json:"kind"`
	KindLabel string             `json:"kindLabel"`
	Name      string             `json:"name"`
	Enabled   bool               `json:"enabled"`
	Locked    bool               `json:"locked"`
	Selected  bool               `json:"selected"`
	ZIndex    int                `json:"zIndex"`
	Transform document.Transform `json:"transform"`
	Strokes   int                `json:"strokes"`
	HasBitmap bool               `json:"hasBitmap"`
	Bounds    *Rect              `json:"bounds,omitempty"`
	Config    json.RawMessage    `json:"config,omitempty"`
	TouchedAt string             `json:"touchedAt,omitempty"`
}

// StagedItem describes one staged image.
type StagedItem struct {
	ID        string   `json:"id"`
	Image     string   `json:"image,omitempty"`
	OffsetX   float64  `json:"offsetX"`
	OffsetY   float64  `json:"offsetY"`
	Progress  *float64 `json:"progress"`
	Status    string   `json:"status"`
	Error     string   `json:"error,omitempty"`
	HasPixels bool     `json:"hasPixels"`
}

// Staging summarizes the staging session.
type Staging struct {
	SessionID string       `json:"sessionId,omitempty"`
	JobID     string       `json:"jobId,omitempty"`
	Mode      string       `json:"mode,omitempty"`
	Phase     string       `json:"phase"`
	Awaiting  bool         `json:"awaiting"`
	Selected  int          `json:"selected"`
	Items     []StagedItem `json:"items"`
}

// Progress is the latest progress report for the ambient indicator.
type Progress struct {
	JobID      string   `json:"jobId"`
	Message    string   `json:"message,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
	At         string   `json:"at,omitempty"`
}

// Execution mirrors one workflow node execution record.
type Execution struct {
	NodeID    string   `json:"nodeId"`
	Status    string   `json:"status"`
	Progress  *float64 `json:"progress"`
	Outputs   int      `json:"outputs"`
	Error     string   `json:"error,omitempty"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}

// SessionStatus aggregates runtime information for API consumers.
type SessionStatus struct {
	Running        bool      `json:"running"`
	PID            int       `json:"pid"`
	DocVersion     uint64    `json:"docVersion"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	LayerCount     int       `json:"layerCount"`
	Selected       string    `json:"selected,omitempty"`
	Tool           string    `json:"tool"`
	Staging        Staging   `json:"staging"`
	LastProgress   *Progress `json:"lastProgress,omitempty"`
	Connected      bool      `json:"connected"`
	LockFilePath   string    `json:"lockFilePath,omitempty"`
	GalleryDBPath  string    `json:"galleryDbPath,omitempty"`
	PreviewAddress string    `json:"previewAddress,omitempty"`
}

// LayersResponse wraps the layer list.
type LayersResponse struct {
	Version uint64  `json:"version"`
	Layers  []Layer `json:"layers"`
}

// ExecutionsResponse wraps the execution table.
type ExecutionsResponse struct {
	Executions []Execution `json:"executions"`
}

// GalleryImage describes an image recorded in the local gallery.
type GalleryImage struct {
	ImageName  string `json:"imageName"`
	BoardID    string `json:"boardId"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Category   string `json:"category,omitempty"`
	InsertedAt string `json:"insertedAt,omitempty"`
}

// LogStreamResponse wraps a page of session events.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// GalleryResponse wraps a gallery listing.
type GalleryResponse struct {
	Board  string         `json:"board"`
	Images []GalleryImage `json:"images"`
}
