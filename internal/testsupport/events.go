package testsupport

import (
	"encoding/base64"
	"encoding/json"
	"image"
	"testing"
)

// Script builds raw job-service event frames for one job.
type Script struct {
	t         testing.TB
	JobID     string
	SessionID string
	// Destination is "canvas" or "gallery".
	Destination string
}

// NewScript starts a script for jobID.
func NewScript(t testing.TB, jobID, sessionID, destination string) *Script {
	return &Script{t: t, JobID: jobID, SessionID: sessionID, Destination: destination}
}

func (s *Script) frame(event string, data map[string]any) []byte {
	s.t.Helper()

	data["queue_item_id"] = s.JobID
	data["session_id"] = s.SessionID
	data["origin"] = "generation"
	data["destination"] = s.Destination
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		s.t.Fatalf("marshal frame: %v", err)
	}
	return raw
}

// Started announces a node.
func (s *Script) Started(sourceID string) []byte {
	return s.frame("invocation_started", map[string]any{"invocation_source_id": sourceID})
}

// Progress reports percentage in [0,1] for a node.
func (s *Script) Progress(sourceID string, percentage float64) []byte {
	return s.frame("invocation_progress", map[string]any{
		"invocation_source_id": sourceID,
		"percentage":           percentage,
		"message":              "denoising",
	})
}

// ProgressPreview reports percentage with a PNG preview of the output so far.
func (s *Script) ProgressPreview(sourceID string, percentage float64, preview image.Image) []byte {
	b := preview.Bounds()
	return s.frame("invocation_progress", map[string]any{
		"invocation_source_id": sourceID,
		"percentage":           percentage,
		"message":              "denoising",
		"image": map[string]any{
			"dataURL": "data:image/png;base64," + base64.StdEncoding.EncodeToString(PNG(s.t, preview)),
			"width":   b.Dx(),
			"height":  b.Dy(),
		},
	})
}

// CanvasOutput completes the canvas output node with an image placed at (x, y).
func (s *Script) CanvasOutput(imageName string, x, y int) []byte {
	return s.frame("invocation_complete", map[string]any{
		"invocation_source_id": "canvas_output:1",
		"result": map[string]any{
			"type":     "canvas_v2_mask_and_crop_output",
			"image":    map[string]any{"image_name": imageName},
			"offset_x": x,
			"offset_y": y,
		},
	})
}

// ImageOutput completes an ordinary node that produced imageName.
func (s *Script) ImageOutput(sourceID, imageName string) []byte {
	return s.frame("invocation_complete", map[string]any{
		"invocation_source_id": sourceID,
		"result": map[string]any{
			"type":  "image_output",
			"image": map[string]any{"image_name": imageName},
		},
	})
}

// Error fails the job at sourceID.
func (s *Script) Error(sourceID, message string) []byte {
	return s.frame("invocation_error", map[string]any{
		"invocation_source_id": sourceID,
		"error_type":           "RuntimeError",
		"error_message":        message,
	})
}
