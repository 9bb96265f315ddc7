package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"easel/internal/services"
)

// Kind is the wire name of an event.
type Kind string

const (
	KindStarted  Kind = "invocation_started"
	KindProgress Kind = "invocation_progress"
	KindComplete Kind = "invocation_complete"
	KindError    Kind = "invocation_error"
)

// Origin classifies the subsystem that enqueued a job.
type Origin string

const (
	OriginWorkflows  Origin = "workflows"
	OriginGeneration Origin = "generation"
	OriginOther      Origin = "other"
)

// Destination is where a job's output should be routed. Empty means none.
type Destination string

const (
	DestinationCanvas  Destination = "canvas"
	DestinationGallery Destination = "gallery"
)

// Result types that carry an image.
const (
	ResultImageOutput = "image_output"
	ResultMaskAndCrop = "canvas_v2_mask_and_crop_output"
)

const canvasOutputPrefix = "canvas_output"

// ImageField names an image in a result payload.
type ImageField struct {
	ImageName string `json:"image_name"`
}

// ProgressImage is the low resolution preview attached to progress events.
type ProgressImage struct {
	DataURL string `json:"dataURL"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// Result is the output of a completed invocation.
type Result struct {
	Type    string      `json:"type"`
	Image   *ImageField `json:"image,omitempty"`
	OffsetX *float64    `json:"offset_x,omitempty"`
	OffsetY *float64    `json:"offset_y,omitempty"`
	Width   int         `json:"width,omitempty"`
	Height  int         `json:"height,omitempty"`

	raw json.RawMessage
}

// ImageName returns the result image for image-bearing result types.
func (r *Result) ImageName() (string, bool) {
	if r == nil || r.Image == nil || strings.TrimSpace(r.Image.ImageName) == "" {
		return "", false
	}
	switch r.Type {
	case ResultImageOutput, ResultMaskAndCrop:
		return r.Image.ImageName, true
	default:
		return "", false
	}
}

// Raw returns the undecoded result payload.
func (r *Result) Raw() json.RawMessage {
	if r == nil {
		return nil
	}
	return r.raw
}

// Event is one decoded job event.
type Event struct {
	Kind           Kind
	JobID          string
	SessionID      string
	SourceID       string
	InvocationType string
	Origin         Origin
	Destination    Destination
	Percentage     *float64
	Message        string
	Image          *ProgressImage
	Result         *Result
	ErrorType      string
	ErrorMessage   string
}

// IsCanvasOutput reports whether the event comes from the step that produces
// the canvas output image.
func (e Event) IsCanvasOutput() bool {
	prefix, _, _ := strings.Cut(e.SourceID, ":")
	return prefix == canvasOutputPrefix
}

// Offset returns the placement carried by a mask-and-crop result, or the
// origin for other results.
func (e Event) Offset() (x, y float64) {
	if e.Result == nil || e.Result.Type != ResultMaskAndCrop {
		return 0, 0
	}
	if e.Result.OffsetX != nil {
		x = *e.Result.OffsetX
	}
	if e.Result.OffsetY != nil {
		y = *e.Result.OffsetY
	}
	return x, y
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wireData struct {
	QueueItemID        flexID          `json:"queue_item_id"`
	SessionID          string          `json:"session_id"`
	InvocationSourceID string          `json:"invocation_source_id"`
	Invocation         *wireInvocation `json:"invocation"`
	Origin             *string         `json:"origin"`
	Destination        *string         `json:"destination"`
	Percentage         *float64        `json:"percentage"`
	Message            string          `json:"message"`
	Image              *ProgressImage  `json:"image"`
	Result             json.RawMessage `json:"result"`
	ErrorType          string          `json:"error_type"`
	ErrorMessage       string          `json:"error_message"`
}

type wireInvocation struct {
	Type string `json:"type"`
}

// flexID accepts ids sent as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("queue item id %s is not an integer", n)
	}
	*f = flexID(n.String())
	return nil
}

// Decode parses one frame of the event stream. Failures wrap ErrEventDecode.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, decodeErr("parse envelope", err)
	}
	kind := Kind(strings.TrimSpace(env.Event))
	switch kind {
	case KindStarted, KindProgress, KindComplete, KindError:
	default:
		return Event{}, decodeErr(fmt.Sprintf("unknown event %q", env.Event), nil)
	}
	if len(env.Data) == 0 {
		return Event{}, decodeErr("missing data", nil)
	}

	var data wireData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Event{}, decodeErr("parse "+string(kind), err)
	}
	if data.QueueItemID == "" {
		return Event{}, decodeErr("missing queue_item_id", nil)
	}

	evt := Event{
		Kind:         kind,
		JobID:        string(data.QueueItemID),
		SessionID:    data.SessionID,
		SourceID:     data.InvocationSourceID,
		Origin:       parseOrigin(data.Origin),
		Percentage:   data.Percentage,
		Message:      data.Message,
		Image:        data.Image,
		ErrorType:    data.ErrorType,
		ErrorMessage: data.ErrorMessage,
	}
	if data.Destination != nil {
		evt.Destination = Destination(strings.TrimSpace(*data.Destination))
	}
	if data.Invocation != nil {
		evt.InvocationType = data.Invocation.Type
	}
	if evt.Percentage != nil && (*evt.Percentage < 0 || *evt.Percentage > 1) {
		return Event{}, decodeErr(fmt.Sprintf("percentage %v out of range", *evt.Percentage), nil)
	}
	if kind == KindComplete {
		if len(data.Result) == 0 || bytes.Equal(bytes.TrimSpace(data.Result), []byte("null")) {
			return Event{}, decodeErr("complete event without result", nil)
		}
		var result Result
		if err := json.Unmarshal(data.Result, &result); err != nil {
			return Event{}, decodeErr("parse result", err)
		}
		result.raw = append(json.RawMessage(nil), data.Result...)
		evt.Result = &result
	}
	return evt, nil
}

func parseOrigin(value *string) Origin {
	if value == nil {
		return OriginOther
	}
	switch o := Origin(strings.TrimSpace(*value)); o {
	case OriginWorkflows, OriginGeneration:
		return o
	default:
		return OriginOther
	}
}

func decodeErr(message string, err error) error {
	return services.Wrap(services.ErrEventDecode, "ingestor", "decode", message, err)
}
