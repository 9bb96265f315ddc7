package events

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"easel/internal/api"
	"easel/internal/document"
	"easel/internal/execution"
	"easel/internal/logging"
	"easel/internal/notifications"
	"easel/internal/services"
	"easel/internal/staging"
	"easel/internal/state"
)

const component = "ingestor"

// ImageLookup fetches image metadata from the generation service.
type ImageLookup interface {
	ImageDTO(ctx context.Context, name string) (api.ImageDTO, error)
}

// GalleryInserter records finished images. Insert reports whether the image
// was new.
type GalleryInserter interface {
	Insert(ctx context.Context, dto api.ImageDTO) (bool, error)
}

// Resolver fetches pixels for staged items asynchronously and reports back to
// the staging controller.
type Resolver interface {
	Resolve(req staging.ResolveRequest)
}

// Deps are the collaborators of an Ingestor. State and Staging are required.
type Deps struct {
	State    *state.Handle
	Staging  *staging.Controller
	Images   ImageLookup
	Gallery  GalleryInserter
	Notifier notifications.Service
	Resolver Resolver
	Logger   *slog.Logger
	Sampler  *logging.ProgressSampler
	// RecentCapacity bounds the memory of inserted image names.
	RecentCapacity int
}

// Ingestor routes job events. Dispatch calls are serialized.
type Ingestor struct {
	st       *state.Handle
	staging  *staging.Controller
	images   ImageLookup
	gallery  GalleryInserter
	notifier notifications.Service
	resolver Resolver
	logger   *slog.Logger
	sampler  *logging.ProgressSampler
	now      func() time.Time

	mu     sync.Mutex
	recent *recentSet
}

// New builds an ingestor.
func New(deps Deps) *Ingestor {
	sampler := deps.Sampler
	if sampler == nil {
		sampler = logging.NewProgressSampler(10)
	}
	return &Ingestor{
		st:       deps.State,
		staging:  deps.Staging,
		images:   deps.Images,
		gallery:  deps.Gallery,
		notifier: deps.Notifier,
		resolver: deps.Resolver,
		logger:   logging.NewComponentLogger(deps.Logger, component),
		sampler:  sampler,
		now:      time.Now,
		recent:   newRecentSet(deps.RecentCapacity),
	}
}

// HandleFrame decodes and dispatches one raw frame. Decode failures are logged
// and returned; the caller keeps reading.
func (i *Ingestor) HandleFrame(ctx context.Context, raw []byte) error {
	evt, err := Decode(raw)
	if err != nil {
		logging.WarnWithContext(i.logger, "event dropped", "event_decode_failed",
			logging.Error(err),
			logging.Int("bytes", len(raw)),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "event ignored; stream continues"),
		)
		return err
	}
	return i.Dispatch(ctx, evt)
}

// Dispatch applies one event.
func (i *Ingestor) Dispatch(ctx context.Context, evt Event) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	ctx = services.WithJobID(ctx, evt.JobID)
	switch evt.Kind {
	case KindStarted:
		i.handleStarted(evt)
	case KindProgress:
		i.handleProgress(ctx, evt)
	case KindComplete:
		i.handleComplete(ctx, evt)
		i.st.SetLastProgress(nil)
	case KindError:
		i.handleError(ctx, evt)
		i.st.SetLastProgress(nil)
	default:
		return services.Wrap(services.ErrEventDecode, component, "dispatch", fmt.Sprintf("unknown kind %q", evt.Kind), nil)
	}
	return nil
}

func (i *Ingestor) handleStarted(evt Event) {
	if evt.Origin == OriginWorkflows && evt.SourceID != "" {
		i.st.Executions.Progress(evt.SourceID, nil)
	}
}

func (i *Ingestor) handleProgress(ctx context.Context, evt Event) {
	tracked := &state.ProgressEvent{
		JobID:       evt.JobID,
		SessionID:   evt.SessionID,
		SourceID:    evt.SourceID,
		Destination: string(evt.Destination),
		Message:     evt.Message,
		Percentage:  evt.Percentage,
		At:          i.now(),
	}
	i.st.SetLastProgress(tracked)
	if evt.Destination == DestinationCanvas {
		i.st.SetLastCanvasProgress(tracked)
	}

	if evt.Origin == OriginWorkflows && evt.SourceID != "" {
		i.st.Executions.Progress(evt.SourceID, evt.Percentage)
	}

	var preview image.Image
	if evt.Destination == DestinationCanvas && evt.Image != nil {
		img, err := decodeDataURL(evt.Image.DataURL)
		if err != nil {
			i.logger.Debug("progress preview undecodable", logging.String(logging.FieldJobID, evt.JobID), logging.Error(err))
		} else {
			preview = img
		}
	}
	i.staging.Progress(evt.JobID, evt.Percentage, preview)

	percent := -1.0
	if evt.Percentage != nil {
		percent = *evt.Percentage * 100
	}
	if i.sampler.ShouldLog(evt.JobID, percent) {
		i.logger.Info("job progress",
			logging.Args(append(logging.ContextFields(ctx),
				logging.String("source_id", evt.SourceID),
				logging.Float64("percent", percent),
				logging.String("message", evt.Message),
				logging.String(logging.FieldEventType, "job_progress"),
			)...)...,
		)
	}
}

func (i *Ingestor) handleComplete(ctx context.Context, evt Event) {
	i.logger.Debug("invocation complete",
		logging.String(logging.FieldJobID, evt.JobID),
		logging.String("invocation", evt.InvocationType),
		logging.String("source_id", evt.SourceID),
		logging.String("origin", string(evt.Origin)),
	)
	switch evt.Origin {
	case OriginWorkflows:
		i.completeWorkflow(ctx, evt)
	case OriginGeneration:
		i.completeGeneration(ctx, evt)
	default:
		i.completeOther(ctx, evt)
	}
}

func (i *Ingestor) completeWorkflow(ctx context.Context, evt Event) {
	out := execution.Output{Type: evt.Result.Type, Raw: evt.Result.Raw()}
	if name, ok := evt.Result.ImageName(); ok {
		out.ImageName = name
	}
	i.st.Executions.Complete(evt.SourceID, out)

	dto, ok := i.resultImage(ctx, evt)
	if ok && !dto.IsIntermediate {
		if i.addToGallery(ctx, dto) {
			i.notifyIfUserIsLost(ctx, evt.Destination, dto)
		}
	}
}

func (i *Ingestor) completeGeneration(ctx context.Context, evt Event) {
	dto, ok := i.resultImage(ctx, evt)
	if !ok {
		return
	}

	if evt.Destination == DestinationCanvas {
		if !evt.IsCanvasOutput() {
			return
		}
		if dto.IsIntermediate {
			if req, ok := i.staging.Preview(evt.JobID, dto.Ref()); ok {
				i.resolve(req)
			}
			return
		}
		x, y := evt.Offset()
		if req, ok := i.staging.Stage(evt.JobID, dto.Ref(), document.Point{X: x, Y: y}); ok {
			i.resolve(req)
		}
		if i.addToGallery(ctx, dto) {
			i.notifyIfUserIsLost(ctx, evt.Destination, dto)
		}
		return
	}

	if dto.IsIntermediate {
		return
	}
	i.st.SetLastCanvasProgress(nil)
	i.staging.CompleteGallery(evt.JobID)
	if i.addToGallery(ctx, dto) {
		i.notifyIfUserIsLost(ctx, evt.Destination, dto)
	}
}

func (i *Ingestor) completeOther(ctx context.Context, evt Event) {
	dto, ok := i.resultImage(ctx, evt)
	if ok && !dto.IsIntermediate {
		if i.addToGallery(ctx, dto) {
			i.notifyIfUserIsLost(ctx, evt.Destination, dto)
		}
	}
}

func (i *Ingestor) handleError(ctx context.Context, evt Event) {
	message := strings.TrimSpace(evt.ErrorMessage)
	if message == "" {
		message = evt.ErrorType
	}
	if message == "" {
		message = "generation failed"
	}
	if evt.Origin == OriginWorkflows && evt.SourceID != "" {
		i.st.Executions.Fail(evt.SourceID, message)
	}
	if evt.Destination == DestinationCanvas {
		i.st.SetLastCanvasProgress(nil)
	}
	i.sampler.Forget(evt.JobID)

	if !i.staging.Fail(evt.JobID, message) {
		return
	}
	logging.WarnWithContext(i.logger, "generation failed", "job_failed",
		logging.String(logging.FieldJobID, evt.JobID),
		logging.String("error_type", evt.ErrorType),
		logging.String("reason", message),
		logging.String(logging.FieldErrorHint, "check the generation service logs"),
		logging.String(logging.FieldImpact, "staged item marked failed"),
	)
	i.publish(ctx, notifications.EventStagingFailed, notifications.Payload{"error": message, "job": evt.JobID})
}

// resultImage looks up the DTO for an image-bearing result.
func (i *Ingestor) resultImage(ctx context.Context, evt Event) (api.ImageDTO, bool) {
	name, ok := evt.Result.ImageName()
	if !ok {
		return api.ImageDTO{}, false
	}
	if i.images == nil {
		return api.ImageDTO{ImageName: name, Width: evt.Result.Width, Height: evt.Result.Height}, true
	}
	dto, err := i.images.ImageDTO(ctx, name)
	if err != nil {
		logging.WarnWithContext(i.logger, "image lookup failed", "image_lookup_failed",
			logging.String(logging.FieldJobID, evt.JobID),
			logging.String("image", name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "result not staged or added to gallery"),
		)
		if evt.Destination == DestinationCanvas && evt.IsCanvasOutput() {
			i.staging.Fail(evt.JobID, fmt.Sprintf("lookup %s: %v", name, err))
		}
		return api.ImageDTO{}, false
	}
	if dto.ImageName == "" {
		dto.ImageName = name
	}
	return dto, true
}

// addToGallery inserts a final image once. It reports whether the image was
// new, which gates notifications.
func (i *Ingestor) addToGallery(ctx context.Context, dto api.ImageDTO) bool {
	if dto.IsIntermediate {
		return false
	}
	if !i.recent.add(dto.ImageName) {
		return false
	}
	if i.gallery == nil {
		return true
	}
	inserted, err := i.gallery.Insert(ctx, dto)
	if err != nil {
		logging.WarnWithContext(i.logger, "gallery insert failed", "gallery_insert_failed",
			logging.String("image", dto.ImageName),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check gallery database permissions"),
			logging.String(logging.FieldImpact, "image missing from local gallery"),
		)
		i.recent.remove(dto.ImageName)
		return false
	}
	return inserted
}

func (i *Ingestor) notifyIfUserIsLost(ctx context.Context, destination Destination, dto api.ImageDTO) {
	prefs := i.st.Prefs()
	if !prefs.ShowSendToToasts {
		return
	}
	payload := notifications.Payload{"image": dto.ImageName, "board": dto.Board()}
	switch {
	case destination == DestinationCanvas && (prefs.ImageViewerOpen || prefs.ActiveView != state.ViewGeneration):
		i.publish(ctx, notifications.EventSentToCanvas, payload)
	case destination != DestinationCanvas && !prefs.ImageViewerOpen && prefs.ActiveView == state.ViewGeneration:
		i.publish(ctx, notifications.EventSentToGallery, payload)
	}
}

func (i *Ingestor) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if i.notifier == nil {
		return
	}
	if err := i.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(i.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ntfy topic and connectivity"),
			logging.String(logging.FieldImpact, "notification skipped"),
		)
	}
}

func (i *Ingestor) resolve(req staging.ResolveRequest) {
	if i.resolver != nil {
		i.resolver.Resolve(req)
	}
}

var errNotDataURL = errors.New("not a base64 data URL")

func decodeDataURL(value string) (image.Image, error) {
	header, payload, ok := strings.Cut(value, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, errNotDataURL
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode preview: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode preview: %w", err)
	}
	return img, nil
}
