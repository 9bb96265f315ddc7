package jobservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"easel/internal/api"
	"easel/internal/config"
	"easel/internal/document"
	"easel/internal/logging"
	"easel/internal/services"
)

const (
	component       = "jobservice"
	maxErrorBody    = 4 << 10
	headerAuthority = "Authorization"
)

// HTTPDoer describes the HTTP client used by the job service client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the HTTP side of the generation service.
type Client struct {
	baseURL        string
	eventsURL      string
	token          string
	queueID        string
	http           HTTPDoer
	requestTimeout time.Duration
	resolveTimeout time.Duration
	logger         *slog.Logger
	dialer         dialer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the HTTP transport, for tests.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) { c.http = doer }
}

// New builds a client from the [service] configuration section.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	svc := cfg.Service
	c := &Client{
		baseURL:        strings.TrimRight(svc.BaseURL, "/"),
		eventsURL:      svc.EventsURL,
		token:          svc.Token,
		queueID:        svc.QueueID,
		http:           http.DefaultClient,
		requestTimeout: time.Duration(svc.RequestTimeout) * time.Second,
		resolveTimeout: time.Duration(svc.ResolveTimeout) * time.Second,
		logger:         logging.NewComponentLogger(logger, component),
		dialer:         defaultDialer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type enqueueResponse struct {
	ItemID json.RawMessage `json:"item_id"`
}

// Submit uploads a submission and returns the job (queue item) id.
func (c *Client) Submit(ctx context.Context, sub Submission) (string, error) {
	if sub.Image == nil {
		return "", services.Wrap(services.ErrValidation, component, "submit", "submission has no image", nil)
	}
	params := sub.Params.withSeed()
	meta, err := json.Marshal(struct {
		Params
		Destination string `json:"destination"`
		SessionID   string `json:"session_id,omitempty"`
		Origin      string `json:"origin"`
	}{params, sub.Destination, sub.SessionID, "canvas"})
	if err != nil {
		return "", fmt.Errorf("jobservice: encode params: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("params", string(meta)); err != nil {
		return "", fmt.Errorf("jobservice: write params field: %w", err)
	}
	if err := writePNGField(writer, "image", "canvas.png", sub.Image); err != nil {
		return "", err
	}
	if sub.Mask != nil {
		if err := writePNGField(writer, "mask", "mask.png", sub.Mask); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("jobservice: close multipart writer: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx, c.requestTimeout)
	defer cancel()
	endpoint := fmt.Sprintf("%s/api/v1/queue/%s/enqueue", c.baseURL, url.PathEscape(c.queueID))
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	payload, err := c.do(req, "submit")
	if err != nil {
		return "", err
	}
	var parsed enqueueResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", services.Wrap(services.ErrTransient, component, "submit", "decode enqueue response", err)
	}
	jobID := strings.Trim(strings.TrimSpace(string(parsed.ItemID)), `"`)
	if jobID == "" || jobID == "null" {
		return "", services.Wrap(services.ErrTransient, component, "submit", "enqueue response has no item id", nil)
	}
	c.logger.Info("job submitted",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldSessionID, sub.SessionID),
		logging.String("destination", sub.Destination),
		logging.Int64("seed", *params.Seed),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	return jobID, nil
}

func writePNGField(writer *multipart.Writer, field, filename string, img image.Image) error {
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("jobservice: create %s field: %w", field, err)
	}
	if err := png.Encode(part, img); err != nil {
		return fmt.Errorf("jobservice: encode %s: %w", field, err)
	}
	return nil
}

// Cancel asks the service to stop a queued or running job.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	ctx, cancel := c.withTimeout(ctx, c.requestTimeout)
	defer cancel()
	endpoint := fmt.Sprintf("%s/api/v1/queue/%s/i/%s/cancel", c.baseURL, url.PathEscape(c.queueID), url.PathEscape(jobID))
	req, err := c.newRequest(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return err
	}
	if _, err := c.do(req, "cancel"); err != nil {
		return err
	}
	c.logger.Info("job cancelled",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldEventType, "job_cancelled"),
	)
	return nil
}

// ImageDTO fetches image metadata by name.
func (c *Client) ImageDTO(ctx context.Context, name string) (api.ImageDTO, error) {
	ctx, cancel := c.withTimeout(ctx, c.requestTimeout)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodGet, c.imageURL(name), nil)
	if err != nil {
		return api.ImageDTO{}, err
	}
	payload, err := c.do(req, "image dto")
	if err != nil {
		return api.ImageDTO{}, err
	}
	var dto api.ImageDTO
	if err := json.Unmarshal(payload, &dto); err != nil {
		return api.ImageDTO{}, services.Wrap(services.ErrTransient, component, "image dto", "decode image dto", err)
	}
	if dto.ImageName == "" {
		dto.ImageName = name
	}
	return dto, nil
}

// Resolve downloads and decodes the full-size pixels of ref.
func (c *Client) Resolve(ctx context.Context, ref document.ImageRef) (image.Image, error) {
	ctx, cancel := c.withTimeout(ctx, c.resolveTimeout)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodGet, c.imageURL(ref.Name)+"/full", nil)
	if err != nil {
		return nil, err
	}
	payload, err := c.do(req, "resolve")
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrImageResolution, component, "resolve", ref.Name, err)
	}
	return img, nil
}

func (c *Client) imageURL(name string) string {
	return fmt.Sprintf("%s/api/v1/images/i/%s", c.baseURL, url.PathEscape(name))
}

func (c *Client) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("jobservice: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set(headerAuthority, "Bearer "+c.token)
	}
	return req, nil
}

// do executes req and returns the body of a 2xx response. 404 maps to
// ErrNotFound; other failures are transient.
func (c *Client) do(req *http.Request, operation string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, operation, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := fmt.Sprintf("%s returned %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode == http.StatusNotFound {
			return nil, services.Wrap(services.ErrNotFound, component, operation, message, nil)
		}
		return nil, services.Wrap(services.ErrTransient, component, operation, message, nil)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, operation, "read response", err)
	}
	return payload, nil
}
