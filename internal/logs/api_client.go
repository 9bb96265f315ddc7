package logs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"easel/internal/api"
)

var (
	ErrAPIUnavailable = errors.New("log API unavailable")
	ErrUnauthorized   = errors.New("log API rejected the token")
)

// StatusError is a non-2xx answer from the log endpoint.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("log API: status %d", e.Code)
	}
	return fmt.Sprintf("log API: %s (status %d)", e.Message, e.Code)
}

// StreamClient fetches session events from the preview API.
type StreamClient struct {
	endpoint string
	token    string
	http     *http.Client
}

type StreamQuery struct {
	Since     uint64
	Limit     int
	Follow    bool
	Component string
}

func (q StreamQuery) encode() string {
	values := make(url.Values, 4)
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if c := strings.TrimSpace(q.Component); c != "" {
		values.Set("component", c)
	}
	return values.Encode()
}

// NewStreamClient targets the API listening on bind, which may be a bare
// host:port. It returns nil when bind is empty, meaning the preview API is
// disabled.
func NewStreamClient(bind, token string) (*StreamClient, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	u, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind %q: %w", bind, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api bind %q: missing host", bind)
	}
	endpoint := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/api/logs"}
	// No client timeout: follow requests block until ctx ends.
	return &StreamClient{endpoint: endpoint.String(), token: strings.TrimSpace(token), http: &http.Client{}}, nil
}

// Fetch performs one /api/logs request.
func (c *StreamClient) Fetch(ctx context.Context, q StreamQuery) (api.LogStreamResponse, error) {
	var out api.LogStreamResponse
	if c == nil {
		return out, ErrAPIUnavailable
	}
	target := c.endpoint
	if query := q.encode(); query != "" {
		target += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return out, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return out, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode log events: %w", err)
	}
	return out, nil
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

// IsAPIUnavailable reports whether err means nothing is listening, as opposed
// to the API answering with a failure.
func IsAPIUnavailable(err error) bool {
	if errors.Is(err, ErrAPIUnavailable) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
