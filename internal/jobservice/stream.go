package jobservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"easel/internal/logging"
	"easel/internal/services"
)

type dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

func defaultDialer() dialer {
	d := *websocket.DefaultDialer
	return &d
}

// FrameHandler receives each raw event frame in arrival order. Its error is
// logged at debug level; the stream keeps reading.
type FrameHandler func(ctx context.Context, raw []byte) error

type subscribeMessage struct {
	Event string            `json:"event"`
	Data  map[string]string `json:"data"`
}

// Subscription is a live event stream.
type Subscription struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger

	mu  sync.Mutex
	err error
}

// Subscribe connects to the event stream and joins the configured queue.
// Frames are delivered from a single goroutine until Close or ctx ends.
func (c *Client) Subscribe(ctx context.Context, handler FrameHandler) (*Subscription, error) {
	if handler == nil {
		return nil, services.Wrap(services.ErrValidation, component, "subscribe", "nil frame handler", nil)
	}
	header := http.Header{}
	if c.token != "" {
		header.Set(headerAuthority, "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.eventsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "subscribe", c.eventsURL, err)
	}
	join := subscribeMessage{Event: "subscribe_queue", Data: map[string]string{"queue_id": c.queueID}}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, services.Wrap(services.ErrTransient, component, "subscribe", "join queue", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: c.logger,
	}
	go func() {
		<-streamCtx.Done()
		conn.Close()
	}()
	go s.read(streamCtx, handler)

	c.logger.Info("event stream connected",
		logging.String("url", c.eventsURL),
		logging.String("queue_id", c.queueID),
		logging.String(logging.FieldEventType, "stream_connected"),
	)
	return s, nil
}

func (s *Subscription) read(ctx context.Context, handler FrameHandler) {
	defer close(s.done)
	defer s.cancel()
	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.setErr(fmt.Errorf("read event frame: %w", err))
			logging.WarnWithContext(s.logger, "event stream interrupted", "stream_interrupted",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the generation service is reachable"),
				logging.String(logging.FieldImpact, "no job events until reconnected"),
			)
			return
		}
		if err := handler(ctx, frame); err != nil {
			s.logger.Debug("frame handler error", logging.Error(err))
		}
	}
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Done is closed once the read loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the stream ended; nil after a clean Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the stream and blocks until the read loop has exited.
func (s *Subscription) Close() error {
	s.cancel()
	<-s.done
	err := s.Err()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
