// Package logstream pages session events from the preview API, falling back
// to the IPC socket when the API is disabled or unreachable.
package logstream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"easel/internal/ipc"
	"easel/internal/logging"
	"easel/internal/logs"
)

const followPage = 200

// TailClient captures the IPC log tail contract used for fallback streaming.
type TailClient interface {
	LogTail(req ipc.LogTailRequest) (*ipc.LogTailResponse, error)
}

// Options controls stream behavior.
type Options struct {
	Lines     int
	Follow    bool
	Component string
}

// page fetches events after since. first is true for the initial request,
// which returns the most recent limit events instead.
type page func(ctx context.Context, since uint64, limit int, first bool) ([]logging.LogEvent, uint64, error)

// Stream emits events from the API when available, otherwise from IPC. It
// reports whether anything was emitted. Follow mode runs until ctx ends.
func Stream(ctx context.Context, apiClient *logs.StreamClient, fallback TailClient, opts Options, onEvent func(logging.LogEvent)) (bool, error) {
	emitted, err := pump(ctx, apiPage(apiClient, opts.Component), opts, onEvent)
	if !logs.IsAPIUnavailable(err) {
		return emitted, err
	}
	if fallback == nil {
		return false, logs.ErrAPIUnavailable
	}
	return pump(ctx, ipcPage(fallback), opts, filtered(opts.Component, onEvent))
}

func pump(ctx context.Context, next page, opts Options, onEvent func(logging.LogEvent)) (bool, error) {
	var (
		emitted bool
		cursor  uint64
	)
	limit := opts.Lines
	for first := true; ; first = false {
		events, nextCursor, err := next(ctx, cursor, limit, first)
		if err != nil {
			if emitted && ctx.Err() != nil {
				return true, nil
			}
			return emitted, err
		}
		for _, evt := range events {
			onEvent(evt)
			emitted = true
		}
		if !opts.Follow || ctx.Err() != nil {
			return emitted, nil
		}
		cursor, limit = nextCursor, followPage
	}
}

func apiPage(client *logs.StreamClient, component string) page {
	return func(ctx context.Context, since uint64, limit int, first bool) ([]logging.LogEvent, uint64, error) {
		if first && limit <= 0 {
			limit = followPage
		}
		resp, err := client.Fetch(ctx, logs.StreamQuery{Since: since, Limit: limit, Follow: !first, Component: component})
		return resp.Events, resp.Next, err
	}
}

func ipcPage(client TailClient) page {
	return func(_ context.Context, since uint64, limit int, first bool) ([]logging.LogEvent, uint64, error) {
		req := ipc.LogTailRequest{Limit: max(limit, 0)}
		if !first {
			req = ipc.LogTailRequest{Since: since, Limit: limit, Follow: true, WaitMilli: 1000}
		}
		resp, err := client.LogTail(req)
		if err != nil {
			return nil, since, fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return nil, since, errors.New("log tail response missing")
		}
		return resp.Events, resp.Next, nil
	}
}

// filtered applies the component filter locally; the IPC tail has none.
func filtered(component string, onEvent func(logging.LogEvent)) func(logging.LogEvent) {
	component = strings.TrimSpace(component)
	if component == "" {
		return onEvent
	}
	return func(evt logging.LogEvent) {
		if strings.EqualFold(component, evt.Component) {
			onEvent(evt)
		}
	}
}
