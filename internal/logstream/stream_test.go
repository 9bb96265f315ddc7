package logstream_test

import (
	"context"
	"errors"
	"testing"

	"easel/internal/ipc"
	"easel/internal/logging"
	"easel/internal/logs"
	"easel/internal/logstream"
)

type fakeTail struct {
	requests []ipc.LogTailRequest
	pages    []ipc.LogTailResponse
	cancel   context.CancelFunc
}

func (f *fakeTail) LogTail(req ipc.LogTailRequest) (*ipc.LogTailResponse, error) {
	f.requests = append(f.requests, req)
	if len(f.pages) == 0 {
		return nil, errors.New("no more pages")
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	if len(f.pages) == 0 && f.cancel != nil {
		f.cancel()
	}
	return &page, nil
}

func TestStreamFallsBackToIPCWithoutAPI(t *testing.T) {
	tail := &fakeTail{pages: []ipc.LogTailResponse{{
		Events: []logging.LogEvent{
			{Sequence: 1, Message: "one", Component: "canvas"},
			{Sequence: 2, Message: "two", Component: "daemon"},
		},
		Next: 3,
	}}}

	var got []string
	printed, err := logstream.Stream(context.Background(), nil, tail, logstream.Options{Lines: 10, Component: "canvas"}, func(evt logging.LogEvent) {
		got = append(got, evt.Message)
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if !printed || len(got) != 1 || got[0] != "one" {
		t.Fatalf("expected only the canvas event, got %v", got)
	}
	if tail.requests[0].Limit != 10 {
		t.Fatalf("expected limit 10, got %d", tail.requests[0].Limit)
	}
}

func TestStreamFollowAdvancesCursor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tail := &fakeTail{
		cancel: cancel,
		pages: []ipc.LogTailResponse{
			{Events: []logging.LogEvent{{Sequence: 4, Message: "a"}}, Next: 5},
			{Events: []logging.LogEvent{{Sequence: 5, Message: "b"}}, Next: 6},
		},
	}

	var got []string
	if _, err := logstream.Stream(ctx, nil, tail, logstream.Options{Lines: 1, Follow: true}, func(evt logging.LogEvent) {
		got = append(got, evt.Message)
	}); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected two events, got %v", got)
	}
	second := tail.requests[1]
	if second.Since != 5 || !second.Follow {
		t.Fatalf("expected follow request from 5, got %+v", second)
	}
}

func TestStreamWithoutAnySource(t *testing.T) {
	_, err := logstream.Stream(context.Background(), nil, nil, logstream.Options{}, func(logging.LogEvent) {})
	if !errors.Is(err, logs.ErrAPIUnavailable) {
		t.Fatalf("expected ErrAPIUnavailable, got %v", err)
	}
}
