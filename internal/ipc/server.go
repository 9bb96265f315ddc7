package ipc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"easel/internal/canvas"
	"easel/internal/compositor"
	"easel/internal/daemon"
	"easel/internal/document"
	"easel/internal/logging"
	"easel/internal/staging"
	"easel/internal/tool"
)

// ServiceName is the JSON-RPC receiver name.
const ServiceName = "Easel"

// Server exposes session control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the session if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				stop := context.AfterFunc(s.ctx, func() { _ = c.Close() })
				defer stop()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) manager() *canvas.Manager {
	return s.daemon.Manager()
}

func (s *service) version() uint64 {
	return s.manager().Status().DocVersion
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status()
	return nil
}

func (s *service) Layers(_ LayersRequest, resp *LayersResponse) error {
	snap, err := s.manager().Snapshot()
	if err != nil {
		return err
	}
	*resp = layersResponse(snap)
	return nil
}

func (s *service) LayerAdd(req LayerAddRequest, resp *LayerAddResponse) error {
	kind, err := document.ParseKind(req.Kind)
	if err != nil {
		return err
	}
	var opts []document.LayerOption
	if name := strings.TrimSpace(req.Name); name != "" {
		opts = append(opts, document.WithName(name))
	}
	id, err := s.manager().AddLayer(kind, opts...)
	if err != nil {
		return err
	}
	resp.ID = id
	resp.Version = s.version()
	s.logger.Debug("layer added via IPC", logging.String(logging.FieldLayerID, id), logging.String("kind", string(kind)))
	return nil
}

func (s *service) Layer(req LayerRequest, resp *LayerResponse) error {
	m := s.manager()
	id := strings.TrimSpace(req.ID)
	var err error
	switch action := strings.ToLower(strings.TrimSpace(req.Action)); action {
	case LayerRemove:
		err = m.RemoveLayer(id)
	case LayerReset:
		err = m.ResetLayer(id)
	case LayerRaise, LayerLower, LayerFront, LayerBack:
		var dir document.Direction
		if dir, err = document.ParseDirection(action); err == nil {
			err = m.Reorder(id, dir)
		}
	case LayerEnable, LayerDisable:
		err = m.SetEnabled(id, action == LayerEnable)
	case LayerLock, LayerUnlock:
		err = m.SetLocked(id, action == LayerLock)
	case LayerSelect:
		err = m.Select(id)
	default:
		err = fmt.Errorf("unknown layer action %q", req.Action)
	}
	if err != nil {
		return err
	}
	resp.Version = s.version()
	return nil
}

func (s *service) Clear(_ ClearRequest, resp *LayerResponse) error {
	if err := s.manager().Clear(); err != nil {
		return err
	}
	resp.Version = s.version()
	return nil
}

func (s *service) Draw(req DrawRequest, resp *DrawResponse) error {
	t, err := tool.ParseTool(req.Tool)
	if err != nil {
		return err
	}
	m := s.manager()
	if id := strings.TrimSpace(req.LayerID); id != "" {
		if err := m.Select(id); err != nil {
			return err
		}
	}
	changed, err := m.Draw(t, req.Points)
	if err != nil {
		return err
	}
	resp.Changed = changed
	resp.Version = s.version()
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	m := s.manager()
	var mode staging.Mode
	if req.Mode != "" {
		parsed, err := staging.ParseMode(req.Mode)
		if err != nil {
			return err
		}
		mode = parsed
	}
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Minute)
	defer cancel()
	result, err := m.Submit(ctx, canvas.SubmitRequest{Mode: mode, Params: req.Apply(m.DefaultParams())})
	if err != nil {
		return err
	}
	resp.SessionID = result.SessionID
	resp.JobID = result.JobID
	resp.Mode = string(result.Mode)
	for _, renderErr := range result.RenderErrors {
		resp.Placeholders = append(resp.Placeholders, renderErr.Error())
	}
	return nil
}

func (s *service) Cancel(_ CancelRequest, resp *CancelResponse) error {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	jobID, err := s.manager().Cancel(ctx)
	if err != nil {
		return err
	}
	resp.JobID = jobID
	resp.Cancelled = jobID != ""
	return nil
}

func (s *service) Accept(_ AcceptRequest, resp *AcceptResponse) error {
	commit, err := s.manager().Accept()
	if err != nil {
		return err
	}
	if commit != nil {
		resp.Committed = true
		resp.LayerID = commit.LayerID
		resp.ImageName = commit.Image.Name
	}
	return nil
}

func (s *service) Discard(req DiscardRequest, _ *DiscardResponse) error {
	if req.SelectedOnly {
		return s.manager().DiscardSelected()
	}
	return s.manager().Discard()
}

func (s *service) StagingSelect(req StagingSelectRequest, resp *StagingSelectResponse) error {
	var (
		idx int
		err error
	)
	if req.Previous {
		idx, err = s.manager().SelectPrev()
	} else {
		idx, err = s.manager().SelectNext()
	}
	if err != nil {
		return err
	}
	resp.Index = idx
	return nil
}

func (s *service) Render(req RenderRequest, resp *RenderResponse) error {
	m := s.manager()
	var (
		result compositor.Result
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(req.Target)) {
	case "", RenderInteractive:
		result, err = m.Render(m.FullViewport(), compositor.PurposeInteractive)
	case RenderSubmission:
		result, err = m.Flatten(compositor.TargetComposite)
	case RenderMask:
		result, err = m.Flatten(compositor.TargetInpaintMask)
	default:
		return fmt.Errorf("unknown render target %q", req.Target)
	}
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, result.Image); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	resp.PNG = buf.Bytes()
	resp.Version = result.Version
	resp.Width = result.Image.Bounds().Dx()
	resp.Height = result.Image.Bounds().Dy()
	for _, renderErr := range result.Errors {
		resp.Errors = append(resp.Errors, renderErr.Error())
	}
	return nil
}

func (s *service) GalleryList(req GalleryListRequest, resp *GalleryListResponse) error {
	svc := s.daemon.Gallery()
	if svc == nil {
		return errors.New("gallery unavailable")
	}
	board := strings.TrimSpace(req.Board)
	if board == "" {
		board = svc.Selection().BoardID
	}
	images, err := svc.List(s.ctx, board, req.Limit)
	if err != nil {
		return err
	}
	boards, err := svc.Boards(s.ctx)
	if err != nil {
		return err
	}
	resp.Board = board
	resp.Images = images
	resp.Boards = make([]BoardCount, 0, len(boards))
	for _, b := range boards {
		resp.Boards = append(resp.Boards, BoardCount{BoardID: b.BoardID, Images: b.Images})
	}
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	hub := s.daemon.LogStream()
	if hub == nil {
		return nil
	}
	if req.Since == 0 && !req.Follow {
		resp.Events, resp.Next = hub.Tail(req.Limit)
		return nil
	}
	ctx := s.ctx
	if req.Follow {
		wait := time.Duration(req.WaitMilli) * time.Millisecond
		if wait <= 0 {
			wait = 5 * time.Second
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	events, next, err := hub.Fetch(ctx, req.Since, req.Limit, req.Follow)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Events = events
	resp.Next = next
	return nil
}
