package gallery

import (
	"context"
	"log/slog"
	"sync"

	"easel/internal/api"
	"easel/internal/config"
	"easel/internal/logging"
)

const component = "gallery"

// Selection is the board and image the viewer follows.
type Selection struct {
	BoardID   string
	ImageName string
}

// Service inserts into the store and maintains the selection.
type Service struct {
	store      *Store
	autoSwitch bool
	logger     *slog.Logger

	mu        sync.RWMutex
	selection Selection
}

// NewService wraps store with the [gallery] configuration.
func NewService(store *Store, cfg *config.Config, logger *slog.Logger) *Service {
	svc := &Service{
		store:     store,
		logger:    logging.NewComponentLogger(logger, component),
		selection: Selection{BoardID: api.NoBoard},
	}
	if cfg != nil {
		svc.autoSwitch = cfg.Gallery.AutoSwitch
		if cfg.Gallery.DefaultBoard != "" {
			svc.selection.BoardID = cfg.Gallery.DefaultBoard
		}
	}
	return svc
}

// Insert records dto and, when it is new and auto switching is on, moves the
// selection to it.
func (s *Service) Insert(ctx context.Context, dto api.ImageDTO) (bool, error) {
	inserted, err := s.store.Insert(ctx, dto)
	if err != nil {
		return false, err
	}
	if !inserted {
		s.logger.Debug("gallery image already recorded", logging.String("image", dto.ImageName))
		return false, nil
	}

	attrs := []logging.Attr{
		logging.String("image", dto.ImageName),
		logging.String("board", dto.Board()),
		logging.String(logging.FieldEventType, "gallery_image_added"),
	}
	if s.autoSwitch {
		s.mu.Lock()
		previous := s.selection.BoardID
		s.selection = Selection{BoardID: dto.Board(), ImageName: dto.ImageName}
		s.mu.Unlock()
		attrs = append(attrs, logging.Bool("board_switched", previous != dto.Board()))
	}
	s.logger.Info("gallery image added", logging.Args(attrs...)...)
	return true, nil
}

// Selection returns the current board and image.
func (s *Service) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// SelectBoard switches boards and clears the image selection.
func (s *Service) SelectBoard(board string) {
	if board == "" {
		board = api.NoBoard
	}
	s.mu.Lock()
	s.selection = Selection{BoardID: board}
	s.mu.Unlock()
}

// List returns entries of board, newest first.
func (s *Service) List(ctx context.Context, board string, limit int) ([]api.GalleryImage, error) {
	images, err := s.store.List(ctx, board, limit)
	if err != nil {
		return nil, err
	}
	out := make([]api.GalleryImage, 0, len(images))
	for _, img := range images {
		out = append(out, img.API())
	}
	return out, nil
}

// Boards lists boards with image counts.
func (s *Service) Boards(ctx context.Context) ([]BoardCount, error) {
	return s.store.Boards(ctx)
}
