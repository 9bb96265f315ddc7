package gallery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"easel/internal/api"
	"easel/internal/config"
)

// insertedLayout has a fixed-width fraction so the text column sorts in time
// order.
const insertedLayout = "2006-01-02T15:04:05.000000000Z07:00"

const imageColumns = "image_name, board_id, width, height, category, image_url, thumbnail_url, service_created_at, inserted_at"

// Image is one gallery entry.
type Image struct {
	Name             string
	BoardID          string
	Width            int
	Height           int
	Category         string
	ImageURL         string
	ThumbnailURL     string
	ServiceCreatedAt string
	InsertedAt       time.Time
}

// API converts the entry to its transport shape.
func (img Image) API() api.GalleryImage {
	return api.GalleryImage{
		ImageName:  img.Name,
		BoardID:    img.BoardID,
		Width:      img.Width,
		Height:     img.Height,
		Category:   img.Category,
		InsertedAt: api.FormatTime(img.InsertedAt),
	}
}

// BoardCount is a board with its number of images.
type BoardCount struct {
	BoardID string
	Images  int
}

// Store manages the gallery index backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the gallery database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.GalleryPath())
}

// OpenPath opens the gallery database at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Insert records dto unless an entry with the same image name exists. It
// reports whether a row was added.
func (s *Store) Insert(ctx context.Context, dto api.ImageDTO) (bool, error) {
	name := strings.TrimSpace(dto.ImageName)
	if name == "" {
		return false, errors.New("image name is empty")
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO images (
            image_name, board_id, width, height, category,
            image_url, thumbnail_url, service_created_at, inserted_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name,
		dto.Board(),
		dto.Width,
		dto.Height,
		nullableString(dto.Category),
		nullableString(dto.ImageURL),
		nullableString(dto.ThumbnailURL),
		nullableString(dto.CreatedAt),
		s.now().UTC().Format(insertedLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert image: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Get fetches an entry by image name. A missing entry returns nil.
func (s *Store) Get(ctx context.Context, name string) (*Image, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE image_name = ?`, name)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

// List returns entries newest first. An empty board lists every board; a
// non-positive limit lists everything.
func (s *Store) List(ctx context.Context, board string, limit int) ([]Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images`
	var args []any
	if board = strings.TrimSpace(board); board != "" {
		query += ` WHERE board_id = ?`
		args = append(args, board)
	}
	query += ` ORDER BY inserted_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}

// Boards returns every board with its image count, ordered by board id.
func (s *Store) Boards(ctx context.Context) ([]BoardCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT board_id, COUNT(1) FROM images GROUP BY board_id ORDER BY board_id`)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	var boards []BoardCount
	for rows.Next() {
		var b BoardCount
		if err := rows.Scan(&b.BoardID, &b.Images); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return boards, nil
}

func scanImage(scanner interface{ Scan(dest ...any) error }) (*Image, error) {
	var (
		img         Image
		category    sql.NullString
		imageURL    sql.NullString
		thumbURL    sql.NullString
		createdRaw  sql.NullString
		insertedRaw string
	)
	if err := scanner.Scan(
		&img.Name,
		&img.BoardID,
		&img.Width,
		&img.Height,
		&category,
		&imageURL,
		&thumbURL,
		&createdRaw,
		&insertedRaw,
	); err != nil {
		return nil, err
	}
	img.Category = category.String
	img.ImageURL = imageURL.String
	img.ThumbnailURL = thumbURL.String
	img.ServiceCreatedAt = createdRaw.String
	if ts, err := time.Parse(time.RFC3339Nano, insertedRaw); err == nil {
		img.InsertedAt = ts
	}
	return &img, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
