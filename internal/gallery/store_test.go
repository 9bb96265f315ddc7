package gallery_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"easel/internal/api"
	"easel/internal/gallery"
	"easel/internal/testsupport"
)

func TestInsertIsIdempotentByImageName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenGallery(t, cfg)
	ctx := context.Background()

	dto := api.ImageDTO{ImageName: "a.png", Width: 64, Height: 32, BoardID: "b1", Category: "general"}
	inserted, err := store.Insert(ctx, dto)
	if err != nil || !inserted {
		t.Fatalf("first insert = %v, %v", inserted, err)
	}
	inserted, err = store.Insert(ctx, dto)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatal("duplicate insert reported a new row")
	}

	img, err := store.Get(ctx, "a.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if img == nil || img.BoardID != "b1" || img.Width != 64 || img.Category != "general" {
		t.Fatalf("unexpected image %+v", img)
	}
	if img.InsertedAt.IsZero() {
		t.Fatal("expected insertion time to be recorded")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := testsupport.MustOpenGallery(t, testsupport.NewConfig(t))
	img, err := store.Get(context.Background(), "nope.png")
	if err != nil || img != nil {
		t.Fatalf("Get missing = %+v, %v", img, err)
	}
}

func TestInsertRejectsEmptyName(t *testing.T) {
	store := testsupport.MustOpenGallery(t, testsupport.NewConfig(t))
	if _, err := store.Insert(context.Background(), api.ImageDTO{ImageName: "  "}); err == nil {
		t.Fatal("expected error for empty image name")
	}
}

func TestListFiltersByBoardNewestFirst(t *testing.T) {
	store := testsupport.MustOpenGallery(t, testsupport.NewConfig(t),
		api.ImageDTO{ImageName: "1.png", BoardID: "b1"},
		api.ImageDTO{ImageName: "2.png"},
		api.ImageDTO{ImageName: "3.png", BoardID: "b1"},
	)
	ctx := context.Background()

	all, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Name != "3.png" || all[2].Name != "1.png" {
		t.Fatalf("unexpected order %+v", all)
	}

	board, err := store.List(ctx, "b1", 1)
	if err != nil {
		t.Fatalf("List board: %v", err)
	}
	if len(board) != 1 || board[0].Name != "3.png" {
		t.Fatalf("unexpected board listing %+v", board)
	}

	none, err := store.List(ctx, api.NoBoard, 0)
	if err != nil {
		t.Fatalf("List none: %v", err)
	}
	if len(none) != 1 || none[0].Name != "2.png" {
		t.Fatalf("images without a board should land on %q, got %+v", api.NoBoard, none)
	}

	boards, err := store.Boards(ctx)
	if err != nil {
		t.Fatalf("Boards: %v", err)
	}
	if len(boards) != 2 || boards[0].BoardID != "b1" || boards[0].Images != 2 || boards[1].Images != 1 {
		t.Fatalf("unexpected boards %+v", boards)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := gallery.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	path := store.Path()
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := gallery.OpenPath(path); !errors.Is(err, gallery.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
