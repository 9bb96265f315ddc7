package gallery_test

import (
	"context"
	"testing"

	"easel/internal/api"
	"easel/internal/gallery"
	"easel/internal/logging"
	"easel/internal/testsupport"
)

func TestServiceAutoSwitchFollowsNewestImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Gallery.AutoSwitch = true
	svc := gallery.NewService(testsupport.MustOpenGallery(t, cfg), cfg, logging.NewNop())
	ctx := context.Background()

	if sel := svc.Selection(); sel.BoardID != api.NoBoard || sel.ImageName != "" {
		t.Fatalf("unexpected initial selection %+v", sel)
	}
	if _, err := svc.Insert(ctx, api.ImageDTO{ImageName: "a.png", BoardID: "b1"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if sel := svc.Selection(); sel.BoardID != "b1" || sel.ImageName != "a.png" {
		t.Fatalf("selection did not follow insert: %+v", sel)
	}

	svc.SelectBoard("b2")
	inserted, err := svc.Insert(ctx, api.ImageDTO{ImageName: "a.png", BoardID: "b1"})
	if err != nil || inserted {
		t.Fatalf("duplicate insert = %v, %v", inserted, err)
	}
	if sel := svc.Selection(); sel.BoardID != "b2" {
		t.Fatalf("duplicate insert moved the selection: %+v", sel)
	}

	images, err := svc.List(ctx, "b1", 0)
	if err != nil || len(images) != 1 || images[0].ImageName != "a.png" {
		t.Fatalf("List = %+v, %v", images, err)
	}
}

func TestServiceWithoutAutoSwitchKeepsDefaultBoard(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Gallery.AutoSwitch = false
	cfg.Gallery.DefaultBoard = "favourites"
	svc := gallery.NewService(testsupport.MustOpenGallery(t, cfg), cfg, logging.NewNop())

	if _, err := svc.Insert(context.Background(), api.ImageDTO{ImageName: "x.png", BoardID: "b9"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if sel := svc.Selection(); sel.BoardID != "favourites" || sel.ImageName != "" {
		t.Fatalf("selection changed without auto switch: %+v", sel)
	}
}
