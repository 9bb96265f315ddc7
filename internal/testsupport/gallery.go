package testsupport

import (
	"context"
	"testing"

	"easel/internal/api"
	"easel/internal/config"
	"easel/internal/gallery"
)

// MustOpenGallery opens the gallery database under cfg's state directory,
// inserts seed in order and closes the store when the test ends.
func MustOpenGallery(t testing.TB, cfg *config.Config, seed ...api.ImageDTO) *gallery.Store {
	t.Helper()

	store, err := gallery.Open(cfg)
	if err != nil {
		t.Fatalf("open gallery: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close gallery: %v", err)
		}
	})
	for _, dto := range seed {
		if _, err := store.Insert(context.Background(), dto); err != nil {
			t.Fatalf("seed gallery with %s: %v", dto.ImageName, err)
		}
	}
	return store
}
