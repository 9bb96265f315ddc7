package api

import (
	"fmt"
	"sort"
	"time"
)

// SortGalleryNewestFirst orders gallery images by InsertedAt descending,
// breaking ties by name.
func SortGalleryNewestFirst(images []GalleryImage) []GalleryImage {
	if len(images) == 0 {
		return nil
	}
	sorted := make([]GalleryImage, len(images))
	copy(sorted, images)
	sort.Slice(sorted, func(i, j int) bool {
		ti := ParseTime(sorted[i].InsertedAt)
		tj := ParseTime(sorted[j].InsertedAt)
		if ti.Equal(tj) {
			return sorted[i].ImageName < sorted[j].ImageName
		}
		return ti.After(tj)
	})
	return sorted
}

// ParseTime parses an API timestamp; malformed values yield the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

// ProgressLabel renders a progress value for tables.
func ProgressLabel(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *p*100)
}
