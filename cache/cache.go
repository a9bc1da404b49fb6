package cache

import (
	"context"

	"github.com/zlnvch/garden/models"
)

type GardenCache interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error

	// GetGalleryPage returns a cached public listing page, or ok=false on a miss.
	GetGalleryPage(ctx context.Context, category models.Category, page int) (data []byte, ok bool, err error)
	// GalleryGeneration changes on every InvalidateGallery for the category.
	GalleryGeneration(ctx context.Context, category models.Category) (int64, error)
	// SetGalleryPage stores a page only if the generation is unchanged, and
	// reports whether it did.
	SetGalleryPage(ctx context.Context, category models.Category, page int, generation int64, data []byte) (bool, error)
	InvalidateGallery(ctx context.Context, category models.Category) error

	// GetSubmitterCount returns -1 when the identity has no cached count.
	GetSubmitterCount(ctx context.Context, submitter string) (int, error)
	SeedSubmitterCount(ctx context.Context, submitter string, count int) error
	IncrementSubmitterCount(ctx context.Context, submitter string) (int64, error)
}
