package store

import (
	"context"
	"errors"

	"github.com/zlnvch/garden/models"
)

type GardenStore interface {
	// InsertSubmission assigns Id and Created and writes exactly one record.
	InsertSubmission(ctx context.Context, sub models.Submission) (models.Submission, error)
	GetSubmission(ctx context.Context, category models.Category, id string) (models.Submission, error)
	// ListSubmissions returns one page (models.PageSize items, 1-based), newest first.
	ListSubmissions(ctx context.Context, view models.View, category models.Category, page int) ([]models.Submission, error)
	CountSubmissions(ctx context.Context, view models.View, category models.Category) (int, error)
	// CountSubmitterSubmissions counts every record of an identity in the raw
	// table, flagged or not.
	CountSubmitterSubmissions(ctx context.Context, submitter string, category models.Category) (int, error)
	// SetManualModeration flags a record. Flagging an already flagged record
	// succeeds and changes nothing.
	SetManualModeration(ctx context.Context, category models.Category, id string) (models.Submission, error)

	// RecordOrphans stores orphan reports and returns the ones it could not write.
	RecordOrphans(ctx context.Context, orphans []models.Orphan) ([]models.Orphan, error)
	ListOrphans(ctx context.Context) ([]models.Orphan, error)

	IncrementStats(ctx context.Context, category models.Category, accepted int, rejected int) error
	GetStats(ctx context.Context) ([]models.CategoryStats, error)

	EnsureModerator(ctx context.Context, moderator models.Moderator) (models.Moderator, error)
	GetModerator(ctx context.Context, provider string, providerId string) (models.Moderator, error)
}

// Custom error types for clarity
var (
	ErrItemNotFound    = errors.New("item does not exist")
	ErrConditionFailed = errors.New("condition not met")
)

// Offset returns the number of records before a 1-based page.
func Offset(page int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * models.PageSize
}
