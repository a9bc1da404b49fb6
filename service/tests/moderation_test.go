package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/service"
	"github.com/zlnvch/garden/store"
)

var moderator = models.Moderator{Id: "m1", Username: "gardener", Provider: "github", ProviderId: "42"}

func TestModerationQueue_UsesRawTable(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	flagged := true
	items := []models.Submission{{Id: "s1", ManualModeration: &flagged}, {Id: "s2"}}
	deps.store.On("ListSubmissions", ctx, models.ViewAll, models.CategoryEggplants, 1).Return(items, nil)
	deps.store.On("CountSubmissions", ctx, models.ViewAll, models.CategoryEggplants).Return(2, nil)

	page, err := svc.ModerationQueue(ctx, "eggplants", 1)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.Items[0].IsModerated())

	deps.cache.AssertNotCalled(t, "GetGalleryPage", mock.Anything, mock.Anything, mock.Anything)
}

func TestFlagSubmission_Success(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	flagged := true
	deps.store.On("SetManualModeration", ctx, models.CategoryFlowers, "s1").
		Return(models.Submission{Id: "s1", Category: models.CategoryFlowers, ManualModeration: &flagged}, nil)

	invalidateDone := wrapMockWithSignal(deps.cache.On("InvalidateGallery", mock.Anything, models.CategoryFlowers).Return(nil))
	publishDone := wrapMockWithSignal(deps.cache.On("Publish", mock.Anything, service.SubmissionsChannel, mock.MatchedBy(func(msg []byte) bool {
		var ev service.SubmissionEvent
		return json.Unmarshal(msg, &ev) == nil && ev.Type == service.EventSubmissionFlagged && ev.Data.IsModerated()
	})).Return(nil))

	sub, err := svc.FlagSubmission(ctx, moderator, "flowers", "s1")
	require.NoError(t, err)
	assert.True(t, sub.IsModerated())

	waitFor(t, invalidateDone, "InvalidateGallery")
	waitFor(t, publishDone, "Publish")
}

func TestFlagSubmission_NotFound(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.store.On("SetManualModeration", ctx, models.CategoryFlowers, "missing").
		Return(models.Submission{}, store.ErrItemNotFound)

	_, err := svc.FlagSubmission(ctx, moderator, "flowers", "missing")
	assert.ErrorIs(t, err, store.ErrItemNotFound)
	deps.cache.AssertNotCalled(t, "InvalidateGallery", mock.Anything, mock.Anything)
}

func TestFlagSubmission_InvalidCategory(t *testing.T) {
	svc, deps := setupService(t)

	_, err := svc.FlagSubmission(context.Background(), moderator, "weeds", "s1")
	assert.ErrorIs(t, err, service.ErrInvalidCategory)
	deps.store.AssertNotCalled(t, "SetManualModeration", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrphansAndStats(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.store.On("ListOrphans", ctx).Return([]models.Orphan{{Filename: "flowers-1.png"}}, nil)
	deps.store.On("GetStats", ctx).Return([]models.CategoryStats{{Category: models.CategoryFlowers, Accepted: 3}}, nil)

	orphans, err := svc.Orphans(ctx)
	require.NoError(t, err)
	assert.Len(t, orphans, 1)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats[0].Accepted)
}
