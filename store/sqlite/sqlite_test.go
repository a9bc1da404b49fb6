package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/store"
)

func newTestStore(t *testing.T) *SQLiteGardenStore {
	t.Helper()
	s, err := NewSQLiteGardenStore(filepath.Join(t.TempDir(), "garden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insert(t *testing.T, s *SQLiteGardenStore, category models.Category, filename, submitter string) models.Submission {
	t.Helper()
	sub, err := s.InsertSubmission(context.Background(), models.Submission{
		Category:   category,
		Filename:   filename,
		ImageURL:   "https://cdn.example.com/" + filename,
		Confidence: 0.93,
		Submitter:  submitter,
	})
	require.NoError(t, err)
	return sub
}

func TestInsertAndGetSubmission(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := insert(t, s, models.CategoryFlowers, "flowers-1.png", "1.2.3.4")
	assert.NotEmpty(t, sub.Id)
	assert.False(t, sub.Created.IsZero())

	got, err := s.GetSubmission(ctx, models.CategoryFlowers, sub.Id)
	require.NoError(t, err)
	assert.Equal(t, sub.Filename, got.Filename)
	assert.Equal(t, sub.ImageURL, got.ImageURL)
	assert.Equal(t, models.CategoryFlowers, got.Category)
	assert.InDelta(t, 0.93, got.Confidence, 1e-9)
	assert.Equal(t, sub.Created.UnixMilli(), got.Created.UnixMilli())
	assert.Nil(t, got.ManualModeration)

	_, err = s.GetSubmission(ctx, models.CategoryEggplants, sub.Id)
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestInsertSubmission_DuplicateFilename(t *testing.T) {
	s := newTestStore(t)
	insert(t, s, models.CategoryFlowers, "flowers-1.png", "1.2.3.4")

	_, err := s.InsertSubmission(context.Background(), models.Submission{
		Category: models.CategoryFlowers,
		Filename: "flowers-1.png",
		ImageURL: "https://cdn.example.com/flowers-1.png",
	})
	assert.Error(t, err)
}

func TestInsertSubmission_UnknownCategory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.InsertSubmission(context.Background(), models.Submission{Category: "weeds", Filename: "x.png"})
	assert.Error(t, err)
}

func TestListSubmissions_PublicHidesFlagged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := insert(t, s, models.CategoryFlowers, "flowers-1.png", "a")
	time.Sleep(2 * time.Millisecond)
	second := insert(t, s, models.CategoryFlowers, "flowers-2.png", "b")

	all, err := s.ListSubmissions(ctx, models.ViewPublic, models.CategoryFlowers, 1)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.Id, all[0].Id, "newest first")

	flagged, err := s.SetManualModeration(ctx, models.CategoryFlowers, first.Id)
	require.NoError(t, err)
	assert.True(t, flagged.IsModerated())

	public, err := s.ListSubmissions(ctx, models.ViewPublic, models.CategoryFlowers, 1)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, second.Id, public[0].Id)

	raw, err := s.ListSubmissions(ctx, models.ViewAll, models.CategoryFlowers, 1)
	require.NoError(t, err)
	assert.Len(t, raw, 2)

	n, err := s.CountSubmissions(ctx, models.ViewPublic, models.CategoryFlowers)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountSubmissions(ctx, models.ViewAll, models.CategoryFlowers)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Second page is empty
	page2, err := s.ListSubmissions(ctx, models.ViewAll, models.CategoryFlowers, 2)
	require.NoError(t, err)
	assert.Empty(t, page2)
}

func TestSetManualModeration_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sub := insert(t, s, models.CategoryEggplants, "eggplants-1.png", "a")

	_, err := s.SetManualModeration(ctx, models.CategoryEggplants, sub.Id)
	require.NoError(t, err)
	again, err := s.SetManualModeration(ctx, models.CategoryEggplants, sub.Id)
	require.NoError(t, err)
	assert.True(t, again.IsModerated())

	_, err = s.SetManualModeration(ctx, models.CategoryEggplants, "missing")
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestCountSubmitterSubmissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a1 := insert(t, s, models.CategoryFlowers, "flowers-1.png", "a")
	insert(t, s, models.CategoryFlowers, "flowers-2.png", "a")
	insert(t, s, models.CategoryFlowers, "flowers-3.png", "b")
	insert(t, s, models.CategoryEggplants, "eggplants-1.png", "a")

	// Flagged records still count against the identity
	_, err := s.SetManualModeration(ctx, models.CategoryFlowers, a1.Id)
	require.NoError(t, err)

	n, err := s.CountSubmitterSubmissions(ctx, "a", models.CategoryFlowers)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountSubmitterSubmissions(ctx, "c", models.CategoryFlowers)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOrphans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	reported := time.Now().UTC().Truncate(time.Millisecond)
	failed, err := s.RecordOrphans(ctx, []models.Orphan{
		{Category: models.CategoryFlowers, Filename: "flowers-1.png", URL: "u1", Submitter: "a", Reported: reported},
		{Category: models.CategoryEggplants, Filename: "eggplants-1.png", URL: "u2", Submitter: "b", Reported: reported.Add(time.Second)},
	})
	require.NoError(t, err)
	assert.Empty(t, failed)

	orphans, err := s.ListOrphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 2)
	assert.Equal(t, "eggplants-1.png", orphans[0].Filename)
	assert.Equal(t, models.CategoryFlowers, orphans[1].Category)
	assert.Equal(t, reported, orphans[1].Reported)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.IncrementStats(ctx, models.CategoryFlowers, 2, 1))
	require.NoError(t, s.IncrementStats(ctx, models.CategoryFlowers, 1, 3))
	require.NoError(t, s.IncrementStats(ctx, models.CategoryEggplants, 0, 0))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.CategoryStats{
		{Category: models.CategoryFlowers, Accepted: 3, Rejected: 4},
		{Category: models.CategoryEggplants},
	}, stats)
}

func TestModerators(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetModerator(ctx, "github", "42")
	assert.ErrorIs(t, err, store.ErrItemNotFound)

	m, err := s.EnsureModerator(ctx, models.Moderator{Provider: "github", ProviderId: "42", Username: "gardener"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.Id)

	again, err := s.EnsureModerator(ctx, models.Moderator{Provider: "github", ProviderId: "42", Username: "gardener"})
	require.NoError(t, err)
	assert.Equal(t, m.Id, again.Id)

	got, err := s.GetModerator(ctx, "github", "42")
	require.NoError(t, err)
	assert.Equal(t, m, got)
}
