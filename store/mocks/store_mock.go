package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/garden/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) InsertSubmission(ctx context.Context, sub models.Submission) (models.Submission, error) {
	args := m.Called(ctx, sub)
	return args.Get(0).(models.Submission), args.Error(1)
}

func (m *MockStore) GetSubmission(ctx context.Context, category models.Category, id string) (models.Submission, error) {
	args := m.Called(ctx, category, id)
	return args.Get(0).(models.Submission), args.Error(1)
}

func (m *MockStore) ListSubmissions(ctx context.Context, view models.View, category models.Category, page int) ([]models.Submission, error) {
	args := m.Called(ctx, view, category, page)
	return args.Get(0).([]models.Submission), args.Error(1)
}

func (m *MockStore) CountSubmissions(ctx context.Context, view models.View, category models.Category) (int, error) {
	args := m.Called(ctx, view, category)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) CountSubmitterSubmissions(ctx context.Context, submitter string, category models.Category) (int, error) {
	args := m.Called(ctx, submitter, category)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) SetManualModeration(ctx context.Context, category models.Category, id string) (models.Submission, error) {
	args := m.Called(ctx, category, id)
	return args.Get(0).(models.Submission), args.Error(1)
}

func (m *MockStore) RecordOrphans(ctx context.Context, orphans []models.Orphan) ([]models.Orphan, error) {
	args := m.Called(ctx, orphans)
	return args.Get(0).([]models.Orphan), args.Error(1)
}

func (m *MockStore) ListOrphans(ctx context.Context) ([]models.Orphan, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Orphan), args.Error(1)
}

func (m *MockStore) IncrementStats(ctx context.Context, category models.Category, accepted int, rejected int) error {
	args := m.Called(ctx, category, accepted, rejected)
	return args.Error(0)
}

func (m *MockStore) GetStats(ctx context.Context) ([]models.CategoryStats, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.CategoryStats), args.Error(1)
}

func (m *MockStore) EnsureModerator(ctx context.Context, moderator models.Moderator) (models.Moderator, error) {
	args := m.Called(ctx, moderator)
	return args.Get(0).(models.Moderator), args.Error(1)
}

func (m *MockStore) GetModerator(ctx context.Context, provider string, providerId string) (models.Moderator, error) {
	args := m.Called(ctx, provider, providerId)
	return args.Get(0).(models.Moderator), args.Error(1)
}
