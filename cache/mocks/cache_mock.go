package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/garden/models"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Publish(ctx context.Context, channel string, message []byte) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *MockCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockCache) GetGalleryPage(ctx context.Context, category models.Category, page int) ([]byte, bool, error) {
	args := m.Called(ctx, category, page)
	data, _ := args.Get(0).([]byte)
	return data, args.Bool(1), args.Error(2)
}

func (m *MockCache) GalleryGeneration(ctx context.Context, category models.Category) (int64, error) {
	args := m.Called(ctx, category)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCache) SetGalleryPage(ctx context.Context, category models.Category, page int, generation int64, data []byte) (bool, error) {
	args := m.Called(ctx, category, page, generation, data)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) InvalidateGallery(ctx context.Context, category models.Category) error {
	args := m.Called(ctx, category)
	return args.Error(0)
}

func (m *MockCache) GetSubmitterCount(ctx context.Context, submitter string) (int, error) {
	args := m.Called(ctx, submitter)
	return args.Int(0), args.Error(1)
}

func (m *MockCache) SeedSubmitterCount(ctx context.Context, submitter string, count int) error {
	args := m.Called(ctx, submitter, count)
	return args.Error(0)
}

func (m *MockCache) IncrementSubmitterCount(ctx context.Context, submitter string) (int64, error) {
	args := m.Called(ctx, submitter)
	return args.Get(0).(int64), args.Error(1)
}
