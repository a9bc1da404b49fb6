package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/garden/objectstore"
)

type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Upload(ctx context.Context, filename string, data []byte, contentType string) (objectstore.Object, error) {
	args := m.Called(ctx, filename, data, contentType)
	return args.Get(0).(objectstore.Object), args.Error(1)
}
