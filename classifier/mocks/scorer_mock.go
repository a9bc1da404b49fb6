package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/garden/classifier"
)

type MockScorer struct {
	mock.Mock
}

func (m *MockScorer) Score(ctx context.Context, req classifier.Request) ([]float64, error) {
	args := m.Called(ctx, req)
	probs, _ := args.Get(0).([]float64)
	return probs, args.Error(1)
}
