package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/garden/mq"
)

type MockMQ struct {
	mock.Mock
}

func (m *MockMQ) Send(ctx context.Context, msg mq.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMQ) Receive(ctx context.Context, maxMessages int32, visibilityTimeout int32) ([]mq.Message, error) {
	args := m.Called(ctx, maxMessages, visibilityTimeout)
	msgs, _ := args.Get(0).([]mq.Message)
	return msgs, args.Error(1)
}

func (m *MockMQ) Delete(ctx context.Context, msgs []mq.Message) ([]mq.Message, error) {
	args := m.Called(ctx, msgs)
	failed, _ := args.Get(0).([]mq.Message)
	return failed, args.Error(1)
}
