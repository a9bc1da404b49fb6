package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/store/mocks"
)

func TestStatsBatcher_FlushesOnShutdown(t *testing.T) {
	mockStore := new(mocks.MockStore)
	mockStore.On("IncrementStats", mock.Anything, models.CategoryFlowers, 2, 1).Return(nil).Once()
	mockStore.On("IncrementStats", mock.Anything, models.CategoryEggplants, 1, 0).Return(nil).Once()

	b := NewStatsBatcher(mockStore, 60_000)
	b.Record(StatsUpdate{Category: models.CategoryFlowers, Accepted: 1})
	b.Record(StatsUpdate{Category: models.CategoryFlowers, Rejected: 1})
	b.Record(StatsUpdate{Category: models.CategoryFlowers, Accepted: 1})
	b.Record(StatsUpdate{Category: models.CategoryEggplants, Accepted: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batcher did not stop")
	}
	mockStore.AssertExpectations(t)
}

func TestStatsBatcher_FlushesOnTicker(t *testing.T) {
	mockStore := new(mocks.MockStore)
	flushed := make(chan struct{}, 1)
	mockStore.On("IncrementStats", mock.Anything, models.CategoryFlowers, 1, 0).
		Return(nil).
		Run(func(mock.Arguments) { flushed <- struct{}{} }).
		Once()

	b := NewStatsBatcher(mockStore, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Record(StatsUpdate{Category: models.CategoryFlowers, Accepted: 1})

	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker flush did not happen")
	}
	mockStore.AssertExpectations(t)
}

func TestStatsBatcher_RecordDropsWhenFull(t *testing.T) {
	b := &StatsBatcher{UpdateCh: make(chan StatsUpdate, 1)}
	b.Record(StatsUpdate{Category: models.CategoryFlowers, Accepted: 1})
	// Must not block
	b.Record(StatsUpdate{Category: models.CategoryFlowers, Accepted: 1})
	if len(b.UpdateCh) != 1 {
		t.Fatalf("expected 1 queued update, got %d", len(b.UpdateCh))
	}
}
