package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/store"
)

type StatsUpdate struct {
	Category models.Category
	Accepted int
	Rejected int
}

// StatsBatcher folds per-request outcomes into per-category deltas and
// writes them to the store on a ticker, every 100 updates, and once more on
// shutdown.
type StatsBatcher struct {
	UpdateCh           chan StatsUpdate
	gardenStore        store.GardenStore
	tickerMilliseconds int
}

func NewStatsBatcher(gardenStore store.GardenStore, tickerMilliseconds int) *StatsBatcher {
	return &StatsBatcher{
		UpdateCh:           make(chan StatsUpdate, 1024),
		gardenStore:        gardenStore,
		tickerMilliseconds: tickerMilliseconds,
	}
}

type statsDelta struct {
	accepted int
	rejected int
}

func (b *StatsBatcher) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(time.Duration(b.tickerMilliseconds) * time.Millisecond)
	defer ticker.Stop()

	pending := make(map[models.Category]statsDelta)
	queued := 0

	add := func(update StatsUpdate) {
		d := pending[update.Category]
		d.accepted += update.Accepted
		d.rejected += update.Rejected
		pending[update.Category] = d
		queued++
	}

	flush := func() {
		for category, d := range pending {
			if d.accepted == 0 && d.rejected == 0 {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := b.gardenStore.IncrementStats(ctx, category, d.accepted, d.rejected); err != nil {
				logging.Logger.Error("failed to flush stats",
					zap.String("category", string(category)),
					zap.Int("accepted", d.accepted),
					zap.Int("rejected", d.rejected),
					zap.Error(err))
			}
			cancel()
		}
		clear(pending)
		queued = 0
	}

	for {
		select {
		case update := <-b.UpdateCh:
			add(update)

			if queued >= 100 {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-shutdownCtx.Done():
			// Drain what producers already queued
		drain:
			for {
				select {
				case update := <-b.UpdateCh:
					add(update)
				default:
					break drain
				}
			}
			flush()
			return
		}
	}
}

// Record queues an update without blocking the request path. Updates are
// dropped when the buffer is full.
func (b *StatsBatcher) Record(update StatsUpdate) {
	select {
	case b.UpdateCh <- update:
	default:
		logging.Logger.Warn("stats buffer full, dropping update", zap.String("category", string(update.Category)))
	}
}
