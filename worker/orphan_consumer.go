package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/mq"
	"github.com/zlnvch/garden/store"
)

// OrphanMessage reports an uploaded object whose metadata record was never
// written.
type OrphanMessage struct {
	Category  models.Category `json:"category"`
	Filename  string          `json:"filename"`
	URL       string          `json:"url"`
	Submitter string          `json:"submitter"`
	Reported  time.Time       `json:"reported"`
}

func (m OrphanMessage) Orphan() models.Orphan {
	return models.Orphan{
		Category:  m.Category,
		Filename:  m.Filename,
		URL:       m.URL,
		Submitter: m.Submitter,
		Reported:  m.Reported,
	}
}

type OrphanConsumer struct {
	orphanQueue mq.MessageQueue
	gardenStore store.GardenStore
}

func NewOrphanConsumer(orphanQueue mq.MessageQueue, gardenStore store.GardenStore) *OrphanConsumer {
	return &OrphanConsumer{
		orphanQueue: orphanQueue,
		gardenStore: gardenStore,
	}
}

const (
	visibilityTimeout = 60
	receiveBatch      = 10
)

func (c *OrphanConsumer) Run(shutdownCtx context.Context) {
	for {
		msgs, err := c.orphanQueue.Receive(shutdownCtx, receiveBatch, visibilityTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			logging.Logger.Error("orphan queue receive error", zap.Error(err))
			select {
			case <-shutdownCtx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if len(msgs) == 0 {
			if shutdownCtx.Err() != nil {
				return
			}
			continue
		}

		c.process(msgs)
	}
}

// process records one received batch and acknowledges every message that is
// either stored or unreadable. Messages whose write failed stay on the queue
// and are redelivered after the visibility timeout.
func (c *OrphanConsumer) process(msgs []mq.Message) {
	// timeout should be a little less than queue visibility timeout
	ctx, cancel := context.WithTimeout(context.Background(), (visibilityTimeout-1)*time.Second)
	defer cancel()

	orphans := make([]models.Orphan, 0, len(msgs))
	byFilename := make(map[string]mq.Message, len(msgs))
	var done []mq.Message

	for _, msg := range msgs {
		var om OrphanMessage
		if msg.Type != "" && msg.Type != mq.TypeOrphanObject {
			logging.Logger.Warn("dropping message of unexpected type", zap.String("type", msg.Type))
			done = append(done, msg)
			continue
		}
		if err := json.Unmarshal([]byte(msg.Body), &om); err != nil || om.Filename == "" {
			logging.Logger.Warn("dropping malformed orphan message", zap.String("body", msg.Body), zap.Error(err))
			done = append(done, msg)
			continue
		}
		if om.Reported.IsZero() {
			om.Reported = time.Now().UTC()
		}
		orphans = append(orphans, om.Orphan())
		byFilename[om.Filename] = msg
	}

	if len(orphans) > 0 {
		unprocessed, err := c.gardenStore.RecordOrphans(ctx, orphans)
		if err != nil {
			// Writes are keyed, so redelivering the whole batch is safe
			logging.Logger.Error("failed to record orphans", zap.Int("count", len(orphans)), zap.Error(err))
		} else {
			for _, o := range unprocessed {
				delete(byFilename, o.Filename)
			}
			for _, msg := range byFilename {
				done = append(done, msg)
			}
			logging.Logger.Info("recorded orphan objects", zap.Int("count", len(orphans)-len(unprocessed)))
		}
	}

	if len(done) == 0 {
		return
	}
	failed, err := c.orphanQueue.Delete(context.Background(), done)
	if err != nil || len(failed) > 0 {
		logging.Logger.Error("orphan queue delete error", zap.Int("failed", len(failed)), zap.Error(err))
	}
}
