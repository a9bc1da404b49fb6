package ws

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/zlnvch/garden/cache"
	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/service"
)

type subscription struct {
	client   *Client
	category models.Category
	result   chan bool
}

type broadcast struct {
	category models.Category
	message  []byte
}

// Hub maintains the set of connected moderators and fans submission events
// out to the clients watching each category.
type Hub struct {
	gardenCache        cache.GardenCache
	OpenCh             chan *Client
	CloseCh            chan *Client
	SubscribeCh        chan subscription
	UnsubscribeCh      chan subscription
	BroadcastCh        chan broadcast
	moderatorToClients map[string]map[*Client]struct{}
	categoryToClients  map[models.Category]map[*Client]struct{}
}

func NewHub(gardenCache cache.GardenCache) *Hub {
	return &Hub{
		gardenCache:        gardenCache,
		OpenCh:             make(chan *Client, 256),
		CloseCh:            make(chan *Client, 256),
		SubscribeCh:        make(chan subscription, 1024),
		UnsubscribeCh:      make(chan subscription, 1024),
		BroadcastCh:        make(chan broadcast, 1024),
		moderatorToClients: make(map[string]map[*Client]struct{}),
		categoryToClients:  make(map[models.Category]map[*Client]struct{}),
	}
}

const maxConnectionsPerModerator = 3

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.OpenCh:
			id := client.moderator.Id
			if _, ok := h.moderatorToClients[id]; !ok {
				h.moderatorToClients[id] = make(map[*Client]struct{})
			}

			if len(h.moderatorToClients[id]) >= maxConnectionsPerModerator {
				logging.Logger.Warn("moderator reached max connections",
					zap.String("moderator", id), zap.Int("max", maxConnectionsPerModerator))
				client.rejected = true
				for category := range client.categories {
					delete(h.categoryToClients[category], client)
				}
				close(client.Send)
				continue
			}

			h.moderatorToClients[id][client] = struct{}{}

		case client := <-h.CloseCh:
			for category := range client.categories {
				delete(h.categoryToClients[category], client)
			}
			id := client.moderator.Id
			delete(h.moderatorToClients[id], client)
			if len(h.moderatorToClients[id]) == 0 {
				delete(h.moderatorToClients, id)
			}

		case sub := <-h.SubscribeCh:
			if sub.client.rejected {
				sub.result <- false
				continue
			}
			if h.categoryToClients[sub.category] == nil {
				h.categoryToClients[sub.category] = make(map[*Client]struct{})
			}
			h.categoryToClients[sub.category][sub.client] = struct{}{}
			sub.client.categories[sub.category] = struct{}{}
			sub.result <- true

		case unsub := <-h.UnsubscribeCh:
			delete(h.categoryToClients[unsub.category], unsub.client)
			delete(unsub.client.categories, unsub.category)
			unsub.result <- true

		case b := <-h.BroadcastCh:
			for client := range h.categoryToClients[b.category] {
				select {
				case client.Send <- b.message:
				default:
					logging.Logger.Warn("dropping feed event for slow client", zap.String("moderator", client.moderator.Id))
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

// InitSubscriptions relays the submissions channel into the hub until
// shutdownCtx is cancelled.
func (h *Hub) InitSubscriptions(shutdownCtx context.Context) error {
	err := h.gardenCache.Subscribe(shutdownCtx, service.SubmissionsChannel, func(message []byte) {
		var event service.SubmissionEvent
		if err := json.Unmarshal(message, &event); err != nil {
			logging.Logger.Warn("failed to unmarshal submission event", zap.Error(err))
			return
		}
		h.BroadcastCh <- broadcast{category: event.Data.Category, message: message}
	})
	if err != nil {
		logging.Logger.Error("ws hub failed to subscribe", zap.String("channel", service.SubmissionsChannel), zap.Error(err))
		return err
	}
	return nil
}
