package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cachemocks "github.com/zlnvch/garden/cache/mocks"
	classifiermocks "github.com/zlnvch/garden/classifier/mocks"
	"github.com/zlnvch/garden/models"
	mqmocks "github.com/zlnvch/garden/mq/mocks"
	objectmocks "github.com/zlnvch/garden/objectstore/mocks"
	"github.com/zlnvch/garden/service"
	storemocks "github.com/zlnvch/garden/store/mocks"
)

var moderator = models.Moderator{Id: "m1", Username: "gardener", Provider: "github", ProviderId: "42"}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(new(cachemocks.MockCache))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func subscribe(hub *Hub, client *Client, category models.Category) bool {
	sub := subscription{client: client, category: category, result: make(chan bool, 1)}
	hub.SubscribeCh <- sub
	return <-sub.result
}

func event(t *testing.T, category models.Category) []byte {
	t.Helper()
	data, err := json.Marshal(service.SubmissionEvent{
		Type: service.EventSubmissionCreated,
		Data: models.Submission{Id: "s1", Category: category},
	})
	require.NoError(t, err)
	return data
}

func receive(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		require.Fail(t, "timed out waiting for message")
	}
	return nil
}

func TestHub_BroadcastsByCategory(t *testing.T) {
	hub := startHub(t)

	flowers := NewClient(hub, nil, moderator, nil)
	eggplants := NewClient(hub, nil, models.Moderator{Id: "m2"}, nil)
	hub.OpenCh <- flowers
	hub.OpenCh <- eggplants

	require.True(t, subscribe(hub, flowers, models.CategoryFlowers))
	require.True(t, subscribe(hub, eggplants, models.CategoryEggplants))

	hub.BroadcastCh <- broadcast{category: models.CategoryFlowers, message: []byte("flower")}
	assert.Equal(t, []byte("flower"), receive(t, flowers.Send))

	hub.BroadcastCh <- broadcast{category: models.CategoryEggplants, message: []byte("eggplant")}
	assert.Equal(t, []byte("eggplant"), receive(t, eggplants.Send))
	assert.Empty(t, flowers.Send)
}

func TestHub_MaxConnectionsPerModerator(t *testing.T) {
	hub := startHub(t)

	clients := make([]*Client, maxConnectionsPerModerator+1)
	for i := range clients {
		clients[i] = NewClient(hub, nil, moderator, nil)
		hub.OpenCh <- clients[i]
	}

	// The extra connection is refused and cannot subscribe
	last := clients[len(clients)-1]
	_, open := <-last.Send
	assert.False(t, open)
	assert.False(t, subscribe(hub, last, models.CategoryFlowers))

	assert.True(t, subscribe(hub, clients[0], models.CategoryFlowers))
}

func TestHub_InitSubscriptionsRelaysEvents(t *testing.T) {
	cache := new(cachemocks.MockCache)
	var relay func([]byte)
	cache.On("Subscribe", mock.Anything, service.SubmissionsChannel, mock.Anything).
		Run(func(args mock.Arguments) { relay = args.Get(2).(func(message []byte)) }).
		Return(nil)

	hub := NewHub(cache)
	require.NoError(t, hub.InitSubscriptions(context.Background()))
	require.NotNil(t, relay)

	relay([]byte("not json"))
	relay(event(t, models.CategoryEggplants))

	b := <-hub.BroadcastCh
	assert.Equal(t, models.CategoryEggplants, b.category)
	assert.Empty(t, hub.BroadcastCh)
}

type feed struct {
	server *httptest.Server
	svc    *service.Service
	store  *storemocks.MockStore
	relay  func([]byte)
}

func startFeed(t *testing.T) *feed {
	t.Helper()
	st := new(storemocks.MockStore)
	cache := new(cachemocks.MockCache)

	f := &feed{store: st}
	cache.On("Subscribe", mock.Anything, service.SubmissionsChannel, mock.Anything).
		Run(func(args mock.Arguments) { f.relay = args.Get(2).(func(message []byte)) }).
		Return(nil)

	svc, err := service.NewService(st, cache, new(mqmocks.MockMQ), new(objectmocks.MockObjectStore),
		new(classifiermocks.MockScorer), nil, nil, []byte("secret"),
		service.Options{Moderators: []string{"github:42"}})
	require.NoError(t, err)
	f.svc = svc

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(cache)
	require.NoError(t, hub.InitSubscriptions(ctx))
	go hub.Run(ctx)

	handler := NewHandler(svc, hub)
	upgrader := handler.NewWsUpgrader("*")
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeWS(upgrader, w, r, ctx)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *feed) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: []string{Subprotocol, token}}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(f.server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestServeWS_RejectsBadToken(t *testing.T) {
	f := startFeed(t)
	conn := f.dial(t, "not-a-token")

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestServeWS_MissingToken(t *testing.T) {
	f := startFeed(t)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.server.URL, "http"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWS_SubscribeAndReceive(t *testing.T) {
	f := startFeed(t)
	f.store.On("GetModerator", mock.Anything, "github", "42").Return(moderator, nil)

	token, err := f.svc.CreateJWT(moderator.Id, moderator.Provider, moderator.ProviderId)
	require.NoError(t, err)
	conn := f.dial(t, token)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "data": map[string]string{"category": "flowers"}}))

	var resp responseMessage
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "subscribe_response", resp.Type)
	assert.Equal(t, true, resp.Data.(map[string]any)["success"])

	f.relay(event(t, models.CategoryFlowers))

	var got service.SubmissionEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, service.EventSubmissionCreated, got.Type)
	assert.Equal(t, "s1", got.Data.Id)
}

func TestServeWS_Flag(t *testing.T) {
	f := startFeed(t)
	f.store.On("GetModerator", mock.Anything, "github", "42").Return(moderator, nil)
	f.store.On("SetManualModeration", mock.Anything, models.CategoryEggplants, "missing").
		Return(models.Submission{}, assert.AnError)

	token, err := f.svc.CreateJWT(moderator.Id, moderator.Provider, moderator.ProviderId)
	require.NoError(t, err)
	conn := f.dial(t, token)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "flag", "data": map[string]string{"category": "eggplants", "id": "missing"}}))

	var resp responseMessage
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "flag_response", resp.Type)
	assert.Equal(t, false, resp.Data.(map[string]any)["success"])
}
