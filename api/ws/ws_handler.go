package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/service"
)

const Subprotocol = "garden-moderation-v1"

type Handler struct {
	Service *service.Service
	Hub     *Hub
}

func NewHandler(svc *service.Service, hub *Hub) *Handler {
	return &Handler{
		Service: svc,
		Hub:     hub,
	}
}

func (h *Handler) NewWsUpgrader(requiredOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if requiredOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == requiredOrigin
		},
		Subprotocols: []string{Subprotocol},
	}
}

// ServeWS upgrades a moderator connection. Browsers cannot set headers on
// websocket requests, so the token travels as the second subprotocol.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	protocols := r.Header.Get("Sec-WebSocket-Protocol")
	protocolsSplit := strings.Split(protocols, ",")

	if len(protocolsSplit) != 2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token := strings.TrimSpace(protocolsSplit[1])

	moderator, authErr := h.Service.AuthenticateToken(r.Context(), token)

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Logger.Warn("failed to upgrade ws connection", zap.Error(err))
		return
	}

	// Must upgrade the connection in order to be able to send custom close message
	if authErr != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthenticated"),
		)
		conn.Close()
		return
	}

	client := NewClient(h.Hub, conn, moderator, h.HandleWsMessage)
	h.Hub.OpenCh <- client

	go client.ReadPump()
	go client.WritePump(shutdownCtx)
}

// Websocket message structs
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type categoryMessage struct {
	Category string `json:"category"`
}

type flagMessage struct {
	Category string `json:"category"`
	Id       string `json:"id"`
}

type responseMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (h *Handler) HandleWsMessage(client *Client, messageType int, messageBytes []byte) {
	var msg message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		logging.Logger.Debug("invalid ws JSON", zap.Error(err))
		return
	}

	var resp responseMessage

	switch msg.Type {
	case "subscribe", "unsubscribe":
		var catMsg categoryMessage
		if err := json.Unmarshal(msg.Data, &catMsg); err != nil {
			logging.Logger.Debug("invalid subscribe data", zap.Error(err))
			return
		}
		resp = h.handleSubscription(client, catMsg, msg.Type == "subscribe")

	case "flag":
		var flagMsg flagMessage
		if err := json.Unmarshal(msg.Data, &flagMsg); err != nil {
			logging.Logger.Debug("invalid flag data", zap.Error(err))
			return
		}
		resp = h.handleFlag(client, flagMsg)

	default:
		logging.Logger.Debug("unknown ws message type", zap.String("type", msg.Type))
	}

	if resp.Type != "" {
		respBytes, err := json.Marshal(resp)
		if err != nil {
			logging.Logger.Error("error marshaling ws response", zap.Error(err))
			return
		}
		client.Send <- respBytes
	}
}

func (h *Handler) handleSubscription(client *Client, catMsg categoryMessage, subscribe bool) responseMessage {
	resp := responseMessage{Type: "unsubscribe_response"}
	ch := h.Hub.UnsubscribeCh
	if subscribe {
		resp.Type = "subscribe_response"
		ch = h.Hub.SubscribeCh
	}

	category, ok := models.ParseCategory(catMsg.Category)
	if !ok {
		resp.Data = map[string]any{"success": false, "category": catMsg.Category}
		return resp
	}

	sub := subscription{client: client, category: category, result: make(chan bool, 1)}
	ch <- sub
	resp.Data = map[string]any{"success": <-sub.result, "category": category}
	return resp
}

func (h *Handler) handleFlag(client *Client, flagMsg flagMessage) responseMessage {
	resp := responseMessage{Type: "flag_response"}

	sub, err := h.Service.FlagSubmission(context.Background(), client.moderator, flagMsg.Category, flagMsg.Id)
	if err != nil {
		logging.Logger.Info("flag over ws failed", zap.String("id", flagMsg.Id), zap.Error(err))
		resp.Data = map[string]any{"success": false, "error": err.Error(), "category": flagMsg.Category, "id": flagMsg.Id}
		return resp
	}

	resp.Data = map[string]any{"success": true, "category": sub.Category, "id": sub.Id}
	return resp
}
