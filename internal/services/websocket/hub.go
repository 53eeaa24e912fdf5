package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gatherly/citrine/pkg/database"
)

// Event types
const (
	EventTypeReady          = "READY"
	EventTypeHeartbeat      = "HEARTBEAT"
	EventTypeHeartbeatAck   = "HEARTBEAT_ACK"
	EventTypePresenceUpdate = "PRESENCE_UPDATE"
)

const userEventsChannel = "websocket:user-events"

// Hub manages all WebSocket connections. Events are addressed per user; a
// user can hold several connections and every one of them gets the event.
type Hub struct {
	clients     map[uuid.UUID]*Client
	userClients map[uuid.UUID][]*Client
	register    chan *Client
	unregister  chan *Client
	redis       *redis.Client
	// instanceID marks this hub's own publishes so the Redis subscription
	// can drop them; local delivery already happened in SendUserEvent.
	instanceID string
	mu         sync.RWMutex
}

// Event represents a WebSocket event
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ClientMessage represents an incoming message from a client
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[uuid.UUID][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		redis:       redisClient,
		instanceID:  uuid.NewString(),
	}
}

func (h *Hub) Run(ctx context.Context) {
	// Redis subscription delivers events published by other instances
	go h.subscribeToRedis(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	h.userClients[client.UserID] = append(h.userClients[client.UserID], client)

	log.Info().
		Str("clientId", client.ID.String()).
		Str("userId", client.UserID.String()).
		Msg("WebSocket client connected")

	h.setUserPresence(context.Background(), client.UserID, "online")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)

	clients := h.userClients[client.UserID]
	for i, c := range clients {
		if c.ID == client.ID {
			h.userClients[client.UserID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}

	if len(h.userClients[client.UserID]) == 0 {
		delete(h.userClients, client.UserID)
		h.setUserPresence(context.Background(), client.UserID, "offline")
	}

	log.Info().
		Str("clientId", client.ID.String()).
		Str("userId", client.UserID.String()).
		Msg("WebSocket client disconnected")
}

// SendUserEvent delivers an event to every connection of a user, here and on
// other instances via Redis.
func (h *Hub) SendUserEvent(userID uuid.UUID, eventType string, data any) {
	event := &Event{Type: eventType, Data: data}
	h.sendToLocalUser(userID, event)
	h.publishToRedis(context.Background(), userID, event)
}

func (h *Hub) sendToLocalUser(userID uuid.UUID, event *Event) {
	h.mu.RLock()
	clients := h.userClients[userID]
	h.mu.RUnlock()

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal user event")
		return
	}

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			log.Warn().Str("clientId", client.ID.String()).Msg("Client send buffer full")
		}
	}
}

// IsUserOnline checks if a user has any active connections on this instance
func (h *Hub) IsUserOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.userClients[userID]
	return ok
}

// GetUserConnectionCount returns the number of active connections for a user
func (h *Hub) GetUserConnectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID])
}

// Redis pub/sub for horizontal scaling
type userEventPayload struct {
	Origin string `json:"origin"`
	UserID string `json:"userId"`
	Event  *Event `json:"event"`
}

func (h *Hub) publishToRedis(ctx context.Context, userID uuid.UUID, event *Event) {
	payload := userEventPayload{
		Origin: h.instanceID,
		UserID: userID.String(),
		Event:  event,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return
	}

	h.redis.Publish(ctx, userEventsChannel, jsonData)
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, userEventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			h.handleRemoteEvent([]byte(msg.Payload))
		}
	}
}

// handleRemoteEvent delivers a published event to local connections. Events
// this instance published itself are dropped; SendUserEvent already handed
// them to local clients.
func (h *Hub) handleRemoteEvent(raw []byte) {
	var payload userEventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	if payload.Origin == h.instanceID {
		return
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return
	}

	// Deliver to local connections only; never republish
	h.sendToLocalUser(userID, payload.Event)
}

// Presence management
func (h *Hub) setUserPresence(ctx context.Context, userID uuid.UUID, status string) {
	if err := database.SetUserPresence(ctx, userID.String(), status, 5*time.Minute); err != nil {
		log.Warn().Err(err).Str("userId", userID.String()).Msg("Failed to set presence")
		return
	}

	event := &Event{
		Type: EventTypePresenceUpdate,
		Data: map[string]any{
			"userId": userID.String(),
			"status": status,
		},
	}
	data, _ := json.Marshal(event)
	h.redis.Publish(ctx, "presence:"+userID.String(), data)
}

func (h *Hub) GetUserPresence(ctx context.Context, userID uuid.UUID) string {
	status, err := database.GetUserPresence(ctx, userID.String())
	if err != nil {
		return "offline"
	}
	return status
}
