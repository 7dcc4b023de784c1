package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat (seconds).
	PingInterval = 30
	PongWait     = 60
)

// EventAssignmentsChanged is broadcast after any persisted assignment
// mutation. Sessions reload unless they originated the change.
const EventAssignmentsChanged = "assignments_changed"

// EventCustomizationSaved is broadcast after a successful save.
const EventCustomizationSaved = "customization_saved"

// RoomKey identifies a settings editing room: one per (organization,
// vertical) pair.
type RoomKey struct {
	OrgID      uuid.UUID
	VerticalID string
}

// ChangeEvent is the payload for change notifications.
type ChangeEvent struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	VerticalID     string    `json:"vertical_id"`
	OriginSession  uuid.UUID `json:"origin_session"`
	Version        int       `json:"version,omitempty"`
}

// ForeignChangeHandler is invoked for assignment changes so server-held
// session state reloads alongside connected clients.
type ForeignChangeHandler func(orgID uuid.UUID, verticalID string, originSession uuid.UUID)

// Publisher publishes room events to Redis for cross-instance fanout.
// origin identifies the publishing hub so it can skip its own echo.
type Publisher interface {
	PublishRoomEvent(key RoomKey, origin, event string, payload []byte) error
}

// Subscriber subscribes to a room's Redis channel.
type Subscriber interface {
	SubscribeRoom(key RoomKey, handler func(origin, event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains room -> connection sets and fans change events out to
// clients, Redis, and the server-side session manager.
type Hub struct {
	instance string // identifies this hub on the Redis channel
	rooms    map[RoomKey]map[string]*Client
	subs     map[RoomKey]func() // cancel Redis subscription per room
	mu       sync.RWMutex
	logger   *zap.Logger
	pub      Publisher
	sub      Subscriber
	onChange ForeignChangeHandler
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	return &Hub{
		instance: uuid.NewString(),
		rooms:    make(map[RoomKey]map[string]*Client),
		subs:     make(map[RoomKey]func()),
		logger:   logger,
		pub:      pub,
		sub:      sub,
	}
}

// SetForeignChangeHandler sets the callback invoked on assignment changes.
func (h *Hub) SetForeignChangeHandler(fn ForeignChangeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = fn
}

// Register adds a client to its room, starting the room's Redis
// subscription on first join.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	key := c.Room
	if h.rooms[key] == nil {
		h.rooms[key] = make(map[string]*Client)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeRoom(key, func(origin, event string, payload []byte) {
				h.handleRemoteEvent(key, origin, event, payload)
			})
			if err == nil {
				h.subs[key] = cancel
			} else {
				h.logger.Warn("room subscribe failed", zap.Error(err))
			}
		}
	}
	h.rooms[key][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined settings room",
		zap.String("client_id", c.ID),
		zap.String("organization_id", key.OrgID.String()),
		zap.String("vertical_id", key.VerticalID))
}

// Unregister removes a client, cancelling the Redis subscription when the
// room empties.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	key := c.Room
	if m, ok := h.rooms[key]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, key)
			if cancel, ok := h.subs[key]; ok {
				cancel()
				delete(h.subs, key)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left settings room", zap.String("client_id", c.ID))
}

// handleRemoteEvent reacts to an event relayed through Redis from another
// instance: broadcast to local clients and reload local session state.
// Events this hub published are already delivered locally, so its own
// echo is dropped.
func (h *Hub) handleRemoteEvent(key RoomKey, origin, event string, payload []byte) {
	if origin == h.instance {
		return
	}
	h.Broadcast(key, event, json.RawMessage(payload))
	if event != EventAssignmentsChanged {
		return
	}
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	h.mu.RLock()
	onChange := h.onChange
	h.mu.RUnlock()
	if onChange != nil {
		onChange(key.OrgID, key.VerticalID, ev.OriginSession)
	}
}

// Broadcast sends an event to all clients in a room (local only).
func (h *Hub) Broadcast(key RoomKey, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[key] {
		select {
		case c.send <- msg:
		default:
			// slow consumer: drop rather than block the hub
		}
	}
}

// BroadcastAndPublish sends locally and relays through Redis for other
// instances.
func (h *Hub) BroadcastAndPublish(key RoomKey, event string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.Broadcast(key, event, json.RawMessage(data))
	if h.pub != nil {
		if err := h.pub.PublishRoomEvent(key, h.instance, event, data); err != nil {
			h.logger.Warn("redis publish failed", zap.String("event", event), zap.Error(err))
		}
	}
}

// AssignmentsChanged implements the reconciler's notifier port: fan the
// change out to clients, other instances, and sibling server sessions.
// Runs asynchronously so persisted mutations do not wait on fanout.
func (h *Hub) AssignmentsChanged(orgID uuid.UUID, verticalID string, originSession uuid.UUID) {
	go func() {
		key := RoomKey{OrgID: orgID, VerticalID: verticalID}
		ev := ChangeEvent{OrganizationID: orgID, VerticalID: verticalID, OriginSession: originSession}
		h.BroadcastAndPublish(key, EventAssignmentsChanged, ev)
		h.mu.RLock()
		onChange := h.onChange
		h.mu.RUnlock()
		if onChange != nil {
			onChange(orgID, verticalID, originSession)
		}
	}()
}

// CustomizationSaved notifies a room that a new version was saved.
func (h *Hub) CustomizationSaved(orgID uuid.UUID, verticalID string, originSession uuid.UUID, version int) {
	go func() {
		key := RoomKey{OrgID: orgID, VerticalID: verticalID}
		ev := ChangeEvent{OrganizationID: orgID, VerticalID: verticalID, OriginSession: originSession, Version: version}
		h.BroadcastAndPublish(key, EventCustomizationSaved, ev)
	}()
}

// RoomSize returns the number of connected clients in a room.
func (h *Hub) RoomSize(key RoomKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[key])
}
