package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
)

// outboundBuffer bounds the per-client send queue. A client that cannot drain
// 32 frames is considered slow and loses frames rather than stalling the
// session.
const outboundBuffer = 32

type Client struct {
	ID        string
	SessionID string
	Outbound  chan []byte

	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.Outbound)
	})
}

// Hub fans session events out to every WebSocket client joined to that
// session. Rooms are created on first join and removed on last leave.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
	log   *logger.Logger
}

func NewHub(baseLog *logger.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]bool),
		log:   baseLog.With("component", "hub"),
	}
}

func (h *Hub) Join(sessionID string) *Client {
	client := &Client{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Outbound:  make(chan []byte, outboundBuffer),
	}

	h.mu.Lock()
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[sessionID] = room
	}
	room[client] = true
	size := len(room)
	h.mu.Unlock()

	h.log.Debug("Client joined", "session_id", sessionID, "client_id", client.ID, "room_size", size)
	return client
}

func (h *Hub) Leave(client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	if room, ok := h.rooms[client.SessionID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, client.SessionID)
		}
	}
	h.mu.Unlock()

	client.close()
	h.log.Debug("Client left", "session_id", client.SessionID, "client_id", client.ID)
}

// Broadcast delivers an event to every client in the session room, except an
// optional excluded sender. Delivery is non-blocking per client: a full
// outbound queue drops the frame for that client only.
func (h *Hub) Broadcast(sessionID string, event Event, exclude ...*Client) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to encode event", "session_id", sessionID, "event", string(event.Type), "error", err)
		return
	}

	skip := map[*Client]bool{}
	for _, c := range exclude {
		if c != nil {
			skip[c] = true
		}
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[sessionID]))
	for c := range h.rooms[sessionID] {
		if !skip[c] {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.Outbound <- payload:
		default:
			h.log.Warn("Dropping frame for slow client", "session_id", sessionID, "client_id", c.ID, "event", string(event.Type))
		}
	}
}

// Send delivers an event to a single client, with the same drop-on-full rule
// as Broadcast.
func (h *Hub) Send(client *Client, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to encode event", "event", string(event.Type), "error", err)
		return
	}
	select {
	case client.Outbound <- payload:
	default:
		h.log.Warn("Dropping frame for slow client", "client_id", client.ID, "event", string(event.Type))
	}
}

// RoomSize reports how many clients are joined to a session.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}
