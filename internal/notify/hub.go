package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Client is one websocket connection and the rooms it has joined.
type Client struct {
	ID    string
	Rooms []string
	Send  chan []byte

	// Subject is the identity resolved when the connection was opened.
	Subject Subject
}

// Subject limits which rooms a client may join. Zero-valued ids mean the
// client is not bound to a patient or a doctor.
type Subject struct {
	UserID    string
	PatientID string
	DoctorID  string
	Staff     bool
}

// Hub tracks websocket clients and their room memberships. It implements
// Emitter for deliveries inside this process.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	all   map[*Client]struct{}
	log   zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		all:   make(map[*Client]struct{}),
		log:   logger.With().Str("component", "notify_hub").Logger(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, room := range client.Rooms {
		h.joinLocked(client, room)
	}
}

// Unregister removes a client from every room and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for _, room := range client.Rooms {
		h.leaveLocked(client, room)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[room][client]; ok {
		return
	}
	h.joinLocked(client, room)
	client.Rooms = append(client.Rooms, room)
}

func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(client, room)
	remaining := client.Rooms[:0]
	for _, r := range client.Rooms {
		if r != room {
			remaining = append(remaining, r)
		}
	}
	client.Rooms = remaining
}

func (h *Hub) joinLocked(client *Client, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
}

func (h *Hub) leaveLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// broadcast sends data to every member of room for which skip is false.
func (h *Hub) broadcast(room string, data []byte, skip func(*Client) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		if skip(client) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking.
			h.log.Debug().Str("client_id", client.ID).Str("room", room).Msg("dropping event for slow client")
		}
	}
}

// Deliver broadcasts an envelope to the room's local members, skipping the
// client the envelope originated from.
func (h *Hub) Deliver(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Str("event", env.Event).Msg("failed to marshal envelope")
		return
	}
	h.broadcast(env.Room, data, func(c *Client) bool {
		return env.Origin != "" && c.ID == env.Origin
	})
}

// Publish implements Emitter for subscribers connected to this process.
func (h *Hub) Publish(ctx context.Context, room, event string, payload any) error {
	env, err := newEnvelope(ctx, room, event, payload)
	if err != nil {
		return err
	}
	h.Deliver(env)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
