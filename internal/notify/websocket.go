package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	ActionJoinChat    = "join_chat"
	ActionLeaveChat   = "leave_chat"
	ActionSendMessage = "send_message"

	eventError  = "error"
	eventJoined = "joined_chat"
)

// ClientMessage is an inbound frame from a websocket client.
type ClientMessage struct {
	Action    string `json:"action"`
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Message   string `json:"message,omitempty"`
}

// ChatPayload is the payload of receive_message events.
type ChatPayload struct {
	PatientID string    `json:"patient_id"`
	DoctorID  string    `json:"doctor_id"`
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// SubjectResolver identifies the caller of an upgrade request; false
// rejects the connection with 401.
type SubjectResolver func(r *http.Request) (Subject, bool)

const publishTimeout = 5 * time.Second

// WebSocketHandler upgrades HTTP connections and routes client frames.
type WebSocketHandler struct {
	hub      *Hub
	emitter  Emitter
	resolve  SubjectResolver
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

type WebSocketOption func(*WebSocketHandler)

// WithEmitter routes chat frames through e so clients connected to other
// instances receive them. The hub itself is used by default.
func WithEmitter(e Emitter) WebSocketOption {
	return func(h *WebSocketHandler) {
		if e != nil {
			h.emitter = e
		}
	}
}

// WithAllowedOrigins limits browser upgrades to the given origins. "*" allows
// any origin. Without this option only same-host origins are accepted.
func WithAllowedOrigins(origins []string) WebSocketOption {
	return func(h *WebSocketHandler) {
		h.upgrader.CheckOrigin = originChecker(origins)
	}
}

func NewWebSocketHandler(hub *Hub, resolve SubjectResolver, logger zerolog.Logger, opts ...WebSocketOption) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:     hub,
		emitter: hub,
		resolve: resolve,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logger.With().Str("component", "websocket").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// originChecker returns nil for an empty list, which keeps the upgrader's
// same-host check. Requests without an Origin header are not from browsers
// and pass.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o == "" {
			continue
		}
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}
}

func (wsh *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject := Subject{Staff: true}
	if wsh.resolve != nil {
		s, ok := wsh.resolve(r)
		if !ok {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		subject = s
	}

	ws, err := wsh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsh.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		ID:      uuid.NewString(),
		Rooms:   []string{},
		Send:    make(chan []byte, 256),
		Subject: subject,
	}
	wsh.hub.Register(client)

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)
}

func (wsh *WebSocketHandler) readPump(client *Client, ws *websocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // Ignore malformed frames.
		}
		wsh.handle(client, msg)
	}
}

func (wsh *WebSocketHandler) writePump(client *Client, ws *websocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (wsh *WebSocketHandler) handle(client *Client, msg ClientMessage) {
	patientID, err1 := uuid.Parse(msg.PatientID)
	doctorID, err2 := uuid.Parse(msg.DoctorID)
	if err1 != nil || err2 != nil {
		wsh.reply(client, eventError, map[string]string{"error": "patient_id and doctor_id must be UUIDs"})
		return
	}
	room := RoomKey(patientID, doctorID)

	switch msg.Action {
	case ActionJoinChat:
		if !client.Subject.allows(patientID, doctorID) {
			wsh.reply(client, eventError, map[string]string{"error": "forbidden"})
			return
		}
		wsh.hub.Join(client, room)
		wsh.reply(client, eventJoined, map[string]string{"room": room})

	case ActionLeaveChat:
		wsh.hub.Leave(client, room)

	case ActionSendMessage:
		if !wsh.isMember(client, room) {
			wsh.reply(client, eventError, map[string]string{"error": "join the chat first"})
			return
		}
		ctx, cancel := context.WithTimeout(WithOrigin(context.Background(), client.ID), publishTimeout)
		defer cancel()
		err := wsh.emitter.Publish(ctx, room, EventReceiveMessage, ChatPayload{
			PatientID: msg.PatientID,
			DoctorID:  msg.DoctorID,
			Sender:    client.Subject.senderRole(),
			Message:   msg.Message,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			wsh.log.Warn().Err(err).Str("room", room).Msg("chat frame publish failed")
			wsh.reply(client, eventError, map[string]string{"error": "message not delivered"})
		}
	}
}

func (wsh *WebSocketHandler) isMember(client *Client, room string) bool {
	wsh.hub.mu.RLock()
	defer wsh.hub.mu.RUnlock()
	_, ok := wsh.hub.rooms[room][client]
	return ok
}

func (wsh *WebSocketHandler) reply(client *Client, event string, payload any) {
	env, err := newEnvelope(context.Background(), "", event, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	wsh.hub.mu.RLock()
	defer wsh.hub.mu.RUnlock()
	if _, ok := wsh.hub.all[client]; !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

func (s Subject) allows(patientID, doctorID uuid.UUID) bool {
	if s.Staff {
		return true
	}
	if s.PatientID != "" && s.PatientID != patientID.String() {
		return false
	}
	if s.DoctorID != "" && s.DoctorID != doctorID.String() {
		return false
	}
	return s.PatientID != "" || s.DoctorID != ""
}

func (s Subject) senderRole() string {
	if s.PatientID != "" {
		return "PATIENT"
	}
	return "DOCTOR"
}
