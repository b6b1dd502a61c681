package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type publishedEvent struct {
	room   string
	event  string
	origin string
}

type chanEmitter chan publishedEvent

func (c chanEmitter) Publish(ctx context.Context, room, event string, _ any) error {
	c <- publishedEvent{room: room, event: event, origin: originOf(ctx)}
	return nil
}

func TestHub_OriginIsNotEchoed(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sender := newClient("sender", "room")
	peer := newClient("peer", "room")
	hub.Register(sender)
	hub.Register(peer)

	if err := hub.Publish(WithOrigin(context.Background(), sender.ID), "room", EventReceiveMessage, "hi"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-peer.Send:
	default:
		t.Fatal("peer did not receive the frame")
	}
	select {
	case data := <-sender.Send:
		t.Fatalf("sender received its own frame: %s", data)
	default:
	}
}

func TestHub_RelayedEnvelopeKeepsOrigin(t *testing.T) {
	// Envelopes crossing Redis or AMQP are decoded and delivered on every
	// instance; the origin client must still be skipped.
	env, err := newEnvelope(WithOrigin(context.Background(), "sender"), "room", EventReceiveMessage, "hi")
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Origin != "sender" {
		t.Fatalf("origin = %q", decoded.Origin)
	}

	hub := NewHub(zerolog.Nop())
	sender := newClient("sender", "room")
	peer := newClient("peer", "room")
	hub.Register(sender)
	hub.Register(peer)
	hub.Deliver(decoded)

	if len(peer.Send) != 1 || len(sender.Send) != 0 {
		t.Fatalf("peer got %d frames, sender got %d", len(peer.Send), len(sender.Send))
	}
}

func TestWebSocketHandler_SendGoesThroughEmitter(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	emitted := make(chanEmitter, 1)
	patient, doctor := uuid.New(), uuid.New()

	resolve := func(*http.Request) (Subject, bool) {
		return Subject{PatientID: patient.String()}, true
	}
	server := httptest.NewServer(NewWebSocketHandler(hub, resolve, zerolog.Nop(), WithEmitter(emitted)))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	join := ClientMessage{Action: ActionJoinChat, PatientID: patient.String(), DoctorID: doctor.String()}
	if err := conn.WriteJSON(join); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack Envelope
	if err := conn.ReadJSON(&ack); err != nil || ack.Event != eventJoined {
		t.Fatalf("join ack = %+v, %v", ack, err)
	}

	send := join
	send.Action = ActionSendMessage
	send.Message = "running late"
	if err := conn.WriteJSON(send); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-emitted:
		if ev.room != RoomKey(patient, doctor) || ev.event != EventReceiveMessage {
			t.Fatalf("published %+v", ev)
		}
		if ev.origin == "" {
			t.Fatal("chat frame published without its origin client")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("chat frame never reached the emitter")
	}
}

func TestOriginChecker(t *testing.T) {
	request := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	if originChecker(nil) != nil || originChecker([]string{" ", ""}) != nil {
		t.Fatal("empty list should keep the same-host default")
	}

	wildcard := originChecker([]string{"*"})
	if !wildcard(request("https://anywhere.example")) {
		t.Error("wildcard should allow any origin")
	}

	check := originChecker([]string{"https://clinic.example/", "http://localhost:3000"})
	cases := []struct {
		origin string
		want   bool
	}{
		{"https://clinic.example", true},
		{"HTTPS://CLINIC.EXAMPLE", true},
		{"http://localhost:3000", true},
		{"https://evil.example", false},
		{"http://clinic.example", false},
		{"", true},
	}
	for _, tc := range cases {
		if got := check(request(tc.origin)); got != tc.want {
			t.Errorf("origin %q: allowed = %v, want %v", tc.origin, got, tc.want)
		}
	}
}

func TestWebSocketHandler_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	resolve := func(*http.Request) (Subject, bool) { return Subject{Staff: true}, true }
	server := httptest.NewServer(NewWebSocketHandler(hub, resolve, zerolog.Nop(),
		WithAllowedOrigins([]string{"https://clinic.example"})))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example"}})
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin should be refused with 403, got err=%v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://clinic.example"}})
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	conn.Close()
}
