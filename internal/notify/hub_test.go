package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func newClient(id string, rooms ...string) *Client {
	return &Client{ID: id, Rooms: rooms, Send: make(chan []byte, 16)}
}

func TestRoomKey(t *testing.T) {
	p := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	d := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	want := "chat_patient_11111111-1111-1111-1111-111111111111_doctor_22222222-2222-2222-2222-222222222222"
	if got := RoomKey(p, d); got != want {
		t.Fatalf("RoomKey = %s", got)
	}
	if RoomKey(p, d) == RoomKey(d, p) {
		t.Fatal("room key must depend on which id is the patient")
	}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c1", "room-a")

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.RoomCount("room-a") != 1 {
		t.Fatalf("after register: clients=%d room=%d", hub.ClientCount(), hub.RoomCount("room-a"))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.RoomCount("room-a") != 0 {
		t.Fatalf("after unregister: clients=%d room=%d", hub.ClientCount(), hub.RoomCount("room-a"))
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("Send should be closed after unregister")
	}

	// A second unregister is a no-op.
	hub.Unregister(client)
}

func TestHub_PublishReachesOnlyRoomMembers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	member := newClient("member")
	outsider := newClient("outsider")
	hub.Register(member)
	hub.Register(outsider)
	hub.Join(member, "room-a")
	hub.Join(member, "room-a")

	if hub.RoomCount("room-a") != 1 || len(member.Rooms) != 1 {
		t.Fatal("joining twice must not duplicate membership")
	}

	if err := hub.Publish(context.Background(), "room-a", EventBookingCreated, map[string]string{"id": "1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-member.Send:
		env, err := DecodeEnvelope(data)
		if err != nil {
			t.Fatal(err)
		}
		if env.Event != EventBookingCreated || env.Room != "room-a" {
			t.Fatalf("unexpected envelope %+v", env)
		}
		if !strings.Contains(string(env.Payload), `"id":"1"`) {
			t.Fatalf("payload = %s", env.Payload)
		}
	default:
		t.Fatal("member did not receive the event")
	}

	select {
	case <-outsider.Send:
		t.Fatal("outsider received a room event")
	default:
	}

	hub.Leave(member, "room-a")
	_ = hub.Publish(context.Background(), "room-a", EventBookingCreated, nil)
	select {
	case <-member.Send:
		t.Fatal("left member received an event")
	default:
	}
}

func TestHub_PublishWithoutSubscribersIsNotAnError(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	if err := hub.Publish(context.Background(), "empty", EventReceiveMessage, nil); err != nil {
		t.Fatalf("Publish to empty room: %v", err)
	}
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	slow := &Client{ID: "slow", Send: make(chan []byte, 1)}
	hub.Register(slow)
	hub.Join(slow, "room")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = hub.Publish(context.Background(), "room", EventReceiveMessage, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publishing blocked on a slow client")
	}
}

func TestHub_PreservesOrderWithinRoom(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c", "room")
	hub.Register(client)

	for i := 0; i < 10; i++ {
		_ = hub.Publish(context.Background(), "room", EventReceiveMessage, i)
	}
	for i := 0; i < 10; i++ {
		env, _ := DecodeEnvelope(<-client.Send)
		var got int
		_ = json.Unmarshal(env.Payload, &got)
		if got != i {
			t.Fatalf("event %d arrived at position %d", got, i)
		}
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient(uuid.NewString(), "room")
			hub.Register(c)
			_ = hub.Publish(context.Background(), "room", EventReceiveMessage, nil)
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Fatalf("clients left: %d", hub.ClientCount())
	}
}

func TestDecodeEnvelope(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed data")
	}
	if _, err := DecodeEnvelope([]byte(`{"event":"x"}`)); err == nil {
		t.Error("expected error for missing room")
	}
	env, err := DecodeEnvelope([]byte(`{"room":"r","event":"e","payload":{"a":1}}`))
	if err != nil || env.Room != "r" || string(env.Payload) != `{"a":1}` {
		t.Fatalf("DecodeEnvelope = %+v, %v", env, err)
	}
}

func TestSubjectAllows(t *testing.T) {
	p, d := uuid.New(), uuid.New()

	cases := []struct {
		name    string
		subject Subject
		want    bool
	}{
		{"staff", Subject{Staff: true}, true},
		{"own patient room", Subject{PatientID: p.String()}, true},
		{"other patient", Subject{PatientID: uuid.NewString()}, false},
		{"own doctor room", Subject{DoctorID: d.String()}, true},
		{"other doctor", Subject{DoctorID: uuid.NewString()}, false},
		{"anonymous", Subject{}, false},
	}
	for _, tc := range cases {
		if got := tc.subject.allows(p, d); got != tc.want {
			t.Errorf("%s: allows = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestWebSocketHandler_ChatRoundTrip(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	patient, doctor := uuid.New(), uuid.New()

	resolve := func(r *http.Request) (Subject, bool) {
		switch r.URL.Query().Get("as") {
		case "patient":
			return Subject{PatientID: patient.String()}, true
		case "doctor":
			return Subject{DoctorID: doctor.String()}, true
		}
		return Subject{}, false
	}

	server := httptest.NewServer(NewWebSocketHandler(hub, resolve, zerolog.Nop()))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous dial should be rejected with 401")
	}

	dial := func(as string) *websocket.Conn {
		t.Helper()
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?as="+as, nil)
		if err != nil {
			t.Fatalf("dial %s: %v", as, err)
		}
		return conn
	}
	pc := dial("patient")
	defer pc.Close()
	dc := dial("doctor")
	defer dc.Close()

	join := ClientMessage{Action: ActionJoinChat, PatientID: patient.String(), DoctorID: doctor.String()}
	for _, c := range []*websocket.Conn{pc, dc} {
		if err := c.WriteJSON(join); err != nil {
			t.Fatal(err)
		}
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ack Envelope
		if err := c.ReadJSON(&ack); err != nil || ack.Event != eventJoined {
			t.Fatalf("join ack = %+v, %v", ack, err)
		}
	}

	room := RoomKey(patient, doctor)
	if hub.RoomCount(room) != 2 {
		t.Fatalf("room members = %d", hub.RoomCount(room))
	}

	send := join
	send.Action = ActionSendMessage
	send.Message = "hello doctor"
	if err := pc.WriteJSON(send); err != nil {
		t.Fatal(err)
	}

	dc.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Envelope
	if err := dc.ReadJSON(&got); err != nil {
		t.Fatalf("doctor read: %v", err)
	}
	var chat ChatPayload
	if err := json.Unmarshal(got.Payload, &chat); err != nil {
		t.Fatal(err)
	}
	if got.Event != EventReceiveMessage || chat.Message != "hello doctor" || chat.Sender != "PATIENT" {
		t.Fatalf("doctor received %+v / %+v", got, chat)
	}

	// Joining a room of another pair is refused.
	other := ClientMessage{Action: ActionJoinChat, PatientID: uuid.NewString(), DoctorID: doctor.String()}
	if err := pc.WriteJSON(other); err != nil {
		t.Fatal(err)
	}
	pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	var refusal Envelope
	if err := pc.ReadJSON(&refusal); err != nil || refusal.Event != eventError {
		t.Fatalf("expected error frame, got %+v, %v", refusal, err)
	}
}
