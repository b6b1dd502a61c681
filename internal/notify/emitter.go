// Package notify fans booking, chat and announcement events out to the
// websocket rooms of patient-doctor pairs.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	EventBookingCreated          = "booking_created"
	EventAppointmentStatusChange = "appointment_status_changed"
	EventReceiveMessage          = "receive_message"
	EventAnnouncementReceived    = "announcement_received"
)

// Emitter publishes an event to every subscriber of room. Delivery is best
// effort: a room without subscribers is not an error. Events published by
// one goroutine to the same room keep their order.
type Emitter interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

// RoomKey names the room shared by one patient and one doctor.
func RoomKey(patientID, doctorID uuid.UUID) string {
	return fmt.Sprintf("chat_patient_%s_doctor_%s", patientID, doctorID)
}

// Envelope is the wire form of an event on every transport. Origin is the
// websocket client that produced the event; that client is not sent it back.
type Envelope struct {
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Origin  string          `json:"origin,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type originKey struct{}

// WithOrigin marks events published with the returned context as sent by the
// websocket client clientID.
func WithOrigin(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, originKey{}, clientID)
}

func originOf(ctx context.Context) string {
	id, _ := ctx.Value(originKey{}).(string)
	return id
}

func newEnvelope(ctx context.Context, room, event string, payload any) (Envelope, error) {
	env := Envelope{Room: room, Event: event, Origin: originOf(ctx)}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	env.Payload = data
	return env, nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) error { return nil }
