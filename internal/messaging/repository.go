package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	InsertMessage(ctx context.Context, m Message) (*Message, error)
	// ListMessages returns a conversation oldest first.
	ListMessages(ctx context.Context, patientID, doctorID uuid.UUID) ([]Message, error)
	// Incoming returns matching messages newest first.
	Incoming(ctx context.Context, q InboxQuery) ([]Message, error)

	// CreateCampaign writes the campaign, its recipients and the mirrored
	// chat messages in one transaction.
	CreateCampaign(ctx context.Context, c Campaign, recipients []uuid.UUID, mirrored []Message) (*Campaign, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, []uuid.UUID, error)
	ListCampaigns(ctx context.Context, doctorID uuid.UUID, limit int) ([]Campaign, error)
	ListReceived(ctx context.Context, patientID uuid.UUID, limit int) ([]Received, error)
}

// TargetFinder lists the distinct patients with live appointments with a
// doctor dated from..to (inclusive; nil to means open ended).
type TargetFinder interface {
	PatientsWithAppointments(ctx context.Context, doctorID uuid.UUID, from time.Time, to *time.Time) ([]uuid.UUID, error)
}
