// Package messaging stores patient-doctor chat and doctor announcements and
// pushes both to the pair's notification room.
package messaging

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput     = errors.New("invalid message")
	ErrCampaignNotFound = errors.New("campaign not found")
)

type Sender string

const (
	SenderDoctor  Sender = "DOCTOR"
	SenderPatient Sender = "PATIENT"
)

func ParseSender(s string) (Sender, error) {
	switch Sender(strings.ToUpper(strings.TrimSpace(s))) {
	case SenderDoctor:
		return SenderDoctor, nil
	case SenderPatient:
		return SenderPatient, nil
	}
	return "", fmt.Errorf("%w: sender must be DOCTOR or PATIENT", ErrInvalidInput)
}

type TargetMode string

const (
	TargetUpcoming TargetMode = "UPCOMING"
	TargetToday    TargetMode = "TODAY"
	TargetCustom   TargetMode = "CUSTOM"
)

// ParseTargetMode defaults an empty mode to UPCOMING.
func ParseTargetMode(s string) (TargetMode, error) {
	switch TargetMode(strings.ToUpper(strings.TrimSpace(s))) {
	case "", TargetUpcoming:
		return TargetUpcoming, nil
	case TargetToday:
		return TargetToday, nil
	case TargetCustom:
		return TargetCustom, nil
	}
	return "", fmt.Errorf("%w: unknown target mode %q", ErrInvalidInput, s)
}

// announcementPrefix marks the chat copy of an announcement.
const announcementPrefix = "Announcement: "

const (
	defaultHistoryLimit  = 200
	maxHistoryLimit      = 500
	defaultReceivedLimit = 30
	maxReceivedLimit     = 100
	inboxWindow          = 5 * time.Minute
)

type Message struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Sender    Sender
	Content   string
	CreatedAt time.Time
}

type SendRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Sender    Sender
	Content   string
}

// InboxQuery selects messages addressed to one side of the conversation.
type InboxQuery struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	From      Sender
	Since     time.Time
	Limit     int
}

func (q InboxQuery) Match(m Message) bool {
	if q.PatientID != nil && m.PatientID != *q.PatientID {
		return false
	}
	if q.DoctorID != nil && m.DoctorID != *q.DoctorID {
		return false
	}
	return m.Sender == q.From && m.CreatedAt.After(q.Since)
}

// Inbox summarizes recent incoming messages.
type Inbox struct {
	Count    int
	LatestAt *time.Time
	Latest   *Message
}

type Campaign struct {
	ID             uuid.UUID
	DoctorID       uuid.UUID
	Message        string
	TargetMode     TargetMode
	TargetDate     *time.Time
	RecipientCount int
	CreatedAt      time.Time
}

// Received is an announcement as seen by one recipient.
type Received struct {
	CampaignID uuid.UUID
	DoctorID   uuid.UUID
	Message    string
	CreatedAt  time.Time
	ReceivedAt time.Time
}

// Command is either SendAnnouncement or ResendAnnouncement.
type Command interface {
	isCommand()
}

// SendAnnouncement targets the doctor's patients with live appointments in
// the window selected by TargetMode. TargetDate is required for CUSTOM.
type SendAnnouncement struct {
	Message    string
	TargetMode TargetMode
	TargetDate *time.Time
}

// ResendAnnouncement repeats a previous campaign to its recipients,
// optionally with a new message.
type ResendAnnouncement struct {
	CampaignID uuid.UUID
	Message    string
}

func (SendAnnouncement) isCommand()   {}
func (ResendAnnouncement) isCommand() {}

type Outcome struct {
	CampaignID *uuid.UUID
	Sent       int
	TargetMode TargetMode
	TargetDate *time.Time
	ResentFrom *uuid.UUID
}

// AnnouncementPayload is the payload of announcement_received events.
type AnnouncementPayload struct {
	CampaignID string    `json:"campaign_id"`
	PatientID  string    `json:"patient_id"`
	DoctorID   string    `json:"doctor_id"`
	Sender     string    `json:"sender"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
