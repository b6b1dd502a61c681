package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/notify"
	"github.com/hackgods/clinic-appointment-booking/internal/timeofday"
)

type Service struct {
	repo    Repository
	targets TargetFinder
	emitter notify.Emitter
	log     zerolog.Logger
	now     func() time.Time
	loc     *time.Location
}

type Option func(*Service)

// WithClock sets the clock and the clinic location that defines "today"
// for announcement targeting.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(repo Repository, targets TargetFinder, emitter notify.Emitter, logger zerolog.Logger, opts ...Option) *Service {
	if emitter == nil {
		emitter = notify.Nop{}
	}
	s := &Service{
		repo:    repo,
		targets: targets,
		emitter: emitter,
		log:     logger.With().Str("component", "messaging").Logger(),
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send stores a chat message and pushes it to the pair's room.
func (s *Service) Send(ctx context.Context, req SendRequest) (*Message, error) {
	if req.PatientID == uuid.Nil || req.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id and doctor_id are required", ErrInvalidInput)
	}
	if req.Sender != SenderDoctor && req.Sender != SenderPatient {
		return nil, fmt.Errorf("%w: sender must be DOCTOR or PATIENT", ErrInvalidInput)
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}

	msg, err := s.repo.InsertMessage(ctx, Message{
		ID:        uuid.New(),
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Sender:    req.Sender,
		Content:   content,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}

	s.publishChat(ctx, *msg)
	return msg, nil
}

func (s *Service) Conversation(ctx context.Context, patientID, doctorID uuid.UUID) ([]Message, error) {
	if patientID == uuid.Nil || doctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id and doctor_id are required", ErrInvalidInput)
	}
	msgs, err := s.repo.ListMessages(ctx, patientID, doctorID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// DoctorInbox summarizes patient messages to the doctor since the given
// time, or the last five minutes when since is nil.
func (s *Service) DoctorInbox(ctx context.Context, doctorID uuid.UUID, since *time.Time) (Inbox, error) {
	return s.inbox(ctx, InboxQuery{DoctorID: &doctorID, From: SenderPatient, Limit: 20}, since)
}

// PatientInbox is DoctorInbox for messages sent by doctors to a patient.
func (s *Service) PatientInbox(ctx context.Context, patientID uuid.UUID, since *time.Time) (Inbox, error) {
	return s.inbox(ctx, InboxQuery{PatientID: &patientID, From: SenderDoctor, Limit: 30}, since)
}

func (s *Service) inbox(ctx context.Context, q InboxQuery, since *time.Time) (Inbox, error) {
	q.Since = s.now().Add(-inboxWindow)
	if since != nil {
		q.Since = *since
	}
	msgs, err := s.repo.Incoming(ctx, q)
	if err != nil {
		return Inbox{}, fmt.Errorf("query inbox: %w", err)
	}

	in := Inbox{Count: len(msgs)}
	if len(msgs) > 0 {
		latest := msgs[0]
		in.Latest = &latest
		in.LatestAt = &latest.CreatedAt
	}
	return in, nil
}

// CountTargets reports how many patients an announcement with this mode
// would reach.
func (s *Service) CountTargets(ctx context.Context, doctorID uuid.UUID, mode TargetMode, date *time.Time) (int, error) {
	ids, err := s.findTargets(ctx, doctorID, mode, date)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *Service) findTargets(ctx context.Context, doctorID uuid.UUID, mode TargetMode, date *time.Time) ([]uuid.UUID, error) {
	today := timeofday.DateOf(s.now().In(s.loc))

	var from time.Time
	var to *time.Time
	switch mode {
	case TargetUpcoming, "":
		from = today
	case TargetToday:
		from, to = today, &today
	case TargetCustom:
		if date == nil {
			return nil, fmt.Errorf("%w: target_date is required for CUSTOM", ErrInvalidInput)
		}
		d := timeofday.DateOf(*date)
		from, to = d, &d
	default:
		return nil, fmt.Errorf("%w: unknown target mode %q", ErrInvalidInput, mode)
	}

	ids, err := s.targets.PatientsWithAppointments(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("find announcement targets: %w", err)
	}
	return ids, nil
}

// Announce runs a send or resend command for doctorID. Reaching nobody is
// not an error; the outcome then has no campaign.
func (s *Service) Announce(ctx context.Context, doctorID uuid.UUID, cmd Command) (Outcome, error) {
	if doctorID == uuid.Nil {
		return Outcome{}, fmt.Errorf("%w: doctor_id is required", ErrInvalidInput)
	}

	switch c := cmd.(type) {
	case SendAnnouncement:
		message := strings.TrimSpace(c.Message)
		if message == "" {
			return Outcome{}, fmt.Errorf("%w: message is required", ErrInvalidInput)
		}
		mode := c.TargetMode
		if mode == "" {
			mode = TargetUpcoming
		}
		recipients, err := s.findTargets(ctx, doctorID, mode, c.TargetDate)
		if err != nil {
			return Outcome{}, err
		}
		var date *time.Time
		if mode == TargetCustom {
			d := timeofday.DateOf(*c.TargetDate)
			date = &d
		}
		out := Outcome{TargetMode: mode, TargetDate: date}
		return s.broadcast(ctx, doctorID, message, recipients, out)

	case ResendAnnouncement:
		anchor, recipients, err := s.repo.GetCampaign(ctx, c.CampaignID)
		if err != nil {
			return Outcome{}, err
		}
		if anchor.DoctorID != doctorID {
			return Outcome{}, ErrCampaignNotFound
		}
		message := strings.TrimSpace(c.Message)
		if message == "" {
			message = anchor.Message
		}
		out := Outcome{TargetMode: TargetUpcoming, ResentFrom: &anchor.ID}
		return s.broadcast(ctx, doctorID, message, recipients, out)
	}

	return Outcome{}, fmt.Errorf("%w: unsupported announcement command %T", ErrInvalidInput, cmd)
}

func (s *Service) broadcast(ctx context.Context, doctorID uuid.UUID, message string, recipients []uuid.UUID, out Outcome) (Outcome, error) {
	recipients = dedupe(recipients)
	if len(recipients) == 0 {
		return out, nil
	}

	now := s.now().UTC()
	campaign := Campaign{
		ID:         uuid.New(),
		DoctorID:   doctorID,
		Message:    message,
		TargetMode: out.TargetMode,
		TargetDate: out.TargetDate,
		CreatedAt:  now,
	}
	content := announcementPrefix + message
	mirrored := make([]Message, len(recipients))
	for i, p := range recipients {
		mirrored[i] = Message{
			ID:        uuid.New(),
			PatientID: p,
			DoctorID:  doctorID,
			Sender:    SenderDoctor,
			Content:   content,
			CreatedAt: now,
		}
	}

	created, err := s.repo.CreateCampaign(ctx, campaign, recipients, mirrored)
	if err != nil {
		return Outcome{}, fmt.Errorf("create campaign: %w", err)
	}

	for _, m := range mirrored {
		s.publishChat(ctx, m)
		room := notify.RoomKey(m.PatientID, doctorID)
		err := s.emitter.Publish(ctx, room, notify.EventAnnouncementReceived, AnnouncementPayload{
			CampaignID: created.ID.String(),
			PatientID:  m.PatientID.String(),
			DoctorID:   doctorID.String(),
			Sender:     string(SenderDoctor),
			Message:    message,
			CreatedAt:  created.CreatedAt,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("room", room).Msg("publish announcement failed")
		}
	}

	s.log.Info().
		Str("campaign_id", created.ID.String()).
		Str("doctor_id", doctorID.String()).
		Int("recipients", len(recipients)).
		Msg("announcement sent")

	out.CampaignID = &created.ID
	out.Sent = len(recipients)
	return out, nil
}

// Campaigns lists a doctor's announcement history, newest first.
func (s *Service) Campaigns(ctx context.Context, doctorID uuid.UUID, limit int) ([]Campaign, error) {
	list, err := s.repo.ListCampaigns(ctx, doctorID, clampLimit(limit, defaultHistoryLimit, maxHistoryLimit))
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Campaign{}
	}
	return list, nil
}

// Received lists the announcements delivered to a patient, newest first.
func (s *Service) Received(ctx context.Context, patientID uuid.UUID, limit int) ([]Received, error) {
	list, err := s.repo.ListReceived(ctx, patientID, clampLimit(limit, defaultReceivedLimit, maxReceivedLimit))
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Received{}
	}
	return list, nil
}

func (s *Service) publishChat(ctx context.Context, m Message) {
	room := notify.RoomKey(m.PatientID, m.DoctorID)
	err := s.emitter.Publish(ctx, room, notify.EventReceiveMessage, notify.ChatPayload{
		PatientID: m.PatientID.String(),
		DoctorID:  m.DoctorID.String(),
		Sender:    string(m.Sender),
		Message:   m.Content,
		CreatedAt: m.CreatedAt,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("room", room).Msg("publish chat message failed")
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
