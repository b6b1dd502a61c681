package messaging

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memoryCampaign struct {
	Campaign
	recipients []uuid.UUID
}

type MemoryRepository struct {
	mu        sync.Mutex
	messages  []Message
	campaigns map[uuid.UUID]memoryCampaign
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{campaigns: make(map[uuid.UUID]memoryCampaign)}
}

func (r *MemoryRepository) InsertMessage(_ context.Context, m Message) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	return &m, nil
}

func (r *MemoryRepository) ListMessages(_ context.Context, patientID, doctorID uuid.UUID) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Message
	for _, m := range r.messages {
		if m.PatientID == patientID && m.DoctorID == doctorID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) Incoming(_ context.Context, q InboxQuery) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Message
	for _, m := range r.messages {
		if q.Match(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) CreateCampaign(_ context.Context, c Campaign, recipients []uuid.UUID, mirrored []Message) (*Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.RecipientCount = len(recipients)
	r.campaigns[c.ID] = memoryCampaign{Campaign: c, recipients: append([]uuid.UUID(nil), recipients...)}
	r.messages = append(r.messages, mirrored...)
	return &c, nil
}

func (r *MemoryRepository) GetCampaign(_ context.Context, id uuid.UUID) (*Campaign, []uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mc, ok := r.campaigns[id]
	if !ok {
		return nil, nil, ErrCampaignNotFound
	}
	c := mc.Campaign
	return &c, append([]uuid.UUID(nil), mc.recipients...), nil
}

func (r *MemoryRepository) ListCampaigns(_ context.Context, doctorID uuid.UUID, limit int) ([]Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Campaign
	for _, mc := range r.campaigns {
		if mc.DoctorID == doctorID {
			out = append(out, mc.Campaign)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListReceived(_ context.Context, patientID uuid.UUID, limit int) ([]Received, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Received
	for _, mc := range r.campaigns {
		for _, p := range mc.recipients {
			if p != patientID {
				continue
			}
			out = append(out, Received{
				CampaignID: mc.ID,
				DoctorID:   mc.DoctorID,
				Message:    mc.Message,
				CreatedAt:  mc.CreatedAt,
				ReceivedAt: mc.CreatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
