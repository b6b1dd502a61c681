package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const messageColumns = `id, patient_id, doctor_id, sender, content, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	var sender string
	if err := row.Scan(&m.ID, &m.PatientID, &m.DoctorID, &sender, &m.Content, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Sender = Sender(sender)
	return &m, nil
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	defer rows.Close()
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *PgRepository) InsertMessage(ctx context.Context, m Message) (*Message, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (id, patient_id, doctor_id, sender, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+messageColumns,
		m.ID, m.PatientID, m.DoctorID, string(m.Sender), m.Content, m.CreatedAt,
	)
	return scanMessage(row)
}

func (r *PgRepository) ListMessages(ctx context.Context, patientID, doctorID uuid.UUID) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE patient_id = $1 AND doctor_id = $2
		ORDER BY created_at ASC, id
	`, patientID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	return collectMessages(rows)
}

func (r *PgRepository) Incoming(ctx context.Context, q InboxQuery) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE ($1::uuid IS NULL OR patient_id = $1)
		  AND ($2::uuid IS NULL OR doctor_id = $2)
		  AND sender = $3
		  AND created_at > $4
		ORDER BY created_at DESC
		LIMIT $5
	`, q.PatientID, q.DoctorID, string(q.From), q.Since, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query incoming messages: %w", err)
	}
	return collectMessages(rows)
}

func (r *PgRepository) CreateCampaign(ctx context.Context, c Campaign, recipients []uuid.UUID, mirrored []Message) (*Campaign, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO announcement_campaigns (id, doctor_id, message, target_mode, target_date, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.ID, c.DoctorID, c.Message, string(c.TargetMode), c.TargetDate, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert campaign: %w", err)
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"announcement_recipients"},
			[]string{"campaign_id", "patient_id", "created_at"},
			pgx.CopyFromSlice(len(recipients), func(i int) ([]any, error) {
				return []any{c.ID, recipients[i], c.CreatedAt}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("insert recipients: %w", err)
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"chat_messages"},
			[]string{"id", "patient_id", "doctor_id", "sender", "content", "created_at"},
			pgx.CopyFromSlice(len(mirrored), func(i int) ([]any, error) {
				m := mirrored[i]
				return []any{m.ID, m.PatientID, m.DoctorID, string(m.Sender), m.Content, m.CreatedAt}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("mirror announcement to chat: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.RecipientCount = len(recipients)
	return &c, nil
}

func (r *PgRepository) GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, []uuid.UUID, error) {
	var c Campaign
	var mode string
	var targetDate *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, message, target_mode, target_date, created_at
		FROM announcement_campaigns
		WHERE id = $1
	`, id).Scan(&c.ID, &c.DoctorID, &c.Message, &mode, &targetDate, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrCampaignNotFound
		}
		return nil, nil, err
	}
	c.TargetMode = TargetMode(mode)
	c.TargetDate = targetDate

	rows, err := r.pool.Query(ctx, `
		SELECT patient_id FROM announcement_recipients WHERE campaign_id = $1 ORDER BY patient_id
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var recipients []uuid.UUID
	for rows.Next() {
		var p uuid.UUID
		if err := rows.Scan(&p); err != nil {
			return nil, nil, err
		}
		recipients = append(recipients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	c.RecipientCount = len(recipients)
	return &c, recipients, nil
}

func (r *PgRepository) ListCampaigns(ctx context.Context, doctorID uuid.UUID, limit int) ([]Campaign, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.doctor_id, c.message, c.target_mode, c.target_date, c.created_at,
		       COUNT(rc.patient_id)
		FROM announcement_campaigns c
		LEFT JOIN announcement_recipients rc ON rc.campaign_id = c.id
		WHERE c.doctor_id = $1
		GROUP BY c.id
		ORDER BY c.created_at DESC
		LIMIT $2
	`, doctorID, limit)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var c Campaign
		var mode string
		if err := rows.Scan(&c.ID, &c.DoctorID, &c.Message, &mode, &c.TargetDate, &c.CreatedAt, &c.RecipientCount); err != nil {
			return nil, err
		}
		c.TargetMode = TargetMode(mode)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PgRepository) ListReceived(ctx context.Context, patientID uuid.UUID, limit int) ([]Received, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.doctor_id, c.message, c.created_at, rc.created_at
		FROM announcement_recipients rc
		JOIN announcement_campaigns c ON c.id = rc.campaign_id
		WHERE rc.patient_id = $1
		ORDER BY rc.created_at DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query received announcements: %w", err)
	}
	defer rows.Close()

	var out []Received
	for rows.Next() {
		var rc Received
		if err := rows.Scan(&rc.CampaignID, &rc.DoctorID, &rc.Message, &rc.CreatedAt, &rc.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}
