package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/timeofday"
)

type PgRepository struct {
	q    db.Querier
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{q: pool, pool: pool}
}

// NewTxRepository binds a repository to a caller-owned transaction. InTx on
// the result runs fn directly inside that transaction.
func NewTxRepository(q db.Querier) *PgRepository {
	return &PgRepository{q: q}
}

const scheduleColumns = `
	id, doctor_id, clinic_id, admin_id, day_of_week, start_time, end_time,
	slot_duration, effective_from, effective_to, created_at, updated_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var start, end time.Time

	err := row.Scan(
		&e.ID,
		&e.DoctorID,
		&e.ClinicID,
		&e.AdminID,
		&e.DayOfWeek,
		&start,
		&end,
		&e.SlotDuration,
		&e.EffectiveFrom,
		&e.EffectiveTo,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	e.StartMinute = timeofday.FromTime(start)
	e.EndMinute = timeofday.FromTime(end)
	return &e, nil
}

func (r *PgRepository) List(ctx context.Context, f Filter) ([]Entry, error) {
	var day *int16
	if f.DayOfWeek != nil {
		d := int16(*f.DayOfWeek)
		day = &d
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM doctor_clinic_schedules
		WHERE ($1::uuid IS NULL OR doctor_id = $1)
		  AND ($2::uuid IS NULL OR clinic_id = $2)
		  AND ($3::smallint IS NULL OR day_of_week = $3)
		  AND ($4::uuid IS NULL OR id <> $4)
		ORDER BY day_of_week, start_time
	`, f.DoctorID, f.ClinicID, day, f.ExcludeID)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM doctor_clinic_schedules
		WHERE id = $1
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) Create(ctx context.Context, e Entry) (*Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO doctor_clinic_schedules (
			id, doctor_id, clinic_id, admin_id, day_of_week, start_time, end_time,
			slot_duration, effective_from, effective_to
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+scheduleColumns,
		e.ID,
		e.DoctorID,
		e.ClinicID,
		e.AdminID,
		int16(e.DayOfWeek),
		timeofday.Anchor(e.StartMinute),
		timeofday.Anchor(e.EndMinute),
		e.SlotDuration,
		e.EffectiveFrom,
		e.EffectiveTo,
	)
	return scanEntry(row)
}

func (r *PgRepository) Update(ctx context.Context, e Entry) (*Entry, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE doctor_clinic_schedules
		SET clinic_id = $2,
		    day_of_week = $3,
		    start_time = $4,
		    end_time = $5,
		    slot_duration = $6,
		    effective_from = $7,
		    effective_to = $8,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+scheduleColumns,
		e.ID,
		e.ClinicID,
		int16(e.DayOfWeek),
		timeofday.Anchor(e.StartMinute),
		timeofday.Anchor(e.EndMinute),
		e.SlotDuration,
		e.EffectiveFrom,
		e.EffectiveTo,
	)
	return scanEntry(row)
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM doctor_clinic_schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepository) DeleteByClinic(ctx context.Context, clinicID uuid.UUID) (int, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM doctor_clinic_schedules WHERE clinic_id = $1`, clinicID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgRepository) InTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(NewTxRepository(tx))
	})
}
