package appointment

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

const liveAppointmentKey = "appointments_live_slot_key"

type PgRepository struct {
	q    db.Querier
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{q: pool, pool: pool}
}

// NewTxRepository binds a repository to a caller-owned transaction.
func NewTxRepository(q db.Querier) *PgRepository {
	return &PgRepository{q: q}
}

// Helpers

const patientColumns = `id, admin_id, full_name, phone, chat_id, patient_type, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.AdminID,
		&p.FullName,
		&p.Phone,
		&p.ChatID,
		&p.PatientType,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

const slotColumns = `id, doctor_id, clinic_id, schedule_id, slot_date, start_time, end_time, status, created_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var start, end time.Time

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.ClinicID,
		&s.ScheduleID,
		&s.Date,
		&start,
		&end,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.StartMinute = timeofday.FromTime(start)
	s.EndMinute = timeofday.FromTime(end)
	return &s, nil
}

// appointmentSelect reads appointments in canonical form. Legacy rows keep
// their date and times only on the referenced slot.
const appointmentSelect = `
	SELECT a.id, a.patient_id, a.doctor_id, a.clinic_id, a.admin_id, a.slot_id, a.status,
	       COALESCE(a.appointment_date, s.slot_date),
	       COALESCE(a.start_time, s.start_time),
	       COALESCE(a.end_time, s.end_time),
	       a.notes, a.created_at, a.updated_at
	FROM appointments a
	LEFT JOIN slots s ON s.id = a.slot_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date, start, end *time.Time

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ClinicID,
		&a.AdminID,
		&a.SlotID,
		&a.Status,
		&date,
		&start,
		&end,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if date != nil {
		a.Date = *date
	}
	if start != nil {
		a.StartMinute = timeofday.FromTime(*start)
	}
	if end != nil {
		a.EndMinute = timeofday.FromTime(*end)
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := make([]Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) UpsertPatient(ctx context.Context, p Patient) (*Patient, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	conflict := `(admin_id, phone) WHERE phone IS NOT NULL`
	if p.Phone == nil {
		conflict = `(admin_id, chat_id) WHERE chat_id IS NOT NULL`
	}

	// A placeholder name is replaced once a real one is supplied.
	row := r.q.QueryRow(ctx, `
		INSERT INTO patients (id, admin_id, full_name, phone, chat_id, patient_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT `+conflict+` DO UPDATE
		SET full_name = CASE
		        WHEN patients.full_name = $7 THEN EXCLUDED.full_name
		        ELSE patients.full_name
		    END,
		    chat_id = COALESCE(patients.chat_id, EXCLUDED.chat_id),
		    updated_at = now()
		RETURNING `+patientColumns,
		p.ID, p.AdminID, p.FullName, p.Phone, p.ChatID, p.PatientType, DefaultPatientName,
	)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) EnsureSlot(ctx context.Context, s Slot) (*Slot, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SlotAvailable
	}

	// The no-op update makes RETURNING yield the existing row on conflict.
	row := r.q.QueryRow(ctx, `
		INSERT INTO slots (id, doctor_id, clinic_id, schedule_id, slot_date, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT slots_doctor_clinic_date_start_key DO UPDATE
		SET updated_at = slots.updated_at
		RETURNING `+slotColumns,
		s.ID,
		s.DoctorID,
		s.ClinicID,
		s.ScheduleID,
		s.Date,
		timeofday.Anchor(s.StartMinute),
		timeofday.Anchor(s.EndMinute),
		s.Status,
	)
	return scanSlot(row)
}

func (r *PgRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+slotColumns,
		id, to, from,
	)
	return scanSlot(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, clinic_id, admin_id, slot_id, status,
			appointment_date, start_time, end_time, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		a.ID,
		a.PatientID,
		a.DoctorID,
		a.ClinicID,
		a.AdminID,
		a.SlotID,
		a.Status,
		a.Date,
		timeofday.Anchor(a.StartMinute),
		timeofday.Anchor(a.EndMinute),
		a.Notes,
	)
	if err != nil {
		if c, ok := db.UniqueViolation(err); ok && c == liveAppointmentKey {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, err
	}

	return r.GetAppointmentByID(ctx, a.ID)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, appointmentSelect+`
		WHERE a.id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}

	rows, err := r.q.Query(ctx, appointmentSelect+`
		WHERE ($1::uuid IS NULL OR a.admin_id = $1)
		  AND ($2::uuid IS NULL OR a.doctor_id = $2)
		  AND ($3::uuid IS NULL OR a.patient_id = $3)
		  AND ($4::uuid IS NULL OR a.clinic_id = $4)
		  AND ($5::date IS NULL OR COALESCE(a.appointment_date, s.slot_date) = $5)
		  AND ($6::text IS NULL OR a.status = $6)
		ORDER BY a.created_at DESC
		LIMIT $7 OFFSET $8
	`, f.AdminID, f.DoctorID, f.PatientID, f.ClinicID, f.Date, status, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	var updatedID uuid.UUID
	err := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id
	`, id, to, from).Scan(&updatedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return r.GetAppointmentByID(ctx, updatedID)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) FindStalePending(ctx context.Context, before time.Time) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, appointmentSelect+`
		WHERE a.status = 'PENDING'
		  AND COALESCE(a.appointment_date, s.slot_date) < $1
	`, before)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) BookedTimes(ctx context.Context, clinicID uuid.UUID, doctorID *uuid.UUID, date time.Time) ([]int, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT booked.start_time
		FROM (
			SELECT COALESCE(a.start_time, s.start_time) AS start_time
			FROM appointments a
			LEFT JOIN slots s ON s.id = a.slot_id
			WHERE a.clinic_id = $1
			  AND ($2::uuid IS NULL OR a.doctor_id = $2)
			  AND COALESCE(a.appointment_date, s.slot_date) = $3
			  AND a.status NOT IN ('CANCELLED', 'REJECTED')
			UNION ALL
			SELECT start_time
			FROM slots
			WHERE clinic_id = $1
			  AND ($2::uuid IS NULL OR doctor_id = $2)
			  AND slot_date = $3
			  AND status = 'BOOKED'
		) booked
		WHERE booked.start_time IS NOT NULL
	`, clinicID, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("query booked times: %w", err)
	}
	defer rows.Close()

	var minutes []int
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		minutes = append(minutes, timeofday.FromTime(t))
	}
	return minutes, rows.Err()
}

func (r *PgRepository) PatientsWithAppointments(ctx context.Context, doctorID uuid.UUID, from time.Time, to *time.Time) ([]uuid.UUID, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT a.patient_id
		FROM appointments a
		LEFT JOIN slots s ON s.id = a.slot_id
		WHERE a.doctor_id = $1
		  AND a.status NOT IN ('CANCELLED', 'REJECTED')
		  AND COALESCE(a.appointment_date, s.slot_date) >= $2
		  AND ($3::date IS NULL OR COALESCE(a.appointment_date, s.slot_date) <= $3)
	`, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query announcement targets: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func (r *PgRepository) InTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(NewTxRepository(tx))
	})
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
