package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/schedule"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const clinicColumns = `
	id, admin_id, doctor_id, clinic_name, phone, location, status, created_at, updated_at`

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	var status string

	err := row.Scan(
		&c.ID,
		&c.AdminID,
		&c.DoctorID,
		&c.Name,
		&c.Phone,
		&c.Location,
		&status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	c.Status = Status(status)
	return &c, nil
}

func (r *PgRepository) Create(ctx context.Context, c Clinic, entries []schedule.Entry) (*Clinic, error) {
	var created *Clinic

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO clinics (id, admin_id, doctor_id, clinic_name, phone, location, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+clinicColumns,
			c.ID, c.AdminID, c.DoctorID, c.Name, c.Phone, c.Location, string(c.Status),
		)
		var err error
		created, err = scanClinic(row)
		if err != nil {
			return fmt.Errorf("insert clinic: %w", err)
		}

		schedules := schedule.NewTxRepository(tx)
		for _, e := range entries {
			if _, err := schedules.Create(ctx, e); err != nil {
				return fmt.Errorf("insert initial schedule: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clinicColumns+` FROM clinics WHERE id = $1`, id)
	return scanClinic(row)
}

func (r *PgRepository) List(ctx context.Context, f Filter) ([]Clinic, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+clinicColumns+`
		FROM clinics
		WHERE ($1::uuid IS NULL OR admin_id = $1)
		  AND ($2::uuid IS NULL OR doctor_id = $2)
		ORDER BY created_at DESC
	`, f.AdminID, f.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("query clinics: %w", err)
	}
	defer rows.Close()

	var out []Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *PgRepository) Update(ctx context.Context, c Clinic) (*Clinic, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE clinics
		SET clinic_name = $2,
		    phone = $3,
		    location = $4,
		    status = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+clinicColumns,
		c.ID, c.Name, c.Phone, c.Location, string(c.Status),
	)
	return scanClinic(row)
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := schedule.NewTxRepository(tx).DeleteByClinic(ctx, id); err != nil {
			return fmt.Errorf("delete clinic schedules: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM clinics WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}
