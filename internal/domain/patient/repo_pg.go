package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/clinicops/internal/platform/db"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &patientRepoPG{pool: pool} }

const patientCols = `id, clinic_id, patient_code, first_name, last_name,
	insurance, copay, coinsurance, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.ClinicID, &p.Code, &p.FirstName, &p.LastName,
		&p.Insurance, &p.Copay, &p.Coinsurance, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func collect(rows pgx.Rows) ([]*Patient, error) {
	defer rows.Close()
	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *patientRepoPG) ListByClinic(ctx context.Context, clinicID string, limit, offset int) ([]*Patient, int, error) {
	var (
		out   []*Patient
		total int
	)
	err := db.InClinicTx(ctx, r.pool, clinicID, func(ctx context.Context, tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE clinic_id = $1`, clinicID).Scan(&total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT `+patientCols+` FROM patients
			WHERE clinic_id = $1 ORDER BY patient_code LIMIT $2 OFFSET $3`, clinicID, limit, offset)
		if err != nil {
			return err
		}
		out, err = collect(rows)
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	return out, total, nil
}

func (r *patientRepoPG) All(ctx context.Context, clinicID string) ([]*Patient, error) {
	var out []*Patient
	err := db.InClinicTx(ctx, r.pool, clinicID, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+patientCols+` FROM patients
			WHERE clinic_id = $1 ORDER BY patient_code`, clinicID)
		if err != nil {
			return err
		}
		out, err = collect(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	return out, nil
}

func (r *patientRepoPG) GetByCode(ctx context.Context, clinicID, code string) (*Patient, error) {
	var p *Patient
	err := db.InClinicTx(ctx, r.pool, clinicID, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		p, err = scanPatient(tx.QueryRow(ctx, `SELECT `+patientCols+` FROM patients
			WHERE clinic_id = $1 AND lower(patient_code) = lower($2)`, clinicID, code))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", code, err)
	}
	return p, nil
}

func (r *patientRepoPG) Upsert(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	err := db.InClinicTx(ctx, r.pool, p.ClinicID, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO patients (id, clinic_id, patient_code, first_name, last_name,
				insurance, copay, coinsurance, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
			ON CONFLICT (clinic_id, lower(patient_code)) DO UPDATE SET
				patient_code = EXCLUDED.patient_code,
				first_name = EXCLUDED.first_name,
				last_name = EXCLUDED.last_name,
				insurance = EXCLUDED.insurance,
				copay = EXCLUDED.copay,
				coinsurance = EXCLUDED.coinsurance,
				updated_at = EXCLUDED.updated_at
			RETURNING id, created_at, updated_at`,
			p.ID, p.ClinicID, p.Code, p.FirstName, p.LastName,
			p.Insurance, p.Copay, p.Coinsurance, now,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	})
	if err != nil {
		return fmt.Errorf("upsert patient %s: %w", p.Code, err)
	}
	return nil
}
