package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/clinicops/internal/domain/sheet"
	"github.com/clinicops/clinicops/internal/platform/db"
)

type catalogRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &catalogRepoPG{pool: pool} }

func (r *catalogRepoPG) Load(ctx context.Context, clinicID string) (Tables, error) {
	var t Tables
	err := db.InClinicTx(ctx, r.pool, clinicID, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT status_type, status, background_color, text_color
			FROM status_colors WHERE clinic_id = $1 ORDER BY status_type, status`, clinicID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var c sheet.StatusColor
			if err := rows.Scan(&c.Type, &c.Status, &c.Background, &c.Text); err != nil {
				rows.Close()
				return err
			}
			t.StatusColors = append(t.StatusColors, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, `SELECT code, description, color
			FROM billing_codes WHERE clinic_id = $1 ORDER BY code`, clinicID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c BillingCode
			if err := rows.Scan(&c.Code, &c.Description, &c.Color); err != nil {
				return err
			}
			t.BillingCodes = append(t.BillingCodes, c)
		}
		return rows.Err()
	})
	if err != nil {
		return Tables{}, fmt.Errorf("load catalog: %w", err)
	}
	return t, nil
}

func (r *catalogRepoPG) UpsertStatusColor(ctx context.Context, clinicID string, c sheet.StatusColor) error {
	return db.InClinicTx(ctx, r.pool, clinicID, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO status_colors (clinic_id, status_type, status, background_color, text_color)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (clinic_id, status_type, status) DO UPDATE SET
				background_color = EXCLUDED.background_color,
				text_color = EXCLUDED.text_color`,
			clinicID, c.Type, c.Status, c.Background, c.Text)
		return err
	})
}

func (r *catalogRepoPG) DeleteStatusColor(ctx context.Context, clinicID string, typ sheet.StatusType, status string) error {
	return db.InClinicTx(ctx, r.pool, clinicID, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM status_colors
			WHERE clinic_id = $1 AND status_type = $2 AND status = $3`, clinicID, typ, status)
		return err
	})
}

func (r *catalogRepoPG) UpsertBillingCode(ctx context.Context, clinicID string, c BillingCode) error {
	return db.InClinicTx(ctx, r.pool, clinicID, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO billing_codes (clinic_id, code, description, color)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (clinic_id, code) DO UPDATE SET
				description = EXCLUDED.description,
				color = EXCLUDED.color`,
			clinicID, c.Code, c.Description, c.Color)
		return err
	})
}

func (r *catalogRepoPG) DeleteBillingCode(ctx context.Context, clinicID, code string) error {
	return db.InClinicTx(ctx, r.pool, clinicID, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM billing_codes WHERE clinic_id = $1 AND code = $2`, clinicID, code)
		return err
	})
}

func (r *catalogRepoPG) Seed(ctx context.Context, clinicID string, t Tables) (int, error) {
	var written int
	err := db.InClinicTx(ctx, r.pool, clinicID, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range t.StatusColors {
			batch.Queue(`INSERT INTO status_colors (clinic_id, status_type, status, background_color, text_color)
				VALUES ($1,$2,$3,$4,$5) ON CONFLICT DO NOTHING`,
				clinicID, c.Type, c.Status, c.Background, c.Text)
		}
		for _, c := range t.BillingCodes {
			batch.Queue(`INSERT INTO billing_codes (clinic_id, code, description, color)
				VALUES ($1,$2,$3,$4) ON CONFLICT DO NOTHING`,
				clinicID, c.Code, c.Description, c.Color)
		}
		if batch.Len() == 0 {
			return nil
		}
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return err
			}
			written += int(tag.RowsAffected())
		}
		return br.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("seed catalog: %w", err)
	}
	return written, nil
}
