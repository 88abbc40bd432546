package lock

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/clinicops/internal/domain/sheet"
	"github.com/clinicops/clinicops/internal/platform/db"
)

type lockRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &lockRepoPG{pool: pool} }

func (r *lockRepoPG) Get(ctx context.Context, scope Scope) (*Record, error) {
	var (
		rec = Record{Scope: scope}
		raw []byte
	)
	err := db.InClinicTx(ctx, r.pool, scope.ClinicID, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT id, flags, updated_by, updated_at FROM column_locks
			WHERE clinic_id = $1 AND sheet_kind = $2 AND owner_id = $3`,
			scope.ClinicID, scope.Kind, scope.OwnerID,
		).Scan(&rec.ID, &raw, &rec.UpdatedBy, &rec.UpdatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get locks: %w", err)
	}
	if err := json.Unmarshal(raw, &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode locks: %w", err)
	}
	return &rec, nil
}

func (r *lockRepoPG) SetField(ctx context.Context, scope Scope, field sheet.Field, l FieldLock, actor string) error {
	val, err := json.Marshal(l)
	if err != nil {
		return err
	}
	err = db.InClinicTx(ctx, r.pool, scope.ClinicID, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO column_locks (id, clinic_id, sheet_kind, owner_id, flags, updated_by)
			VALUES ($1, $2, $3, $4, jsonb_build_object($5::text, $6::jsonb), $7)
			ON CONFLICT (clinic_id, sheet_kind, owner_id) DO UPDATE SET
				flags = jsonb_set(column_locks.flags, ARRAY[$5::text], $6::jsonb, true),
				updated_by = EXCLUDED.updated_by,
				updated_at = NOW()`,
			uuid.New(), scope.ClinicID, scope.Kind, scope.OwnerID, string(field), string(val), actor)
		return err
	})
	if err != nil {
		return fmt.Errorf("set lock %s: %w", field, err)
	}
	return nil
}

func (r *lockRepoPG) Replace(ctx context.Context, scope Scope, fields map[sheet.Field]FieldLock, actor string) error {
	val, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	err = db.InClinicTx(ctx, r.pool, scope.ClinicID, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO column_locks (id, clinic_id, sheet_kind, owner_id, flags, updated_by)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6)
			ON CONFLICT (clinic_id, sheet_kind, owner_id) DO UPDATE SET
				flags = EXCLUDED.flags,
				updated_by = EXCLUDED.updated_by,
				updated_at = NOW()`,
			uuid.New(), scope.ClinicID, scope.Kind, scope.OwnerID, string(val), actor)
		return err
	})
	if err != nil {
		return fmt.Errorf("replace locks: %w", err)
	}
	return nil
}
