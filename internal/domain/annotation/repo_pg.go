package annotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/clinicops/internal/domain/sheet"
	"github.com/clinicops/clinicops/internal/platform/db"
)

type annotationRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &annotationRepoPG{pool: pool} }

const annotationCols = `id, clinic_id, sheet_kind, row_id, field,
	highlight_color, comment, resolved, created_by, created_at, updated_at`

func scanAnnotation(row pgx.Row) (*Annotation, error) {
	var a Annotation
	err := row.Scan(&a.ID, &a.ClinicID, &a.Kind, &a.RowID, &a.Field,
		&a.Highlight, &a.Comment, &a.Resolved, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

// pruneSQL removes a cell's row once it carries neither highlight nor comment.
const pruneSQL = `DELETE FROM cell_annotations
	WHERE clinic_id = $1 AND sheet_kind = $2 AND row_id = $3 AND field = $4
	AND highlight_color IS NULL AND comment IS NULL`

func (r *annotationRepoPG) List(ctx context.Context, clinicID string, kind sheet.SheetKind) ([]*Annotation, error) {
	var out []*Annotation
	err := db.InClinicTx(ctx, r.pool, clinicID, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+annotationCols+` FROM cell_annotations
			WHERE clinic_id = $1 AND sheet_kind = $2 ORDER BY row_id, field`, clinicID, kind)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanAnnotation(rows)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	return out, nil
}

func (r *annotationRepoPG) Get(ctx context.Context, ref Ref) (*Annotation, error) {
	var a *Annotation
	err := db.InClinicTx(ctx, r.pool, ref.ClinicID, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		a, err = scanAnnotation(tx.QueryRow(ctx, `SELECT `+annotationCols+` FROM cell_annotations
			WHERE clinic_id = $1 AND sheet_kind = $2 AND row_id = $3 AND field = $4`,
			ref.ClinicID, ref.Kind, ref.RowID, ref.Field))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get annotation: %w", err)
	}
	return a, nil
}

func (r *annotationRepoPG) SetHighlight(ctx context.Context, ref Ref, color *string, actor string) error {
	err := db.InClinicTx(ctx, r.pool, ref.ClinicID, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO cell_annotations (id, clinic_id, sheet_kind, row_id, field, highlight_color, created_by)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (clinic_id, sheet_kind, row_id, field) DO UPDATE SET
				highlight_color = EXCLUDED.highlight_color,
				updated_at = NOW()`,
			uuid.New(), ref.ClinicID, ref.Kind, ref.RowID, ref.Field, color, actor)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, pruneSQL, ref.ClinicID, ref.Kind, ref.RowID, ref.Field)
		return err
	})
	if err != nil {
		return fmt.Errorf("set highlight: %w", err)
	}
	return nil
}

func (r *annotationRepoPG) SetComment(ctx context.Context, ref Ref, comment *string, actor string) error {
	var resolved *bool
	if comment != nil {
		open := false
		resolved = &open
	}
	err := db.InClinicTx(ctx, r.pool, ref.ClinicID, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO cell_annotations (id, clinic_id, sheet_kind, row_id, field, comment, resolved, created_by)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (clinic_id, sheet_kind, row_id, field) DO UPDATE SET
				comment = EXCLUDED.comment,
				resolved = EXCLUDED.resolved,
				updated_at = NOW()`,
			uuid.New(), ref.ClinicID, ref.Kind, ref.RowID, ref.Field, comment, resolved, actor)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, pruneSQL, ref.ClinicID, ref.Kind, ref.RowID, ref.Field)
		return err
	})
	if err != nil {
		return fmt.Errorf("set comment: %w", err)
	}
	return nil
}

func (r *annotationRepoPG) SetResolved(ctx context.Context, ref Ref, resolved bool) error {
	var n int64
	err := db.InClinicTx(ctx, r.pool, ref.ClinicID, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE cell_annotations SET resolved = $5, updated_at = NOW()
			WHERE clinic_id = $1 AND sheet_kind = $2 AND row_id = $3 AND field = $4
			AND comment IS NOT NULL`,
			ref.ClinicID, ref.Kind, ref.RowID, ref.Field, resolved)
		n = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("resolve comment: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *annotationRepoPG) Delete(ctx context.Context, ref Ref) error {
	var n int64
	err := db.InClinicTx(ctx, r.pool, ref.ClinicID, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM cell_annotations
			WHERE clinic_id = $1 AND sheet_kind = $2 AND row_id = $3 AND field = $4`,
			ref.ClinicID, ref.Kind, ref.RowID, ref.Field)
		n = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *annotationRepoPG) Rekey(ctx context.Context, clinicID string, kind sheet.SheetKind, ids map[sheet.RowID]sheet.RowID) error {
	if len(ids) == 0 {
		return nil
	}
	err := db.InClinicTx(ctx, r.pool, clinicID, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for from, to := range ids {
			batch.Queue(`UPDATE cell_annotations SET row_id = $4, updated_at = NOW()
				WHERE clinic_id = $1 AND sheet_kind = $2 AND row_id = $3`,
				clinicID, kind, from, to)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("rekey annotations: %w", err)
	}
	return nil
}
