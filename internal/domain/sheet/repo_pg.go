package sheet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/clinicops/internal/platform/db"
)

type rowRepoPG struct{ pool *pgxpool.Pool }

func NewRowRepoPG(pool *pgxpool.Pool) RowRepository { return &rowRepoPG{pool: pool} }

// Field names double as column names.
var (
	rowCols = func() string {
		names := make([]string, len(allStoredFields))
		for i, f := range allStoredFields {
			names[i] = string(f)
		}
		return strings.Join(names, ", ")
	}()

	upsertRowSQL = func() string {
		const fixed = 6 // id, clinic_id, owner_id, year, month, position
		n := len(allStoredFields)
		params := make([]string, 0, fixed+n+2)
		for i := 1; i <= fixed+n+2; i++ {
			params = append(params, fmt.Sprintf("$%d", i))
		}
		sets := make([]string, 0, n+2)
		sets = append(sets, "position = EXCLUDED.position")
		for _, f := range allStoredFields {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", f, f))
		}
		sets = append(sets, "updated_at = EXCLUDED.updated_at")
		return fmt.Sprintf(`INSERT INTO sheet_rows (id, clinic_id, owner_id, year, month, position, %s, created_at, updated_at)
		VALUES (%s)
		ON CONFLICT (id) DO UPDATE SET %s`, rowCols, strings.Join(params, ", "), strings.Join(sets, ", "))
	}()
)

func (r *rowRepoPG) ListRows(ctx context.Context, key SheetKey) ([]StoredRow, error) {
	var out []StoredRow
	err := db.InClinicTx(ctx, r.pool, key.ClinicID, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id::text, position, `+rowCols+`, created_at, updated_at
			FROM sheet_rows
			WHERE clinic_id = $1 AND owner_id = $2 AND year = $3 AND month = $4
			ORDER BY position, created_at`,
			key.ClinicID, key.OwnerID, key.Year, key.Month)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			s, err := scanStoredRow(rows)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list rows %s: %w", key, err)
	}
	return out, nil
}

func scanStoredRow(row pgx.Row) (StoredRow, error) {
	var (
		s      StoredRow
		id     string
		values = make([]*string, len(allStoredFields))
	)
	dest := make([]interface{}, 0, len(values)+4)
	dest = append(dest, &id, &s.Position)
	for i := range values {
		dest = append(dest, &values[i])
	}
	dest = append(dest, &s.Row.CreatedAt, &s.Row.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return StoredRow{}, err
	}
	s.Row.ID = RowID(id)
	for i, f := range allStoredFields {
		s.Row.Set(f, values[i])
	}
	return s, nil
}

func (r *rowRepoPG) ReplaceRows(ctx context.Context, key SheetKey, rows []StoredRow) (map[RowID]RowID, error) {
	assigned := make(map[RowID]RowID)
	err := db.InClinicTx(ctx, r.pool, key.ClinicID, func(ctx context.Context, tx pgx.Tx) error {
		now := time.Now().UTC()
		keep := make([]string, 0, len(rows))
		batch := &pgx.Batch{}

		for _, s := range rows {
			id := string(s.Row.ID)
			if _, err := uuid.Parse(id); err != nil {
				server := uuid.New().String()
				assigned[s.Row.ID] = RowID(server)
				id = server
			}
			keep = append(keep, id)

			created, updated := s.Row.CreatedAt, s.Row.UpdatedAt
			if created.IsZero() {
				created = now
			}
			if updated.IsZero() {
				updated = now
			}
			args := make([]interface{}, 0, 8+len(allStoredFields))
			args = append(args, id, key.ClinicID, key.OwnerID, key.Year, key.Month, s.Position)
			for _, f := range allStoredFields {
				args = append(args, s.Row.Get(f))
			}
			args = append(args, created, updated)
			batch.Queue(upsertRowSQL, args...)
		}

		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("upsert rows: %w", err)
			}
		}
		_, err := tx.Exec(ctx, `DELETE FROM sheet_rows
			WHERE clinic_id = $1 AND owner_id = $2 AND year = $3 AND month = $4
			AND NOT (id::text = ANY($5::text[]))`,
			key.ClinicID, key.OwnerID, key.Year, key.Month, keep)
		if err != nil {
			return fmt.Errorf("delete removed rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace rows %s: %w", key, err)
	}
	return assigned, nil
}
