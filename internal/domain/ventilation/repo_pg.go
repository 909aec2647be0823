package ventilation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ventcalc/ventcalc/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type calculationRepoPG struct{ pool *pgxpool.Pool }

func NewCalculationRepoPG(pool *pgxpool.Pool) CalculationRepository {
	return &calculationRepoPG{pool: pool}
}

func (r *calculationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const calcCols = `id, kind, inputs, outputs, requested_by, created_at`

func (r *calculationRepoPG) scan(row pgx.Row) (*CalculationRecord, error) {
	var rec CalculationRecord
	var inputs, outputs []byte
	if err := row.Scan(&rec.ID, &rec.Kind, &inputs, &outputs, &rec.RequestedBy, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Inputs = inputs
	rec.Outputs = outputs
	return &rec, nil
}

func (r *calculationRepoPG) Create(ctx context.Context, rec *CalculationRecord) error {
	rec.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO ventilation_calculation (id, kind, inputs, outputs, requested_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		rec.ID, rec.Kind, []byte(rec.Inputs), []byte(rec.Outputs), rec.RequestedBy,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert calculation: %w", err)
	}
	return nil
}

func (r *calculationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CalculationRecord, error) {
	rec, err := r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+calcCols+` FROM ventilation_calculation WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCalculationNotFound
	}
	return rec, err
}

// List reads the count and the page in one transaction so total matches the
// rows returned.
func (r *calculationRepoPG) List(ctx context.Context, kind CalculationKind, limit, offset int) ([]*CalculationRecord, int, error) {
	var items []*CalculationRecord
	var total int
	err := r.inTx(ctx, func(ctx context.Context) error {
		q := r.conn(ctx)
		if err := q.QueryRow(ctx,
			`SELECT COUNT(*) FROM ventilation_calculation WHERE ($1 = '' OR kind = $1)`, string(kind),
		).Scan(&total); err != nil {
			return fmt.Errorf("count calculations: %w", err)
		}
		rows, err := q.Query(ctx, `SELECT `+calcCols+` FROM ventilation_calculation
			WHERE ($1 = '' OR kind = $1)
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`, string(kind), limit, offset)
		if err != nil {
			return fmt.Errorf("list calculations: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := r.scan(rows)
			if err != nil {
				return err
			}
			items = append(items, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *calculationRepoPG) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, r.pool, fn)
}
