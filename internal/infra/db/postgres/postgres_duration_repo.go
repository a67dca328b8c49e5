package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"expbox-billing/internal/domain"
	"expbox-billing/internal/domain/model"
	"expbox-billing/internal/domain/ports/repository"
)

var _ repository.DurationCatalogRepository = (*durationRepo)(nil)

type durationRepo struct{ pool *pgxpool.Pool }

func NewDurationRepo(pool *pgxpool.Pool) *durationRepo {
	return &durationRepo{pool: pool}
}

func (r *durationRepo) Save(ctx context.Context, tx repository.Tx, d *model.BoxDuration) error {
	const q = `
INSERT INTO box_durations (id, name, months, price_minor, currency, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET name=$2, months=$3, price_minor=$4, currency=$5;`

	_, err := execSQL(ctx, r.pool, tx, q, d.ID, d.Name, d.Months, d.PriceMinor, d.Currency, d.CreatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *durationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BoxDuration, error) {
	const q = `SELECT id, name, months, price_minor, currency, created_at FROM box_durations WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	d := &model.BoxDuration{}
	if err := row.Scan(&d.ID, &d.Name, &d.Months, &d.PriceMinor, &d.Currency, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return d, nil
}

func (r *durationRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.BoxDuration, error) {
	const q = `SELECT id, name, months, price_minor, currency, created_at FROM box_durations ORDER BY months ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.BoxDuration
	for rows.Next() {
		d := &model.BoxDuration{}
		if err := rows.Scan(&d.ID, &d.Name, &d.Months, &d.PriceMinor, &d.Currency, &d.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, d)
	}
	return out, nil
}
