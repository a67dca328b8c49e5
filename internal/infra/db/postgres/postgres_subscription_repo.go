package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"expbox-billing/internal/domain"
	"expbox-billing/internal/domain/model"
	"expbox-billing/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

// subscriptionRepo persists subscriptions. A partial unique index on
// (client_id) WHERE status IN ('active','grace') backs the one-current-
// subscription-per-client invariant; the version column backs optimistic
// concurrency on every update.
type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subCols = `id, client_id, duration_id, premium_level_id, status, start_date, next_payment_date, grace_since, delivery_address, delivery_phone, delivery_day, delivery_window, created_at, updated_at, version`

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (id, client_id, duration_id, premium_level_id, status, start_date, next_payment_date, grace_since, delivery_address, delivery_phone, delivery_day, delivery_window, created_at, updated_at, version)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`

	// The partial unique index can fire when two reconciliations race to
	// create the client's first subscription; the savepoint in execInsert
	// keeps the loser's transaction alive so it can renew the winner's row.
	err := execInsert(ctx, r.pool, tx, q,
		s.ID, s.ClientID, s.DurationID, s.PremiumLevelID, s.Status, s.StartDate, s.NextPaymentDate, s.GraceSince,
		s.Delivery.Address, s.Delivery.Phone, s.Delivery.PreferredDay, s.Delivery.DeliveryWindow,
		s.CreatedAt, s.UpdatedAt, s.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) Update(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
UPDATE subscriptions
   SET duration_id=$2, premium_level_id=$3, status=$4, next_payment_date=$5, grace_since=$6,
       delivery_address=$7, delivery_phone=$8, delivery_day=$9, delivery_window=$10,
       updated_at=$11, version=version+1
 WHERE id=$1 AND version=$12;`

	cmd, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.DurationID, s.PremiumLevelID, s.Status, s.NextPaymentDate, s.GraceSince,
		s.Delivery.Address, s.Delivery.Phone, s.Delivery.PreferredDay, s.Delivery.DeliveryWindow,
		s.UpdatedAt, s.Version,
	)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	s.Version++
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subCols + ` FROM subscriptions WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", id)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindCurrentByClient(ctx context.Context, tx repository.Tx, clientID string) (*model.Subscription, error) {
	q := `SELECT ` + subCols + ` FROM subscriptions WHERE client_id=$1 AND status IN ('active','grace')`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", clientID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) ListByClient(ctx context.Context, tx repository.Tx, clientID string) ([]*model.Subscription, error) {
	const q = `SELECT ` + subCols + ` FROM subscriptions WHERE client_id=$1 ORDER BY created_at DESC;`
	return r.list(ctx, tx, q, clientID)
}

func (r *subscriptionRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + subCols + ` FROM subscriptions WHERE status='active' AND next_payment_date < $1 ORDER BY next_payment_date ASC LIMIT $2;`
	return r.list(ctx, tx, q, now, limit)
}

func (r *subscriptionRepo) ListGraceElapsed(ctx context.Context, tx repository.Tx, graceBefore time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + subCols + ` FROM subscriptions WHERE status='grace' AND grace_since < $1 ORDER BY grace_since ASC LIMIT $2;`
	return r.list(ctx, tx, q, graceBefore, limit)
}

func (r *subscriptionRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	err := row.Scan(
		&s.ID, &s.ClientID, &s.DurationID, &s.PremiumLevelID, &s.Status, &s.StartDate, &s.NextPaymentDate, &s.GraceSince,
		&s.Delivery.Address, &s.Delivery.Phone, &s.Delivery.PreferredDay, &s.Delivery.DeliveryWindow,
		&s.CreatedAt, &s.UpdatedAt, &s.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}
