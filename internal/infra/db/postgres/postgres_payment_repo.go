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

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentCols = `id, order_id, client_id, type, status, amount, currency, duration_id, premium_level_id, promo_code, delivery_address, delivery_phone, delivery_day, delivery_window, subscription_activated, subscription_id, gift_promocode_created, gift_code, created_at, updated_at, confirmed_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (id, order_id, client_id, type, status, amount, currency, duration_id, premium_level_id, promo_code, delivery_address, delivery_phone, delivery_day, delivery_window, subscription_activated, subscription_id, gift_promocode_created, gift_code, created_at, updated_at, confirmed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21);`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.OrderID, p.ClientID, p.Type, p.Status, p.Amount, p.Currency, p.DurationID, p.PremiumLevelID, p.PromoCode,
		p.Delivery.Address, p.Delivery.Phone, p.Delivery.PreferredDay, p.Delivery.DeliveryWindow,
		p.Outcome.SubscriptionActivated, p.Outcome.SubscriptionID, p.Outcome.GiftPromocodeCreated, p.Outcome.GiftCode,
		p.CreatedAt, p.UpdatedAt, p.ConfirmedAt,
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

func (r *paymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Payment, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE order_id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", orderID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, orderID string, from, to model.PaymentStatus, at time.Time) error {
	const q = `
UPDATE payments
   SET status=$3, updated_at=$4,
       confirmed_at = CASE WHEN $3 = 'CONFIRMED' THEN $4 ELSE confirmed_at END
 WHERE order_id=$1 AND status=$2;`

	cmd, err := execSQL(ctx, r.pool, tx, q, orderID, from, to, at)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// MarkOutcome is the single-write guarantee behind reconciliation: the flags
// can only go from unset to set, in one conditional statement.
func (r *paymentRepo) MarkOutcome(ctx context.Context, tx repository.Tx, orderID string, outcome model.PaymentOutcome) error {
	const q = `
UPDATE payments
   SET subscription_activated=$2, subscription_id=$3, gift_promocode_created=$4, gift_code=$5, updated_at=NOW()
 WHERE order_id=$1
   AND NOT subscription_activated
   AND NOT gift_promocode_created;`

	cmd, err := execSQL(ctx, r.pool, tx, q, orderID,
		outcome.SubscriptionActivated, outcome.SubscriptionID, outcome.GiftPromocodeCreated, outcome.GiftCode,
	)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		if _, ferr := r.FindByOrderID(ctx, tx, orderID); errors.Is(ferr, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrOutcomeAlreadySet
	}
	return nil
}

func (r *paymentRepo) ListConfirmedUnapplied(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + paymentCols + `
  FROM payments
 WHERE status='CONFIRMED'
   AND NOT subscription_activated
   AND NOT gift_promocode_created
   AND confirmed_at < $1
 ORDER BY confirmed_at ASC
 LIMIT $2;`

	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	err := row.Scan(
		&p.ID, &p.OrderID, &p.ClientID, &p.Type, &p.Status, &p.Amount, &p.Currency, &p.DurationID, &p.PremiumLevelID, &p.PromoCode,
		&p.Delivery.Address, &p.Delivery.Phone, &p.Delivery.PreferredDay, &p.Delivery.DeliveryWindow,
		&p.Outcome.SubscriptionActivated, &p.Outcome.SubscriptionID, &p.Outcome.GiftPromocodeCreated, &p.Outcome.GiftCode,
		&p.CreatedAt, &p.UpdatedAt, &p.ConfirmedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}
