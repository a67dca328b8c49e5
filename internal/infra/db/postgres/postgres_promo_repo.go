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

var _ repository.PromoCodeRepository = (*promoCodeRepo)(nil)

type promoCodeRepo struct{ pool *pgxpool.Pool }

func NewPromoCodeRepo(pool *pgxpool.Pool) *promoCodeRepo {
	return &promoCodeRepo{pool: pool}
}

const promoCols = `id, code, kind, duration_id, discount_percent, max_activations, used_count, expires_at, is_active, created_at, version`

func (r *promoCodeRepo) Save(ctx context.Context, tx repository.Tx, pc *model.PromoCode) error {
	const q = `
INSERT INTO promo_codes (id, code, kind, duration_id, discount_percent, max_activations, used_count, expires_at, is_active, created_at, version)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`

	// Gift minting retries a code collision inside the reconciliation
	// transaction; execInsert's savepoint keeps that retry possible.
	err := execInsert(ctx, r.pool, tx, q,
		pc.ID, pc.Code, pc.Kind, pc.DurationID, pc.DiscountPercent, pc.MaxActivations, pc.UsedCount, pc.ExpiresAt, pc.IsActive, pc.CreatedAt, pc.Version,
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

func (r *promoCodeRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PromoCode, error) {
	return r.findOne(ctx, tx, `SELECT `+promoCols+` FROM promo_codes WHERE id=$1`, id)
}

func (r *promoCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PromoCode, error) {
	return r.findOne(ctx, tx, `SELECT `+promoCols+` FROM promo_codes WHERE code=$1`, code)
}

func (r *promoCodeRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg interface{}) (*model.PromoCode, error) {
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", arg)
	if err != nil {
		return nil, err
	}

	pc := &model.PromoCode{}
	if err := row.Scan(&pc.ID, &pc.Code, &pc.Kind, &pc.DurationID, &pc.DiscountPercent, &pc.MaxActivations, &pc.UsedCount, &pc.ExpiresAt, &pc.IsActive, &pc.CreatedAt, &pc.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return pc, nil
}

// RedeemOnce is the ledger's core write: the redeemability conditions and
// the counter increment live in one UPDATE, so two racing redemptions can
// never both pass the check and push used_count over the cap.
func (r *promoCodeRepo) RedeemOnce(ctx context.Context, tx repository.Tx, code, durationID string, now time.Time) (int, error) {
	const q = `
UPDATE promo_codes
   SET used_count = used_count + 1,
       version = version + 1
 WHERE code = $1
   AND is_active
   AND duration_id = $2
   AND (expires_at IS NULL OR expires_at > $3)
   AND (max_activations IS NULL OR used_count < max_activations)
RETURNING discount_percent;`

	row, err := pickRow(ctx, r.pool, tx, q, code, durationID, now)
	if err != nil {
		return 0, err
	}

	var discount int
	if err := row.Scan(&discount); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrReadDatabaseRow
		}
		// No row matched: distinguish an unknown code from a lost race.
		if _, ferr := r.findOne(ctx, repository.NoTX, `SELECT `+promoCols+` FROM promo_codes WHERE code=$1`, code); ferr != nil {
			return 0, ferr
		}
		return 0, domain.ErrPromoRedemptionFailed
	}
	return discount, nil
}

func (r *promoCodeRepo) SetActive(ctx context.Context, tx repository.Tx, id string, active bool) error {
	const q = `UPDATE promo_codes SET is_active=$2, version=version+1 WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, active)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
