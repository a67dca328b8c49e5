package repository

import (
	"context"
	"time"

	"expbox-billing/internal/domain/model"
)

// PaymentRepository is the port for payment records.
type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.Payment, error)
	// UpdateStatus moves the payment from `from` to `to` in one conditional
	// write. domain.ErrVersionConflict when the stored status is no longer
	// `from` (a concurrent transition won).
	UpdateStatus(ctx context.Context, tx Tx, orderID string, from, to model.PaymentStatus, at time.Time) error
	// MarkOutcome sets the outcome flags only if none are set yet.
	// domain.ErrOutcomeAlreadySet when an outcome was already applied.
	MarkOutcome(ctx context.Context, tx Tx, orderID string, outcome model.PaymentOutcome) error
	// ListConfirmedUnapplied returns CONFIRMED payments older than olderThan
	// whose outcome flags are still unset, for the reconciler sweep.
	ListConfirmedUnapplied(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
}
