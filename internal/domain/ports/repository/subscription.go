package repository

import (
	"context"
	"time"

	"expbox-billing/internal/domain/model"
)

// SubscriptionRepository is the port for client subscriptions.
type SubscriptionRepository interface {
	// Save inserts a new subscription. domain.ErrAlreadyExists when the
	// client already holds an Active-or-Grace subscription.
	Save(ctx context.Context, tx Tx, sub *model.Subscription) error
	// Update writes the row only if the stored version matches sub.Version,
	// then bumps it. domain.ErrVersionConflict when another writer won.
	Update(ctx context.Context, tx Tx, sub *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	// FindCurrentByClient returns the client's Active-or-Grace subscription.
	FindCurrentByClient(ctx context.Context, tx Tx, clientID string) (*model.Subscription, error)
	ListByClient(ctx context.Context, tx Tx, clientID string) ([]*model.Subscription, error)

	// Sweep queries.
	ListDue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Subscription, error)
	ListGraceElapsed(ctx context.Context, tx Tx, graceBefore time.Time, limit int) ([]*model.Subscription, error)
}
