package repository

import (
	"context"

	"expbox-billing/internal/domain/model"
)

// DurationCatalogRepository is the port for the tariff catalog.
type DurationCatalogRepository interface {
	Save(ctx context.Context, tx Tx, d *model.BoxDuration) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.BoxDuration, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.BoxDuration, error)
}
