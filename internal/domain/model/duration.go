package model

import (
	"time"

	"expbox-billing/internal/domain"
)

// BoxDuration is a purchasable subscription length from the tariff catalog,
// priced in minor currency units.
type BoxDuration struct {
	ID         string
	Name       string
	Months     int
	PriceMinor int64
	Currency   string
	CreatedAt  time.Time
}

func (d *BoxDuration) IsZero() bool { return d == nil || d.ID == "" }

// NewBoxDuration validates and constructs a catalog entry.
func NewBoxDuration(id, name string, months int, priceMinor int64, currency string) (*BoxDuration, error) {
	if id == "" || name == "" || months <= 0 || priceMinor <= 0 || currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &BoxDuration{
		ID:         id,
		Name:       name,
		Months:     months,
		PriceMinor: priceMinor,
		Currency:   currency,
		CreatedAt:  time.Now(),
	}, nil
}

// DiscountedPrice applies a percentage discount; the discount truncates.
func (d *BoxDuration) DiscountedPrice(discountPercent int) int64 {
	if discountPercent <= 0 {
		return d.PriceMinor
	}
	if discountPercent >= 100 {
		return 0
	}
	return d.PriceMinor - d.PriceMinor*int64(discountPercent)/100
}
