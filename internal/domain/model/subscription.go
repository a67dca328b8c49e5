package model

import (
	"time"

	"expbox-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusGrace     SubscriptionStatus = "grace"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// DeliveryInfo holds where and when the box should arrive.
type DeliveryInfo struct {
	Address        string
	Phone          string
	PreferredDay   string // e.g. "saturday"
	DeliveryWindow string // e.g. "10:00-14:00"
}

// Subscription is a client's recurring box entitlement. A client holds at
// most one Active-or-Grace subscription at a time; Version guards every
// write so a renewal racing the clock sweep cannot silently lose.
type Subscription struct {
	ID              string // UUID
	ClientID        string // UUID of owning client
	DurationID      string
	PremiumLevelID  string
	Status          SubscriptionStatus
	StartDate       time.Time
	NextPaymentDate time.Time
	GraceSince      *time.Time // set when entering grace
	Delivery        DeliveryInfo
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int
}

// NewSubscription creates an active subscription starting at now.
func NewSubscription(id, clientID, durationID, premiumLevelID string, months int, delivery DeliveryInfo, now time.Time) (*Subscription, error) {
	if id == "" || clientID == "" || durationID == "" || months <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{
		ID:              id,
		ClientID:        clientID,
		DurationID:      durationID,
		PremiumLevelID:  premiumLevelID,
		Status:          SubscriptionStatusActive,
		StartDate:       now,
		NextPaymentDate: now.AddDate(0, months, 0),
		Delivery:        delivery,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *Subscription) IsTerminal() bool {
	return s.Status == SubscriptionStatusExpired || s.Status == SubscriptionStatusCancelled
}

// Renew extends the entitlement by months from whichever is later: now or
// the current due date. A grace subscription returns to active and the
// client may switch box length at renewal.
func (s *Subscription) Renew(durationID string, months int, now time.Time) error {
	if s.IsTerminal() {
		return domain.ErrAlreadyTerminal
	}
	if months <= 0 {
		return domain.ErrInvalidArgument
	}
	base := s.NextPaymentDate
	if now.After(base) {
		base = now
	}
	s.NextPaymentDate = base.AddDate(0, months, 0)
	s.DurationID = durationID
	s.Status = SubscriptionStatusActive
	s.GraceSince = nil
	s.UpdatedAt = now
	return nil
}

// EnterGrace marks an active subscription past due.
func (s *Subscription) EnterGrace(now time.Time) error {
	if s.Status != SubscriptionStatusActive {
		return domain.ErrInvalidArgument
	}
	t := now
	s.Status = SubscriptionStatusGrace
	s.GraceSince = &t
	s.UpdatedAt = now
	return nil
}

// Expire ends a grace subscription whose window elapsed.
func (s *Subscription) Expire(now time.Time) error {
	if s.Status != SubscriptionStatusGrace {
		return domain.ErrInvalidArgument
	}
	s.Status = SubscriptionStatusExpired
	s.UpdatedAt = now
	return nil
}
