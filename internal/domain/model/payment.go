package model

import (
	"time"

	"expbox-billing/internal/domain"
)

type PaymentType string

const (
	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypeGift         PaymentType = "gift"
)

type PaymentStatus string

const (
	PaymentStatusNew        PaymentStatus = "NEW"        // checkout created, nothing happened at the gateway yet
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED" // funds held
	PaymentStatusConfirmed  PaymentStatus = "CONFIRMED"  // funds captured; business effects due
	PaymentStatusRejected   PaymentStatus = "REJECTED"   // gateway declined
	PaymentStatusReversed   PaymentStatus = "REVERSED"   // authorization voided after confirm
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"   // captured funds returned
)

// ParsePaymentStatus maps a raw gateway status string onto the closed enum.
// Unrecognized values are rejected at the boundary, never passed through.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentStatusNew, PaymentStatusAuthorized, PaymentStatusConfirmed,
		PaymentStatusRejected, PaymentStatusReversed, PaymentStatusRefunded:
		return PaymentStatus(s), nil
	default:
		return "", domain.ErrInvalidArgument
	}
}

// statusGraph is the forward-only transition table:
// NEW -> AUTHORIZED | REJECTED, AUTHORIZED -> CONFIRMED | REJECTED,
// CONFIRMED -> REVERSED | REFUNDED. REJECTED/REVERSED/REFUNDED are sinks.
var statusGraph = map[PaymentStatus][]PaymentStatus{
	PaymentStatusNew:        {PaymentStatusAuthorized, PaymentStatusRejected},
	PaymentStatusAuthorized: {PaymentStatusConfirmed, PaymentStatusRejected},
	PaymentStatusConfirmed:  {PaymentStatusReversed, PaymentStatusRefunded},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range statusGraph[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentOutcome records the single business effect applied for a confirmed
// payment. Once either flag is true the outcome is frozen; replays must
// either match it exactly or fail.
type PaymentOutcome struct {
	SubscriptionActivated bool
	SubscriptionID        *string
	GiftPromocodeCreated  bool
	GiftCode              *string
}

func (o PaymentOutcome) Applied() bool {
	return o.SubscriptionActivated || o.GiftPromocodeCreated
}

func (o PaymentOutcome) Equal(other PaymentOutcome) bool {
	return o.SubscriptionActivated == other.SubscriptionActivated &&
		o.GiftPromocodeCreated == other.GiftPromocodeCreated &&
		strPtrEq(o.SubscriptionID, other.SubscriptionID) &&
		strPtrEq(o.GiftCode, other.GiftCode)
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Payment records the external payment and the single outcome applied for it.
type Payment struct {
	ID             string // UUID
	OrderID        string // externally visible, ULID
	ClientID       string // payer, UUID
	Type           PaymentType
	Status         PaymentStatus
	Amount         int64 // minor units
	Currency       string
	DurationID     string
	PremiumLevelID string       // subscription payments only
	PromoCode      *string      // optional discount to honor at reconciliation
	Delivery       DeliveryInfo // subscription payments only
	Outcome        PaymentOutcome
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ConfirmedAt    *time.Time
}

// NewPayment validates and constructs a checkout payment (status NEW).
func NewPayment(id, orderID, clientID string, typ PaymentType, amount int64, currency, durationID string, now time.Time) (*Payment, error) {
	if id == "" || orderID == "" || clientID == "" || durationID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount < 0 || currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	if typ != PaymentTypeSubscription && typ != PaymentTypeGift {
		return nil, domain.ErrInvalidArgument
	}
	return &Payment{
		ID:         id,
		OrderID:    orderID,
		ClientID:   clientID,
		Type:       typ,
		Status:     PaymentStatusNew,
		Amount:     amount,
		Currency:   currency,
		DurationID: durationID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
