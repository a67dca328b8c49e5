package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"expbox-billing/internal/domain"
	"expbox-billing/internal/domain/model"
	"expbox-billing/internal/infra/logging"
	"expbox-billing/internal/infra/metrics"
	"expbox-billing/internal/usecase"
)

const requestTimeout = 10 * time.Second

type deliveryDTO struct {
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Day     string `json:"day,omitempty"`
	Window  string `json:"window,omitempty"`
}

type checkoutRequest struct {
	ClientID       string      `json:"client_id"`
	Type           string      `json:"type"`
	DurationID     string      `json:"duration_id"`
	PremiumLevelID string      `json:"premium_level_id,omitempty"`
	PromoCode      *string     `json:"promo_code,omitempty"`
	Delivery       deliveryDTO `json:"delivery"`
}

type webhookRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type paymentResponse struct {
	OrderID               string  `json:"order_id"`
	Status                string  `json:"status"`
	Type                  string  `json:"type"`
	Amount                int64   `json:"amount"`
	Currency              string  `json:"currency"`
	SubscriptionActivated bool    `json:"subscription_activated"`
	SubscriptionID        *string `json:"subscription_id,omitempty"`
	GiftPromocodeCreated  bool    `json:"gift_promocode_created"`
	GiftCode              *string `json:"gift_code,omitempty"`
}

func toPaymentResponse(p *model.Payment) paymentResponse {
	return paymentResponse{
		OrderID:               p.OrderID,
		Status:                string(p.Status),
		Type:                  string(p.Type),
		Amount:                p.Amount,
		Currency:              p.Currency,
		SubscriptionActivated: p.Outcome.SubscriptionActivated,
		SubscriptionID:        p.Outcome.SubscriptionID,
		GiftPromocodeCreated:  p.Outcome.GiftPromocodeCreated,
		GiftCode:              p.Outcome.GiftCode,
	}
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Type != string(model.PaymentTypeSubscription) && req.Type != string(model.PaymentTypeGift) {
		s.writeError(w, http.StatusBadRequest, "bad_request", "type must be subscription or gift")
		return
	}
	ctx = logging.WithClientID(ctx, req.ClientID)

	p, err := s.paymentUC.Checkout(ctx, usecase.CheckoutParams{
		ClientID:       req.ClientID,
		Type:           model.PaymentType(req.Type),
		DurationID:     req.DurationID,
		PremiumLevelID: req.PremiumLevelID,
		PromoCode:      req.PromoCode,
		Delivery: model.DeliveryInfo{
			Address:        req.Delivery.Address,
			Phone:          req.Delivery.Phone,
			PreferredDay:   req.Delivery.Day,
			DeliveryWindow: req.Delivery.Window,
		},
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	metrics.IncPayment(string(p.Status))
	logging.With(ctx, s.log).Info().Str("order_id", p.OrderID).Int64("amount", p.Amount).Msg("checkout created")
	s.writeJSON(w, http.StatusCreated, toPaymentResponse(p))
}

// handleWebhook consumes a normalized gateway notification. Deliveries may
// repeat; the coordinator's idempotency makes replays converge.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	status, err := model.ParsePaymentStatus(req.Status)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unknown_status", "unrecognized payment status")
		return
	}

	p, err := s.paymentUC.TransitionTo(ctx, req.OrderID, status)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	metrics.IncPayment(string(p.Status))
	if status == model.PaymentStatusConfirmed {
		p, err = s.runReconcile(ctx, req.OrderID, p.Outcome.Applied())
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// handlePaymentStatus serves the storefront's polling. A confirmed payment
// whose outcome is still unapplied gets reconciled here too, so the poll
// and the webhook converge on the same single application.
func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	orderID := chi.URLParam(r, "orderID")
	p, err := s.paymentUC.FindByOrderID(ctx, orderID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if p.Status == model.PaymentStatusConfirmed && !p.Outcome.Applied() {
		p, err = s.runReconcile(ctx, orderID, false)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

type subscriptionResponse struct {
	ID              string     `json:"id"`
	ClientID        string     `json:"client_id"`
	DurationID      string     `json:"duration_id"`
	PremiumLevelID  string     `json:"premium_level_id,omitempty"`
	Status          string     `json:"status"`
	NextPaymentDate time.Time  `json:"next_payment_date"`
	GraceSince      *time.Time `json:"grace_since,omitempty"`
}

func toSubscriptionResponse(sub *model.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:              sub.ID,
		ClientID:        sub.ClientID,
		DurationID:      sub.DurationID,
		PremiumLevelID:  sub.PremiumLevelID,
		Status:          string(sub.Status),
		NextPaymentDate: sub.NextPaymentDate,
		GraceSince:      sub.GraceSince,
	}
}

// handleCurrentSubscription serves the storefront's "what do I have now"
// query: the client's single Active-or-Grace subscription, 404 when none.
func (s *Server) handleCurrentSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sub, err := s.subUC.FindCurrentByClient(ctx, chi.URLParam(r, "clientID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	subs, err := s.subUC.ListByClient(ctx, chi.URLParam(r, "clientID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, toSubscriptionResponse(sub))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// runReconcile invokes the coordinator and records the business-effect
// metrics. priorApplied tells it whether the outcome was already applied
// before this delivery: redelivered webhooks carry CONFIRMED again and
// must not count revenue or effects twice.
func (s *Server) runReconcile(ctx context.Context, orderID string, priorApplied bool) (*model.Payment, error) {
	ctx = logging.WithOrderID(ctx, orderID)
	p, err := s.reconcileUC.OnConfirmed(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrPromoRedemptionFailed) {
			metrics.IncPromoRedemption("denied")
		}
		metrics.IncReconciliation("failed")
		logging.With(ctx, s.log).Warn().Err(err).Msg("reconciliation failed")
		return nil, err
	}
	switch {
	case !p.Outcome.Applied():
		metrics.IncReconciliation("pending")
	case priorApplied:
		metrics.IncReconciliation("applied")
	default:
		metrics.IncReconciliation("applied")
		metrics.AddPaymentRevenue(p.Currency, p.Amount)
		if p.PromoCode != nil {
			metrics.IncPromoRedemption("redeemed")
		}
		if p.Outcome.GiftPromocodeCreated {
			metrics.IncGiftCodeMinted()
		} else {
			metrics.IncSubscriptionTransition("activated")
		}
	}
	return p, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("write response")
	}
}

type errorResponse struct {
	Code   string `json:"code"`
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, errorResponse{Code: code, Error: msg})
}

// writeDomainError maps domain errors onto the HTTP surface. A failed promo
// redemption on a confirmed payment gets its own code: the money is taken
// and an operator has to follow up, so it must never look like a generic 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var promoErr *domain.PromoInvalidError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not_found", "entity not found")
	case errors.Is(err, domain.ErrPromoRedemptionFailed):
		s.writeError(w, http.StatusConflict, "promo_redemption_failed", "promo code could not be redeemed; operator attention required")
	case errors.As(err, &promoErr):
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Code: "promo_invalid", Error: promoErr.Error(), Reason: string(promoErr.Reason)})
	case errors.Is(err, domain.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, "invalid_transition", "payment status transition not allowed")
	case errors.Is(err, domain.ErrOutcomeAlreadySet):
		s.writeError(w, http.StatusConflict, "outcome_already_set", "payment outcome already applied with different values")
	case errors.Is(err, domain.ErrAlreadyTerminal):
		s.writeError(w, http.StatusConflict, "already_terminal", "subscription is already terminal")
	case errors.Is(err, domain.ErrAlreadyExists):
		s.writeError(w, http.StatusConflict, "already_exists", "entity already exists")
	case errors.Is(err, domain.ErrInvalidArgument):
		s.writeError(w, http.StatusBadRequest, "bad_request", "invalid argument")
	default:
		s.log.Error().Err(err).Msg("internal error")
		s.writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
