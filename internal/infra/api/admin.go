package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"expbox-billing/internal/domain/model"
	"expbox-billing/internal/infra/metrics"
)

type createPromoCodeRequest struct {
	Code            string     `json:"code"`
	DurationID      string     `json:"duration_id"`
	DiscountPercent int        `json:"discount_percent"`
	MaxActivations  *int       `json:"max_activations,omitempty"` // null = unlimited
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

type promoCodeResponse struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	Kind            string     `json:"kind"`
	DurationID      string     `json:"duration_id"`
	DiscountPercent int        `json:"discount_percent"`
	MaxActivations  *int       `json:"max_activations,omitempty"`
	UsedCount       int        `json:"used_count"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	IsActive        bool       `json:"is_active"`
}

func toPromoCodeResponse(pc *model.PromoCode) promoCodeResponse {
	return promoCodeResponse{
		ID:              pc.ID,
		Code:            pc.Code,
		Kind:            string(pc.Kind),
		DurationID:      pc.DurationID,
		DiscountPercent: pc.DiscountPercent,
		MaxActivations:  pc.MaxActivations,
		UsedCount:       pc.UsedCount,
		ExpiresAt:       pc.ExpiresAt,
		IsActive:        pc.IsActive,
	}
}

func (s *Server) handleCreatePromoCode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req createPromoCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	pc, err := s.promoUC.CreateAdminCode(ctx, req.Code, req.DurationID, req.DiscountPercent, req.MaxActivations, req.ExpiresAt)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toPromoCodeResponse(pc))
}

func (s *Server) handleGetPromoCode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	pc, err := s.promoUC.FindByCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toPromoCodeResponse(pc))
}

func (s *Server) handleDeactivatePromoCode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.promoUC.Deactivate(ctx, chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReactivatePromoCode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.promoUC.Reactivate(ctx, chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// defaultExpiringHorizon is used when the ops dashboard does not pass
// an explicit ?within= window.
const defaultExpiringHorizon = 72 * time.Hour

func (s *Server) handleListExpiringSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	horizon := defaultExpiringHorizon
	if raw := r.URL.Query().Get("within"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			s.writeError(w, http.StatusBadRequest, "bad_request", "within must be a positive duration like 72h")
			return
		}
		horizon = d
	}

	subs, err := s.subUC.ListExpiring(ctx, time.Now(), horizon)
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

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.subUC.Cancel(ctx, chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	metrics.IncSubscriptionTransition("cancelled")
	w.WriteHeader(http.StatusNoContent)
}

type overrideSubscriptionRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleOverrideSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req overrideSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	sub, err := s.subUC.Override(ctx, chi.URLParam(r, "id"), model.SubscriptionStatus(req.Status))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	metrics.IncSubscriptionTransition(string(sub.Status))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":                sub.ID,
		"status":            string(sub.Status),
		"next_payment_date": sub.NextPaymentDate,
	})
}
