package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"expbox-billing/internal/usecase"
)

// Server is the HTTP surface of the billing core: checkout, the two
// converging reconciliation triggers (gateway webhook and client status
// poll), and the bearer-key admin endpoints.
type Server struct {
	paymentUC   usecase.PaymentUseCase
	reconcileUC usecase.ReconcileUseCase
	promoUC     usecase.PromoUseCase
	subUC       usecase.SubscriptionUseCase
	adminKey    string
	log         *zerolog.Logger
}

func NewServer(paymentUC usecase.PaymentUseCase, reconcileUC usecase.ReconcileUseCase, promoUC usecase.PromoUseCase, subUC usecase.SubscriptionUseCase, adminKey string, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "api").Logger()
	return &Server{
		paymentUC:   paymentUC,
		reconcileUC: reconcileUC,
		promoUC:     promoUC,
		subUC:       subUC,
		adminKey:    adminKey,
		log:         &l,
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(traceID)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", s.handleCheckout)
		r.Post("/payments/webhook", s.handleWebhook)
		r.Get("/payments/{orderID}", s.handlePaymentStatus)
		r.Get("/clients/{clientID}/subscription", s.handleCurrentSubscription)
		r.Get("/clients/{clientID}/subscriptions", s.handleListSubscriptions)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/promocodes", s.handleCreatePromoCode)
			r.Get("/promocodes/{code}", s.handleGetPromoCode)
			r.Post("/promocodes/{id}/deactivate", s.handleDeactivatePromoCode)
			r.Post("/promocodes/{id}/reactivate", s.handleReactivatePromoCode)
			r.Get("/subscriptions/expiring", s.handleListExpiringSubscriptions)
			r.Post("/subscriptions/{id}/cancel", s.handleCancelSubscription)
			r.Patch("/subscriptions/{id}/status", s.handleOverrideSubscription)
		})
	})
	return r
}

// authMiddleware guards the admin API with a static bearer key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] != s.adminKey {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
