package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		promoRedemptionsTotal,
		giftCodesMintedTotal,
	)
}

var (
	promoRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_redemptions_total",
			Help: "Promo code redemption attempts by result (redeemed/denied).",
		},
		[]string{"result"},
	)

	giftCodesMintedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gift_codes_minted_total",
			Help: "Gift promo codes minted by confirmed gift payments.",
		},
	)
)

func IncPromoRedemption(result string) {
	promoRedemptionsTotal.WithLabelValues(norm(result)).Inc()
}

func IncGiftCodeMinted() {
	giftCodesMintedTotal.Inc()
}
