package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionTransitionsTotal,
		sweepTransitions,
	)
}

var (
	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Subscription state transitions by kind (activated/renewed/grace/expired/cancelled).",
		},
		[]string{"kind"},
	)

	sweepTransitions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_sweep_transitions_total",
			Help: "State transitions applied by the clock sweep.",
		},
	)
)

func IncSubscriptionTransition(kind string) {
	subscriptionTransitionsTotal.WithLabelValues(norm(kind)).Inc()
}

func AddSweepTransitions(n int) {
	if n > 0 {
		sweepTransitions.Add(float64(n))
	}
}
