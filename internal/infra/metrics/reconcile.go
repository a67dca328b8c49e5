package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(reconciliationsTotal)
}

var reconciliationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "OnConfirmed invocations by result (applied/replay/pending/failed).",
	},
	[]string{"result"},
)

func IncReconciliation(result string) {
	reconciliationsTotal.WithLabelValues(norm(result)).Inc()
}
