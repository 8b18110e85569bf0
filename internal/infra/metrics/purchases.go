package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		purchasesTotal,
		purchasesRevenueTotal,
		accessRevokedTotal,
	)
}

var (
	purchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_total",
			Help: "Completed purchases by scenario (logged_in/existing_user_email/guest_new).",
		},
		[]string{"scenario"},
	)

	purchasesRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_revenue_cents_total",
			Help: "Total value of completed purchases in cents, labeled by currency.",
		},
		[]string{"currency"},
	)

	accessRevokedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_revoked_total",
			Help: "Access grants revoked, labeled by cause (refund/dispute/expiry/manual).",
		},
		[]string{"cause"},
	)
)

func IncPurchase(scenario string) {
	purchasesTotal.WithLabelValues(scenario).Inc()
}

func AddPurchaseRevenue(currency string, amountCents int64) {
	purchasesRevenueTotal.WithLabelValues(currency).Add(float64(amountCents))
}

func IncAccessRevoked(cause string) {
	accessRevokedTotal.WithLabelValues(cause).Inc()
}

func AddAccessRevoked(cause string, n int64) {
	accessRevokedTotal.WithLabelValues(cause).Add(float64(n))
}
