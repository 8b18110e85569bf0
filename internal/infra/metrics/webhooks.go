package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookEventsTotal,
		notifierDeliveriesTotal,
	)
}

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound payment webhook events by type and outcome (processed/duplicate/failed/ignored/rejected).",
		},
		[]string{"type", "outcome"},
	)

	notifierDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_deliveries_total",
			Help: "Outbound best-effort notifications by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)
)

func IncWebhookEvent(eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func IncNotifierDelivery(channel, outcome string) {
	notifierDeliveriesTotal.WithLabelValues(channel, outcome).Inc()
}
