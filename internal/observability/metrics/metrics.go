package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/gauges for the fulfillment flow.
type BotMetrics struct {
	ordersTotal         *prometheus.CounterVec
	fulfillmentsTotal   *prometheus.CounterVec
	refundsTotal        *prometheus.CounterVec
	listingsDeactivated prometheus.Counter
	providerBalance     prometheus.Gauge
	openConversations   prometheus.Gauge
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		ordersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steampoints",
			Subsystem: "orders",
			Name:      "intake_total",
			Help:      "Orders seen at intake, by outcome",
		}, []string{"outcome"}),
		fulfillmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steampoints",
			Subsystem: "fulfillment",
			Name:      "submissions_total",
			Help:      "Provider submissions, by result",
		}, []string{"result"}),
		refundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steampoints",
			Subsystem: "compensation",
			Name:      "refunds_total",
			Help:      "Marketplace refund attempts, by result",
		}, []string{"result"}),
		listingsDeactivated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "steampoints",
			Subsystem: "compensation",
			Name:      "listings_deactivated_total",
			Help:      "Listings deactivated by low-balance protection",
		}),
		providerBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "steampoints",
			Subsystem: "provider",
			Name:      "balance",
			Help:      "Last known provider prepaid balance",
		}),
		openConversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "steampoints",
			Subsystem: "conversations",
			Name:      "open",
			Help:      "Currently open fulfillment conversations",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.ordersTotal,
		m.fulfillmentsTotal,
		m.refundsTotal,
		m.listingsDeactivated,
		m.providerBalance,
		m.openConversations,
	)
	return m
}

func (m *BotMetrics) ObserveOrder(outcome string) {
	if m == nil {
		return
	}
	m.ordersTotal.WithLabelValues(outcome).Inc()
}

func (m *BotMetrics) ObserveFulfillment(result string) {
	if m == nil {
		return
	}
	m.fulfillmentsTotal.WithLabelValues(result).Inc()
}

func (m *BotMetrics) ObserveRefund(result string) {
	if m == nil {
		return
	}
	m.refundsTotal.WithLabelValues(result).Inc()
}

func (m *BotMetrics) AddListingsDeactivated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.listingsDeactivated.Add(float64(n))
}

func (m *BotMetrics) SetProviderBalance(balance float64) {
	if m == nil {
		return
	}
	m.providerBalance.Set(balance)
}

func (m *BotMetrics) SetOpenConversations(n int) {
	if m == nil {
		return
	}
	m.openConversations.Set(float64(n))
}
