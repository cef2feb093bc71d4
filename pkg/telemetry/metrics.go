package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus primitives for the billing pipeline.
type Metrics struct {
	usageEvents     *prometheus.CounterVec
	invoices        *prometheus.CounterVec
	invoiceAmount   prometheus.Histogram
	creditDraws     prometheus.Counter
	creditExpired   prometheus.Counter
	pricingFailures *prometheus.CounterVec
}

// NewMetrics registers and returns the billing metrics.
func NewMetrics() *Metrics {
	usageEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_usage_events_total",
		Help: "Usage events ingested by metric name.",
	}, []string{"metric"})

	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_invoices_total",
		Help: "Invoices created by status.",
	}, []string{"status"})

	invoiceAmount := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tally_invoice_amount",
		Help:    "Invoice amount distribution after credit application.",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
	})

	creditDraws := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tally_credit_draws_total",
		Help: "Credit balance draw-downs applied to invoices.",
	})

	creditExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tally_credit_expired_total",
		Help: "Credit balances expired by the sweep.",
	})

	pricingFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_pricing_failures_total",
		Help: "Price component evaluations that produced a diagnostic zero charge.",
	}, []string{"pricing_type"})

	prometheus.MustRegister(
		usageEvents,
		invoices,
		invoiceAmount,
		creditDraws,
		creditExpired,
		pricingFailures,
	)

	return &Metrics{
		usageEvents:     usageEvents,
		invoices:        invoices,
		invoiceAmount:   invoiceAmount,
		creditDraws:     creditDraws,
		creditExpired:   creditExpired,
		pricingFailures: pricingFailures,
	}
}

// ObserveUsageEvents increments the ingest counter for a metric.
// count allows batching multiple events with one call.
func (m *Metrics) ObserveUsageEvents(metricName string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.usageEvents.WithLabelValues(sanitizeLabel(metricName)).Add(float64(count))
}

// ObserveInvoice records an invoice creation and its post-credit amount.
func (m *Metrics) ObserveInvoice(status string, amount float64) {
	if m == nil {
		return
	}
	m.invoices.WithLabelValues(sanitizeLabel(status)).Inc()
	m.invoiceAmount.Observe(amount)
}

// ObserveCreditDraw records one credit draw-down.
func (m *Metrics) ObserveCreditDraw() {
	if m == nil {
		return
	}
	m.creditDraws.Inc()
}

// ObserveCreditExpired records credits expired by the sweep.
func (m *Metrics) ObserveCreditExpired(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.creditExpired.Add(float64(count))
}

// ObservePricingFailure records a component evaluation that fell back to zero.
func (m *Metrics) ObservePricingFailure(pricingType string) {
	if m == nil {
		return
	}
	m.pricingFailures.WithLabelValues(sanitizeLabel(pricingType)).Inc()
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
