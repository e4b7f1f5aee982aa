package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tillstock"

// LedgerMetrics covers the write paths: stock movements, sales and drawer closes.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	movements         *prometheus.CounterVec
	insufficientStock prometheus.Counter
	sales             *prometheus.CounterVec
	saleTotal         prometheus.Histogram
	drawerCloses      *prometheus.CounterVec
	opDuration        *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger metrics on reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_movements_total",
			Help:      "Stock movements recorded, by movement type.",
		}, []string{"type"}),
		insufficientStock: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insufficient_stock_total",
			Help:      "Requests rejected because a balance would go negative.",
		}),
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Sales committed, by status.",
		}, []string{"status"}),
		saleTotal: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sale_total_amount",
			Help:      "Distribution of sale totals.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}),
		drawerCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drawer_closes_total",
			Help:      "Cash register closes, by variance status.",
		}, []string{"variance"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_duration_seconds",
			Help:      "Duration of ledger write transactions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(m.movements, m.insufficientStock, m.sales, m.saleTotal, m.drawerCloses, m.opDuration)
	return m
}

func (m *LedgerMetrics) MovementRecorded(movementType string) {
	if m == nil || m.movements == nil {
		return
	}
	m.movements.WithLabelValues(normalizeLabel(movementType)).Inc()
}

func (m *LedgerMetrics) InsufficientStock() {
	if m == nil || m.insufficientStock == nil {
		return
	}
	m.insufficientStock.Inc()
}

func (m *LedgerMetrics) SaleCompleted(status string, total float64) {
	if m == nil || m.sales == nil {
		return
	}
	m.sales.WithLabelValues(normalizeLabel(status)).Inc()
	m.saleTotal.Observe(total)
}

func (m *LedgerMetrics) DrawerClosed(variance string) {
	if m == nil || m.drawerCloses == nil {
		return
	}
	m.drawerCloses.WithLabelValues(normalizeLabel(variance)).Inc()
}

// ObserveOperation records how long a write transaction took and whether it committed.
func (m *LedgerMetrics) ObserveOperation(operation string, started time.Time, err error) {
	if m == nil || m.opDuration == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.opDuration.WithLabelValues(normalizeLabel(operation), outcome).Observe(time.Since(started).Seconds())
}
