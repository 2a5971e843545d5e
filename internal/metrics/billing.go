package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Billing exposes Prometheus collectors for bill generation and bonus application.
// A nil *Billing is valid and records nothing.
type Billing struct {
	billsGenerated *prometheus.CounterVec
	callsRated     prometheus.Counter
	billAmount     prometheus.Histogram

	bonusApplications *prometheus.CounterVec
	compensations     *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultBilling *Billing
)

// Default returns collectors registered with the global registry, created once.
func Default() *Billing {
	defaultOnce.Do(func() {
		defaultBilling = MustNew(prometheus.DefaultRegisterer)
	})
	return defaultBilling
}

// MustNew registers a fresh set of collectors with reg and panics on
// registration errors. Tests pass prometheus.NewRegistry().
func MustNew(reg prometheus.Registerer) *Billing {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Billing{
		billsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billing",
				Name:      "bills_generated_total",
				Help:      "Bill generation attempts by result.",
			},
			[]string{"result"}, // created | preview | tariff_not_found | invalid | error
		),
		callsRated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "calls_rated_total",
			Help:      "Calls rated into persisted bills.",
		}),
		billAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "billing",
			Name:      "bill_amount",
			Help:      "Amount of persisted bills at creation.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		bonusApplications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billing",
				Name:      "bonus_applications_total",
				Help:      "Bonus application attempts by result.",
			},
			[]string{"result"}, // applied | already_applied | exceeds_bill | not_found | invalid | conflict | error | reconciliation_required
		),
		compensations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billing",
				Name:      "bonus_compensations_total",
				Help:      "Bill amount restorations after a failed bonus flag update.",
			},
			[]string{"outcome"}, // restored | failed
		),
	}
	reg.MustRegister(m.billsGenerated, m.callsRated, m.billAmount, m.bonusApplications, m.compensations)
	return m
}

func (m *Billing) BillGenerated(result string) {
	if m == nil {
		return
	}
	m.billsGenerated.WithLabelValues(result).Inc()
}

func (m *Billing) BillPersisted(calls int, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.billsGenerated.WithLabelValues("created").Inc()
	m.callsRated.Add(float64(calls))
	m.billAmount.Observe(amount.InexactFloat64())
}

func (m *Billing) BonusApplication(result string) {
	if m == nil {
		return
	}
	m.bonusApplications.WithLabelValues(result).Inc()
}

func (m *Billing) Compensation(outcome string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(outcome).Inc()
}
