package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBilling_Counters(t *testing.T) {
	m := MustNew(prometheus.NewRegistry())

	m.BillPersisted(3, decimal.RequireFromString("12.5"))
	m.BillGenerated("tariff_not_found")
	m.BonusApplication("applied")
	m.BonusApplication("applied")
	m.Compensation("restored")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.billsGenerated.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.billsGenerated.WithLabelValues("tariff_not_found")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.callsRated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bonusApplications.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.compensations.WithLabelValues("restored")))
}

func TestBilling_NilIsNoop(t *testing.T) {
	var m *Billing
	assert.NotPanics(t, func() {
		m.BillGenerated("preview")
		m.BillPersisted(1, decimal.Zero)
		m.BonusApplication("error")
		m.Compensation("failed")
	})
}
