package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// CallsSummaryRequest asks for call usage of one subscriber over an inclusive date range.
type CallsSummaryRequest struct {
	SubscriberID string    `json:"subscriber_id"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
}

// CallsSummary splits usage by the same day/night rule used for rating.
type CallsSummary struct {
	SubscriberID string `json:"subscriber_id"`

	TotalCalls   int `json:"total_calls"`
	TotalSeconds int `json:"total_seconds"`
	DaySeconds   int `json:"day_seconds"`
	NightSeconds int `json:"night_seconds"`

	// CallsByZone counts calls per zone code.
	CallsByZone map[string]int `json:"calls_by_zone"`
}

// BillsSummary aggregates the stored bills of a subscriber.
type BillsSummary struct {
	SubscriberID string `json:"subscriber_id"`

	Bills       int `json:"bills"`
	PaidBills   int `json:"paid_bills"`
	UnpaidBills int `json:"unpaid_bills"`

	TotalAmount       decimal.Decimal `json:"total_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
}
