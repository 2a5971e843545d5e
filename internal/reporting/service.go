package reporting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tulen-chik/beltelekom-sub000/internal/billing"
	"github.com/tulen-chik/beltelekom-sub000/internal/calls"
	"github.com/tulen-chik/beltelekom-sub000/internal/faults"
	"github.com/tulen-chik/beltelekom-sub000/internal/tariff"
)

var ErrInvalidRequest = fmt.Errorf("reporting: invalid request: %w", faults.ErrValidation)

// BillLister is the read side of bill storage used for summaries.
type BillLister interface {
	ListBySubscriber(ctx context.Context, subscriberID string) ([]billing.Bill, error)
}

// Service derives read-only summaries from call records and stored bills.
type Service struct {
	calls calls.Repository
	bills BillLister
}

func NewService(callsRepo calls.Repository, bills BillLister) *Service {
	return &Service{calls: callsRepo, bills: bills}
}

// Calls lists the subscriber's calls in range together with their summary.
func (s *Service) Calls(ctx context.Context, req CallsSummaryRequest) ([]calls.CallRecord, CallsSummary, error) {
	if strings.TrimSpace(req.SubscriberID) == "" || req.From.IsZero() || req.To.IsZero() {
		return nil, CallsSummary{}, ErrInvalidRequest
	}
	if calls.DateOf(req.From).After(calls.DateOf(req.To)) {
		return nil, CallsSummary{}, ErrInvalidRequest
	}
	if s.calls == nil {
		return nil, CallsSummary{}, errors.New("reporting: calls repository not configured")
	}

	rows, err := s.calls.ListBySubscriber(ctx, req.SubscriberID, req.From, req.To)
	if err != nil {
		return nil, CallsSummary{}, faults.Infrastructure("list calls", err)
	}
	return rows, Summarize(req.SubscriberID, rows), nil
}

// CallsSummary returns only the summary part of Calls.
func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	_, out, err := s.Calls(ctx, req)
	return out, err
}

// Summarize aggregates call rows.
func Summarize(subscriberID string, rows []calls.CallRecord) CallsSummary {
	out := CallsSummary{SubscriberID: subscriberID, CallsByZone: map[string]int{}}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalSeconds += c.DurationSeconds
		out.CallsByZone[c.ZoneCode]++
		switch tariff.DayPartAt(c.StartTime) {
		case tariff.DayPartDay:
			out.DaySeconds += c.DurationSeconds
		case tariff.DayPartNight:
			out.NightSeconds += c.DurationSeconds
		}
	}
	return out
}

func (s *Service) BillsSummary(ctx context.Context, subscriberID string) (BillsSummary, error) {
	if strings.TrimSpace(subscriberID) == "" {
		return BillsSummary{}, ErrInvalidRequest
	}
	if s.bills == nil {
		return BillsSummary{}, errors.New("reporting: bill repository not configured")
	}
	bills, err := s.bills.ListBySubscriber(ctx, subscriberID)
	if err != nil {
		return BillsSummary{}, faults.Infrastructure("list bills", err)
	}
	return SummarizeBills(subscriberID, bills), nil
}

// SummarizeBills aggregates bill rows.
func SummarizeBills(subscriberID string, bills []billing.Bill) BillsSummary {
	out := BillsSummary{SubscriberID: subscriberID, TotalAmount: decimal.Zero, OutstandingAmount: decimal.Zero}
	for _, b := range bills {
		out.Bills++
		out.TotalAmount = out.TotalAmount.Add(b.Amount)
		if b.Paid {
			out.PaidBills++
			continue
		}
		out.UnpaidBills++
		out.OutstandingAmount = out.OutstandingAmount.Add(b.Amount)
	}
	return out
}
