package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tulen-chik/beltelekom-sub000/internal/audit"
	"github.com/tulen-chik/beltelekom-sub000/internal/calls"
	"github.com/tulen-chik/beltelekom-sub000/internal/faults"
	"github.com/tulen-chik/beltelekom-sub000/internal/metrics"
	"github.com/tulen-chik/beltelekom-sub000/internal/tariff"
	"github.com/tulen-chik/beltelekom-sub000/pkg/logger"
)

// Options carries the optional collaborators of a Service.
type Options struct {
	Audit   *audit.Service
	Metrics *metrics.Billing
	Logger  *slog.Logger

	// Workers caps concurrent tariff lookups. Defaults to 4.
	Workers int
	// StoreTimeout bounds each storage call. Defaults to 5s.
	StoreTimeout time.Duration
}

// Service loads calls and tariffs, runs Generate and persists the result.
//
// Money invariants:
// - a persisted bill is exactly the bill Generate returned for the same input
// - a failed generation persists nothing
// - a bill is inserted in a single write
type Service struct {
	calls   calls.Repository
	tariffs tariff.Repository
	repo    Repository

	audit        *audit.Service
	metrics      *metrics.Billing
	log          *slog.Logger
	workers      int
	storeTimeout time.Duration

	// clock and newID are injectable for deterministic tests.
	clock func() time.Time
	newID func() string
}

func NewService(callsRepo calls.Repository, tariffRepo tariff.Repository, repo Repository, opts Options) *Service {
	s := &Service{
		calls:        callsRepo,
		tariffs:      tariffRepo,
		repo:         repo,
		audit:        opts.Audit,
		metrics:      opts.Metrics,
		log:          opts.Logger,
		workers:      opts.Workers,
		storeTimeout: opts.StoreTimeout,
		clock:        time.Now,
		newID:        uuid.NewString,
	}
	if s.workers <= 0 {
		s.workers = 4
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = 5 * time.Second
	}
	return s
}

// Preview computes the bill for req without persisting it.
func (s *Service) Preview(ctx context.Context, req GenerateRequest) (Bill, error) {
	b, err := s.generate(ctx, req)
	if err != nil {
		s.metrics.BillGenerated(resultLabel(err))
		return Bill{}, err
	}
	s.metrics.BillGenerated("preview")
	return b, nil
}

// Create generates the bill for req and inserts it.
func (s *Service) Create(ctx context.Context, req GenerateRequest) (Bill, error) {
	b, err := s.generate(ctx, req)
	if err != nil {
		s.metrics.BillGenerated(resultLabel(err))
		return Bill{}, err
	}

	b.ID = s.newID()
	b.CreatedAt = s.clock().UTC()

	if err := s.withTimeout(ctx, func(ctx context.Context) error { return s.repo.Insert(ctx, b) }); err != nil {
		s.metrics.BillGenerated("error")
		return Bill{}, faults.Infrastructure("insert bill", err)
	}
	s.metrics.BillPersisted(len(b.Details.Lines), b.Amount)

	l := s.logger(ctx)
	l.Info("bill generated",
		"bill_id", b.ID,
		"subscriber_id", b.SubscriberID,
		"calls", len(b.Details.Lines),
		"amount", FormatAmount(b.Amount),
	)
	if s.audit != nil {
		if err := s.audit.Record(ctx, audit.EventTypeBillGenerated, b.SubscriberID, b.ID, "", "bill generated", map[string]string{
			"amount": b.Amount.String(),
			"calls":  fmt.Sprint(len(b.Details.Lines)),
		}); err != nil {
			l.Error("audit append failed", "bill_id", b.ID, "err", err)
		}
	}
	return b, nil
}

func (s *Service) Get(ctx context.Context, id string) (Bill, error) {
	if strings.TrimSpace(id) == "" {
		return Bill{}, ErrInvalidArgument
	}
	var b Bill
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.repo.Get(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Bill{}, err
		}
		return Bill{}, faults.Infrastructure("get bill", err)
	}
	return b, nil
}

func (s *Service) ListBySubscriber(ctx context.Context, subscriberID string) ([]Bill, error) {
	if strings.TrimSpace(subscriberID) == "" {
		return nil, ErrInvalidArgument
	}
	var out []Bill
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.repo.ListBySubscriber(ctx, subscriberID)
		return err
	})
	if err != nil {
		return nil, faults.Infrastructure("list bills", err)
	}
	return out, nil
}

// MarkPaid flags the bill as paid. Marking a paid bill again is a no-op.
func (s *Service) MarkPaid(ctx context.Context, id string) (Bill, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return Bill{}, err
	}
	if b.Paid {
		return b, nil
	}
	if err := s.withTimeout(ctx, func(ctx context.Context) error { return s.repo.MarkPaid(ctx, id) }); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Bill{}, err
		}
		return Bill{}, faults.Infrastructure("mark bill paid", err)
	}
	b.Paid = true

	l := s.logger(ctx)
	l.Info("bill paid", "bill_id", b.ID, "subscriber_id", b.SubscriberID, "amount", FormatAmount(b.Amount))
	if s.audit != nil {
		if err := s.audit.Record(ctx, audit.EventTypeBillPaid, b.SubscriberID, b.ID, "", "bill marked paid", nil); err != nil {
			l.Error("audit append failed", "bill_id", b.ID, "err", err)
		}
	}
	return b, nil
}

func (s *Service) generate(ctx context.Context, req GenerateRequest) (Bill, error) {
	if strings.TrimSpace(req.SubscriberID) == "" || req.StartDate.IsZero() || req.EndDate.IsZero() {
		return Bill{}, ErrInvalidArgument
	}
	if calls.DateOf(req.StartDate).After(calls.DateOf(req.EndDate)) {
		return Bill{}, ErrInvalidRange
	}

	var inRange []calls.CallRecord
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		inRange, err = s.calls.ListBySubscriber(ctx, req.SubscriberID, req.StartDate, req.EndDate)
		return err
	})
	if err != nil {
		return Bill{}, faults.Infrastructure("list calls", err)
	}

	selected, err := selectCalls(inRange, req.CallIDs)
	if err != nil {
		return Bill{}, err
	}

	table, err := s.loadTariffs(ctx, selected)
	if err != nil {
		return Bill{}, err
	}

	b, err := Generate(req.SubscriberID, req.StartDate, req.EndDate, selected, table)
	if err != nil {
		return Bill{}, err
	}
	if len(selected) == 0 {
		s.logger(ctx).Warn("bill has no calls",
			"subscriber_id", req.SubscriberID,
			"start_date", req.StartDate.Format(calls.DateLayout),
			"end_date", req.EndDate.Format(calls.DateLayout),
		)
	}
	return b, nil
}

// selectCalls returns the calls named by ids, in the order given. Empty ids
// selects every call in range.
func selectCalls(inRange []calls.CallRecord, ids []string) ([]calls.CallRecord, error) {
	if len(ids) == 0 {
		return inRange, nil
	}
	byID := make(map[string]calls.CallRecord, len(inRange))
	for _, c := range inRange {
		byID[c.ID] = c
	}
	seen := make(map[string]bool, len(ids))
	out := make([]calls.CallRecord, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("call %s selected twice: %w", id, ErrInvalidArgument)
		}
		seen[id] = true
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("call %s: %w", id, ErrCallNotFound)
		}
		out = append(out, c)
	}
	return out, nil
}

// loadTariffs fetches every tariff row of the zones the calls touch.
func (s *Service) loadTariffs(ctx context.Context, selected []calls.CallRecord) (tariff.Table, error) {
	zones := make([]string, 0)
	seen := make(map[string]bool)
	for _, c := range selected {
		if !seen[c.ZoneCode] {
			seen[c.ZoneCode] = true
			zones = append(zones, c.ZoneCode)
		}
	}
	sort.Strings(zones)

	var (
		mu   sync.Mutex
		rows []tariff.Tariff
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, zone := range zones {
		zone := zone
		g.Go(func() error {
			var zoneRows []tariff.Tariff
			err := s.withTimeout(gctx, func(ctx context.Context) error {
				var err error
				zoneRows, err = s.tariffs.ListByZone(ctx, zone, time.Time{})
				return err
			})
			if err != nil {
				return faults.Infrastructure("list tariffs", err)
			}
			mu.Lock()
			rows = append(rows, zoneRows...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tariff.Table{}, err
	}
	return tariff.NewTable(rows...), nil
}

func (s *Service) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *Service) logger(ctx context.Context) *slog.Logger {
	return logger.FromOr(ctx, s.log)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, tariff.ErrTariffNotFound):
		return "tariff_not_found"
	case errors.Is(err, faults.ErrValidation), errors.Is(err, faults.ErrNotFound):
		return "invalid"
	default:
		return "error"
	}
}
