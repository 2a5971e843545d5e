package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulen-chik/beltelekom-sub000/internal/audit"
	"github.com/tulen-chik/beltelekom-sub000/internal/calls"
	"github.com/tulen-chik/beltelekom-sub000/internal/faults"
	"github.com/tulen-chik/beltelekom-sub000/internal/metrics"
	"github.com/tulen-chik/beltelekom-sub000/internal/tariff"
)

type fixture struct {
	svc    *Service
	calls  *calls.MemoryRepo
	tarifs *tariff.MemoryRepo
	bills  *MemoryRepo
	audit  *audit.MemoryRepo
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		calls:  calls.NewMemoryRepo(),
		tarifs: tariff.NewMemoryRepo(zone1Tariff()),
		bills:  NewMemoryRepo(),
		audit:  audit.NewMemoryRepo(),
	}
	f.svc = NewService(f.calls, f.tarifs, f.bills, Options{
		Audit:   audit.NewService(f.audit),
		Metrics: metrics.MustNew(prometheus.NewRegistry()),
		Workers: 2,
	})
	f.svc.clock = func() time.Time { return time.Date(2023, 2, 1, 9, 0, 0, 0, time.UTC) }
	f.svc.newID = func() string { return "bill-1" }
	return f
}

func january(ids ...string) GenerateRequest {
	return GenerateRequest{
		SubscriberID: "SUB-1",
		StartDate:    date("2023-01-01"),
		EndDate:      date("2023-01-31"),
		CallIDs:      ids,
	}
}

func TestService_CreateEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.calls.Add(call("c1", "1", "2023-01-01", "10:00:00", 60))

	b, err := f.svc.Create(context.Background(), january())
	require.NoError(t, err)

	assert.Equal(t, "bill-1", b.ID)
	assert.Equal(t, "1.00", FormatAmount(b.Amount))
	assert.False(t, b.Paid)

	stored, err := f.bills.Get(context.Background(), "bill-1")
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(b.Amount))
	assert.Equal(t, b.Details, stored.Details)
	assert.Len(t, f.audit.EventsOfType(audit.EventTypeBillGenerated), 1)
}

func TestService_TariffMissPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.calls.Add(call("c1", "1", "2023-01-01", "10:00:00", 60))
	f.calls.Add(call("c2", "7", "2023-01-02", "10:00:00", 60))

	_, err := f.svc.Create(context.Background(), january("c1", "c2"))
	require.Error(t, err)

	var tnf *TariffNotFoundError
	require.True(t, errors.As(err, &tnf))
	assert.Equal(t, "c2", tnf.CallID)
	assert.Equal(t, 0, f.bills.Len())
	assert.Empty(t, f.audit.Events())
}

func TestService_SelectionOrderAndUnknownCalls(t *testing.T) {
	f := newFixture(t)
	f.calls.Add(call("c1", "1", "2023-01-01", "10:00:00", 60))
	f.calls.Add(call("c2", "1", "2023-01-03", "23:00:00", 120))

	b, err := f.svc.Preview(context.Background(), january("c2", "c1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c1"}, b.Details.CallIDs)
	assert.Equal(t, "2.00", FormatAmount(b.Amount))
	assert.Equal(t, 0, f.bills.Len())

	_, err = f.svc.Preview(context.Background(), january("c1", "nope"))
	assert.ErrorIs(t, err, ErrCallNotFound)
	assert.ErrorIs(t, err, faults.ErrNotFound)

	_, err = f.svc.Preview(context.Background(), january("c1", "c1"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_CallsOutsideRangeAreNotSelectable(t *testing.T) {
	f := newFixture(t)
	f.calls.Add(call("feb", "1", "2023-02-10", "10:00:00", 60))

	_, err := f.svc.Create(context.Background(), january("feb"))
	assert.ErrorIs(t, err, ErrCallNotFound)
	assert.Equal(t, 0, f.bills.Len())
}

func TestService_EmptyRangeGivesZeroBill(t *testing.T) {
	f := newFixture(t)
	b, err := f.svc.Create(context.Background(), january())
	require.NoError(t, err)
	assert.True(t, b.Amount.IsZero())
	assert.Equal(t, 1, f.bills.Len())
}

func TestService_StorageFaultsAreInfrastructure(t *testing.T) {
	f := newFixture(t)
	f.calls.Add(call("c1", "1", "2023-01-01", "10:00:00", 60))

	f.tarifs.Err = errors.New("connection refused")
	_, err := f.svc.Preview(context.Background(), january())
	assert.ErrorIs(t, err, faults.ErrInfrastructure)
	f.tarifs.Err = nil

	f.bills.Err = context.DeadlineExceeded
	_, err = f.svc.Create(context.Background(), january())
	assert.ErrorIs(t, err, faults.ErrInfrastructure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_GetListMarkPaid(t *testing.T) {
	f := newFixture(t)
	f.calls.Add(call("c1", "1", "2023-01-01", "10:00:00", 60))
	ctx := context.Background()

	created, err := f.svc.Create(ctx, january())
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := f.svc.ListBySubscriber(ctx, "SUB-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	paid, err := f.svc.MarkPaid(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, paid.Paid)

	again, err := f.svc.MarkPaid(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, again.Paid)
	assert.Len(t, f.audit.EventsOfType(audit.EventTypeBillPaid), 1)
}

func TestService_RejectsInvalidRequest(t *testing.T) {
	f := newFixture(t)
	req := january()
	req.StartDate, req.EndDate = req.EndDate, req.StartDate
	_, err := f.svc.Preview(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = f.svc.Preview(context.Background(), GenerateRequest{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
