package bonus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tulen-chik/beltelekom-sub000/internal/audit"
	"github.com/tulen-chik/beltelekom-sub000/internal/billing"
	"github.com/tulen-chik/beltelekom-sub000/internal/metrics"
	"github.com/tulen-chik/beltelekom-sub000/pkg/logger"
)

type Options struct {
	// Locker serializes applications per bill. Defaults to a LocalLocker.
	Locker  Locker
	Audit   *audit.Service
	Metrics *metrics.Billing
	Logger  *slog.Logger

	// StoreTimeout bounds each storage step and the wait for the bill lock.
	// Defaults to 5s.
	StoreTimeout time.Duration
}

// Ledger creates bonuses and applies them to bills.
//
// Money invariants:
// - a bonus reduces its bill at most once
// - a bonus never drives a bill below zero
// - a bill amount changes only by compare-and-set on the value read under the bill lock
// - a failed application leaves the bill amount as it was, or reports
//   ErrReconciliationRequired with an audit event
type Ledger struct {
	bills   BillStore
	bonuses Store
	tx      Transactor

	locker       Locker
	audit        *audit.Service
	metrics      *metrics.Billing
	log          *slog.Logger
	storeTimeout time.Duration

	// clock and newID are injectable for deterministic tests.
	clock func() time.Time
	newID func() string
}

// NewLedger wires a ledger. When bonuses also implements Transactor,
// applications run in one transaction instead of compensating.
func NewLedger(bills BillStore, bonuses Store, opts Options) *Ledger {
	l := &Ledger{
		bills:        bills,
		bonuses:      bonuses,
		locker:       opts.Locker,
		audit:        opts.Audit,
		metrics:      opts.Metrics,
		log:          opts.Logger,
		storeTimeout: opts.StoreTimeout,
		clock:        time.Now,
		newID:        uuid.NewString,
	}
	if t, ok := bonuses.(Transactor); ok {
		l.tx = t
	}
	if l.locker == nil {
		l.locker = NewLocalLocker()
	}
	if l.storeTimeout <= 0 {
		l.storeTimeout = 5 * time.Second
	}
	return l
}

// Create stores a pending bonus for an existing bill of the subscriber.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (Bonus, error) {
	req.BillID = strings.TrimSpace(req.BillID)
	req.SubscriberID = strings.TrimSpace(req.SubscriberID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.BillID == "" || req.SubscriberID == "" || req.Reason == "" {
		return Bonus{}, ErrInvalidArgument
	}
	if !req.Amount.IsPositive() {
		return Bonus{}, fmt.Errorf("amount must be positive: %w", ErrInvalidArgument)
	}
	if !req.Amount.Equal(billing.Round2(req.Amount)) {
		return Bonus{}, fmt.Errorf("amount %s has sub-cent digits: %w", req.Amount, ErrInvalidArgument)
	}

	bill, err := l.loadBill(ctx, req.BillID)
	if err != nil {
		return Bonus{}, err
	}
	if bill.SubscriberID != req.SubscriberID {
		return Bonus{}, fmt.Errorf("bill %s belongs to another subscriber: %w", bill.ID, ErrInvalidArgument)
	}

	b := Bonus{
		ID:           l.newID(),
		BillID:       bill.ID,
		SubscriberID: req.SubscriberID,
		Amount:       req.Amount,
		Reason:       req.Reason,
		CreatedAt:    l.clock().UTC(),
	}
	if err := l.withTimeout(ctx, func(ctx context.Context) error { return l.bonuses.Insert(ctx, b) }); err != nil {
		return Bonus{}, storageErr("insert bonus", err)
	}

	log := l.logger(ctx)
	log.Info("bonus created",
		"bonus_id", b.ID,
		"bill_id", b.BillID,
		"subscriber_id", b.SubscriberID,
		"amount", billing.FormatAmount(b.Amount),
	)
	l.record(ctx, audit.EventTypeBonusCreated, b, "bonus created", map[string]string{
		"amount": b.Amount.String(),
		"reason": b.Reason,
	})
	return b, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (Bonus, error) {
	if strings.TrimSpace(id) == "" {
		return Bonus{}, ErrInvalidArgument
	}
	return l.loadBonus(ctx, id)
}

// Apply moves a pending bonus to applied and reduces its bill by the bonus
// amount, rounded to cents.
//
// Guards, in order: already applied, bill missing, amount exceeds bill.
// A guard failure changes nothing. The returned error wraps the precise
// sentinel; the result always carries a human-readable message.
func (l *Ledger) Apply(ctx context.Context, bonusID string) (ApplyResult, error) {
	res, err := l.apply(ctx, bonusID)
	if err != nil {
		l.metrics.BonusApplication(applyLabel(err))
		return ApplyResult{Success: false, Message: err.Error(), BonusID: bonusID, BillID: res.BillID}, err
	}
	l.metrics.BonusApplication("applied")
	return res, nil
}

func (l *Ledger) apply(ctx context.Context, bonusID string) (ApplyResult, error) {
	if strings.TrimSpace(bonusID) == "" {
		return ApplyResult{}, ErrInvalidArgument
	}
	b, err := l.loadBonus(ctx, bonusID)
	if err != nil {
		return ApplyResult{}, err
	}
	if b.Applied {
		return ApplyResult{BillID: b.BillID}, ErrAlreadyApplied
	}

	lockCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	unlock, err := l.locker.Lock(lockCtx, billLockKey(b.BillID))
	cancel()
	if err != nil {
		return ApplyResult{BillID: b.BillID}, fmt.Errorf("%w: %w", ErrBillBusy, err)
	}
	defer unlock()

	var res ApplyResult
	if l.tx != nil {
		res, err = l.applyInTx(ctx, bonusID)
	} else {
		res, err = l.applyCompensating(ctx, bonusID)
	}
	if err != nil {
		if res.BillID == "" {
			res.BillID = b.BillID
		}
		return res, err
	}

	l.logger(ctx).Info("bonus applied",
		"bonus_id", res.BonusID,
		"bill_id", res.BillID,
		"old_amount", billing.FormatAmount(res.OldAmount),
		"new_amount", billing.FormatAmount(res.NewAmount),
	)
	b.Applied = true
	l.record(ctx, audit.EventTypeBonusApplied, b, res.Message, map[string]string{
		"old_amount": res.OldAmount.String(),
		"new_amount": res.NewAmount.String(),
		"bonus":      b.Amount.String(),
	})
	return res, nil
}

// applyInTx runs guards and both writes in one transaction with the bill and
// bonus rows locked. Any failure rolls both writes back.
func (l *Ledger) applyInTx(ctx context.Context, bonusID string) (ApplyResult, error) {
	var res ApplyResult
	err := l.withTimeout(ctx, func(ctx context.Context) error {
		return l.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
			b, err := tx.LockBonus(ctx, bonusID)
			if err != nil {
				return err
			}
			if b.Applied {
				return ErrAlreadyApplied
			}
			bill, err := tx.LockBill(ctx, b.BillID)
			if err != nil {
				if errors.Is(err, billing.ErrNotFound) {
					return ErrBillNotFound
				}
				return err
			}
			next, err := reduce(bill.Amount, b.Amount)
			if err != nil {
				return err
			}
			if err := tx.UpdateBillAmount(ctx, bill.ID, bill.Amount, next); err != nil {
				return err
			}
			if err := tx.MarkApplied(ctx, b.ID, l.clock().UTC()); err != nil {
				return err
			}
			res = applied(b, bill.Amount, next)
			return nil
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyApplied),
			errors.Is(err, ErrBillNotFound),
			errors.Is(err, ErrBonusNotFound),
			errors.Is(err, ErrAmountExceedsBill):
			return ApplyResult{}, err
		case errors.Is(err, billing.ErrAmountConflict):
			return ApplyResult{}, fmt.Errorf("%w: %w", ErrBillChanged, err)
		default:
			return ApplyResult{}, storageErr("apply bonus", err)
		}
	}
	return res, nil
}

// applyCompensating performs the two writes separately and restores the bill
// amount when the bonus flag cannot be written.
func (l *Ledger) applyCompensating(ctx context.Context, bonusID string) (ApplyResult, error) {
	// Re-read under the bill lock.
	b, err := l.loadBonus(ctx, bonusID)
	if err != nil {
		return ApplyResult{}, err
	}
	if b.Applied {
		return ApplyResult{}, ErrAlreadyApplied
	}
	bill, err := l.loadBill(ctx, b.BillID)
	if err != nil {
		return ApplyResult{}, err
	}
	original := bill.Amount
	next, err := reduce(original, b.Amount)
	if err != nil {
		return ApplyResult{}, err
	}

	err = l.withTimeout(ctx, func(ctx context.Context) error {
		return l.bills.UpdateAmount(ctx, bill.ID, original, next)
	})
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrAmountConflict):
		return ApplyResult{}, fmt.Errorf("%w: %w", ErrBillChanged, err)
	case errors.Is(err, billing.ErrNotFound):
		return ApplyResult{}, ErrBillNotFound
	default:
		// The update may have landed before the failure was observed.
		return ApplyResult{}, l.compensate(ctx, b, original, next, storageErr("update bill amount", err), true)
	}

	err = l.withTimeout(ctx, func(ctx context.Context) error {
		return l.bonuses.MarkApplied(ctx, b.ID, l.clock().UTC())
	})
	if err == nil {
		return applied(b, original, next), nil
	}
	if errors.Is(err, ErrAlreadyApplied) {
		// Applied elsewhere without our lock; undo our deduction only.
		return ApplyResult{}, l.compensate(ctx, b, original, next, err, false)
	}
	if l.flagLanded(ctx, b.ID) {
		return applied(b, original, next), nil
	}
	return ApplyResult{}, l.compensate(ctx, b, original, next, storageErr("mark bonus applied", err), false)
}

// flagLanded re-reads the bonus after a failed flag write, since a timed-out
// write may still have committed.
func (l *Ledger) flagLanded(ctx context.Context, bonusID string) bool {
	fresh, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.storeTimeout)
	defer cancel()
	b, err := l.bonuses.Get(fresh, bonusID)
	return err == nil && b.Applied
}

// compensate restores the bill amount to original and returns cause, or
// ErrReconciliationRequired when the restore fails. uncertain marks a restore
// after an amount update whose outcome is unknown; if the bill still holds
// original there is nothing to undo.
func (l *Ledger) compensate(ctx context.Context, b Bonus, original, next decimal.Decimal, cause error, uncertain bool) error {
	log := l.logger(ctx)

	// The request context may be what failed; restore on a fresh one.
	fresh, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.storeTimeout)
	defer cancel()
	err := l.bills.UpdateAmount(fresh, b.BillID, next, original)
	if err == nil {
		l.metrics.Compensation("restored")
		log.Warn("bonus compensation executed",
			"bonus_id", b.ID,
			"bill_id", b.BillID,
			"restored_amount", billing.FormatAmount(original),
			"cause", cause,
		)
		l.record(fresh, audit.EventTypeBonusCompensated, b, "bill amount restored after failed bonus application", map[string]string{
			"restored_amount": original.String(),
			"cause":           cause.Error(),
		})
		return cause
	}
	if uncertain {
		if current, gerr := l.bills.Get(fresh, b.BillID); gerr == nil && current.Amount.Equal(original) {
			return cause
		}
	}

	l.metrics.Compensation("failed")
	current := "unknown"
	if bill, gerr := l.bills.Get(fresh, b.BillID); gerr == nil {
		current = bill.Amount.String()
	}
	log.Error("bonus compensation failed",
		"bonus_id", b.ID,
		"bill_id", b.BillID,
		"original_amount", original.String(),
		"deducted_amount", next.String(),
		"current_amount", current,
		"cause", cause,
		"err", err,
	)
	if aerr := l.appendAudit(fresh, audit.EventTypeReconciliationRequired, b, "bill amount could not be restored after failed bonus application", map[string]string{
		"original_amount": original.String(),
		"deducted_amount": next.String(),
		"current_amount":  current,
		"cause":           cause.Error(),
		"restore_error":   err.Error(),
	}); aerr != nil {
		log.Error("reconciliation audit append failed", "bonus_id", b.ID, "bill_id", b.BillID, "err", aerr)
	}
	return fmt.Errorf("%w: bill %s bonus %s: original amount %s: %w: %w",
		ErrReconciliationRequired, b.BillID, b.ID, original.String(), cause, err)
}

// reduce checks the bound and returns the rounded new amount.
func reduce(billAmount, bonusAmount decimal.Decimal) (decimal.Decimal, error) {
	if bonusAmount.GreaterThan(billAmount) {
		return decimal.Decimal{}, fmt.Errorf("bonus %s, bill %s: %w",
			billing.FormatAmount(bonusAmount), billing.FormatAmount(billAmount), ErrAmountExceedsBill)
	}
	return billing.Round2(billAmount.Sub(bonusAmount)), nil
}

func applied(b Bonus, old, next decimal.Decimal) ApplyResult {
	return ApplyResult{
		Success: true,
		Message: fmt.Sprintf("bonus of %s applied to bill %s: amount %s -> %s",
			billing.FormatAmount(b.Amount), b.BillID, billing.FormatAmount(old), billing.FormatAmount(next)),
		BonusID:   b.ID,
		BillID:    b.BillID,
		OldAmount: old,
		NewAmount: next,
	}
}

func (l *Ledger) loadBonus(ctx context.Context, id string) (Bonus, error) {
	var b Bonus
	err := l.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		b, err = l.bonuses.Get(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrBonusNotFound) {
			return Bonus{}, err
		}
		return Bonus{}, storageErr("get bonus", err)
	}
	return b, nil
}

func (l *Ledger) loadBill(ctx context.Context, id string) (billing.Bill, error) {
	var bill billing.Bill
	err := l.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		bill, err = l.bills.Get(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return billing.Bill{}, ErrBillNotFound
		}
		return billing.Bill{}, storageErr("get bill", err)
	}
	return bill, nil
}

func (l *Ledger) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	return fn(ctx)
}

func (l *Ledger) logger(ctx context.Context) *slog.Logger {
	return logger.FromOr(ctx, l.log)
}

// record appends a best-effort audit event.
func (l *Ledger) record(ctx context.Context, typ audit.EventType, b Bonus, msg string, meta map[string]string) {
	if err := l.appendAudit(ctx, typ, b, msg, meta); err != nil {
		l.logger(ctx).Error("audit append failed", "type", string(typ), "bonus_id", b.ID, "err", err)
	}
}

func (l *Ledger) appendAudit(ctx context.Context, typ audit.EventType, b Bonus, msg string, meta map[string]string) error {
	if l.audit == nil {
		return nil
	}
	return l.audit.Record(ctx, typ, b.SubscriberID, b.BillID, b.ID, msg, meta)
}

func applyLabel(err error) string {
	switch {
	case errors.Is(err, ErrReconciliationRequired):
		return "reconciliation_required"
	case errors.Is(err, ErrAlreadyApplied):
		return "already_applied"
	case errors.Is(err, ErrAmountExceedsBill):
		return "exceeds_bill"
	case errors.Is(err, ErrBillNotFound), errors.Is(err, ErrBonusNotFound):
		return "not_found"
	case errors.Is(err, ErrBillChanged):
		return "conflict"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid"
	default:
		return "error"
	}
}
