package calls

import (
	"context"
	"fmt"
	"time"

	"github.com/tulen-chik/beltelekom-sub000/internal/faults"
)

var ErrInvalidArgument = fmt.Errorf("calls: invalid argument: %w", faults.ErrValidation)

// Repository reads call records owned by the CDR ingestion system.
type Repository interface {
	// ListBySubscriber returns the subscriber's calls with from <= call_date <= to,
	// ordered by call_date, start_time, id.
	ListBySubscriber(ctx context.Context, subscriberID string, from, to time.Time) ([]CallRecord, error)
}
