package calls

import (
	"context"
	"database/sql"
	"time"
)

// Schema creates the calls table. Rows are written by CDR ingestion.
const Schema = `
CREATE TABLE IF NOT EXISTS calls (
  id            TEXT PRIMARY KEY,
  subscriber_id TEXT NOT NULL,
  zone_code     TEXT NOT NULL,
  call_date     DATE NOT NULL,
  start_time    TIME(0) NOT NULL,
  duration      INTEGER NOT NULL CHECK (duration >= 0)
);
CREATE INDEX IF NOT EXISTS calls_subscriber_date_idx ON calls (subscriber_id, call_date);
`

// PostgresRepo reads the calls table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) ListBySubscriber(ctx context.Context, subscriberID string, from, to time.Time) ([]CallRecord, error) {
	if subscriberID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT id, subscriber_id, zone_code, call_date, start_time::text, duration
FROM calls
WHERE subscriber_id = $1 AND call_date BETWEEN $2 AND $3
ORDER BY call_date, start_time, id
`
	rows, err := r.db.QueryContext(ctx, q, subscriberID, DateOf(from), DateOf(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallRecord, 0)
	for rows.Next() {
		var c CallRecord
		if err := rows.Scan(
			&c.ID,
			&c.SubscriberID,
			&c.ZoneCode,
			&c.CallDate,
			&c.StartTime,
			&c.DurationSeconds,
		); err != nil {
			return nil, err
		}
		c.CallDate = DateOf(c.CallDate)
		out = append(out, c)
	}
	return out, rows.Err()
}
