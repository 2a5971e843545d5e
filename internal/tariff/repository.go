package tariff

import (
	"context"
	"database/sql"
	"time"

	"github.com/tulen-chik/beltelekom-sub000/internal/calls"
)

// Schema creates the tariffs table.
const Schema = `
CREATE TABLE IF NOT EXISTS tariffs (
  zone_code        TEXT NOT NULL,
  name             TEXT NOT NULL,
  start_date       DATE NOT NULL,
  end_date         DATE NOT NULL,
  day_rate_start   NUMERIC,
  night_rate_start NUMERIC,
  day_rate_end     NUMERIC,
  night_rate_end   NUMERIC,
  PRIMARY KEY (zone_code, start_date, end_date),
  CHECK (start_date <= end_date)
);
`

// PostgresRepo reads the tariffs table.
//
// NOTE: assumes PRIMARY KEY (zone_code, start_date, end_date).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) ListByZone(ctx context.Context, zoneCode string, on time.Time) ([]Tariff, error) {
	const q = `
SELECT zone_code, name, start_date, end_date,
       day_rate_start, night_rate_start, day_rate_end, night_rate_end
FROM tariffs
WHERE zone_code = $1
  AND ($2::date IS NULL OR (start_date <= $2::date AND end_date >= $2::date))
ORDER BY start_date DESC, end_date ASC, name ASC
`
	var onArg any
	if !on.IsZero() {
		onArg = calls.DateOf(on)
	}
	rows, err := r.db.QueryContext(ctx, q, zoneCode, onArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Tariff, 0)
	for rows.Next() {
		var t Tariff
		if err := rows.Scan(
			&t.ZoneCode,
			&t.Name,
			&t.StartDate,
			&t.EndDate,
			&t.DayRateStart,
			&t.NightRateStart,
			&t.DayRateEnd,
			&t.NightRateEnd,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
