package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/terrylica/exness-data-preprocess-sub000/internal/metrics"
)

// Tick is one (timestamp, bid, ask) observation for either tick-table
// variant.
type Tick struct {
	Timestamp time.Time
	Bid       float64
	Ask       float64
}

// AppendResult reports how many rows were attempted versus actually
// inserted by a bulk append; the difference is duplicate timestamps that
// were silently discarded by the insert-or-ignore contract.
type AppendResult struct {
	Attempted int
	Inserted  int
}

// BulkAppend inserts ticks into table ("raw_spread_ticks" or
// "standard_ticks") with PK-preserving insert-or-ignore semantics: a
// timestamp already present in the table is silently discarded, never
// treated as an error.
func (s *Store) BulkAppend(ctx context.Context, table string, ticks []Tick) (AppendResult, error) {
	result := AppendResult{Attempted: len(ticks)}
	if len(ticks) == 0 {
		return result, nil
	}

	timer := prometheus.NewTimer(metrics.DBQueryDuration.WithLabelValues(s.pair, "bulk_append"))
	defer timer.ObserveDuration()

	err := s.Tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			`INSERT INTO %s ("Timestamp", "Bid", "Ask") VALUES (?, ?, ?) ON CONFLICT ("Timestamp") DO NOTHING`, table))
		if err != nil {
			return fmt.Errorf("prepare bulk append: %w", err)
		}
		defer stmt.Close()

		for _, t := range ticks {
			res, err := stmt.ExecContext(ctx, t.Timestamp, t.Bid, t.Ask)
			if err != nil {
				return fmt.Errorf("insert tick at %s: %w", t.Timestamp, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			result.Inserted += int(affected)
		}
		return nil
	})
	if err != nil {
		return AppendResult{}, err
	}
	return result, nil
}

// MonthBounds reports the earliest and latest timestamps present in table,
// or ok=false if the table is empty.
func (s *Store) MonthBounds(ctx context.Context, table string) (earliest, latest time.Time, ok bool, err error) {
	row := s.conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT MIN("Timestamp"), MAX("Timestamp") FROM %s`, table))
	var minT, maxT sql.NullTime
	if err := row.Scan(&minT, &maxT); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("month bounds of %s: %w", table, err)
	}
	if !minT.Valid || !maxT.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return minT.Time, maxT.Time, true, nil
}

// PresentMonths returns the distinct (year, month) pairs for which table
// has at least one row, computed in a single SQL pass.
func (s *Store) PresentMonths(ctx context.Context, table string) ([]YearMonth, error) {
	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf(
		`SELECT DISTINCT date_trunc('month', "Timestamp") AS m FROM %s ORDER BY m`, table))
	if err != nil {
		return nil, fmt.Errorf("present months of %s: %w", table, err)
	}
	defer rows.Close()

	var months []YearMonth
	for rows.Next() {
		var m time.Time
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan month: %w", err)
		}
		months = append(months, YearMonth{Year: m.Year(), Month: int(m.Month())})
	}
	return months, rows.Err()
}

// MissingMonths computes, in one SQL statement, every month in
// [start, end] inclusive that has no row in table, via generate_series
// against the month boundaries and a LEFT JOIN anti-join against the
// distinct observed months. This is the engine-side computation §4.1
// requires instead of a Go-side month-by-month loop.
func (s *Store) MissingMonths(ctx context.Context, table string, start, end YearMonth) ([]YearMonth, error) {
	if end.Before(start) {
		return nil, nil
	}
	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf(`
		WITH expected AS (
			SELECT unnest(generate_series(?::TIMESTAMP, ?::TIMESTAMP, INTERVAL 1 MONTH)) AS m
		),
		observed AS (
			SELECT DISTINCT date_trunc('month', "Timestamp") AS m FROM %s
		)
		SELECT expected.m
		FROM expected
		LEFT JOIN observed USING (m)
		WHERE observed.m IS NULL
		ORDER BY expected.m`, table),
		start.Start(), end.Start())
	if err != nil {
		return nil, fmt.Errorf("missing months of %s: %w", table, err)
	}
	defer rows.Close()

	var missing []YearMonth
	for rows.Next() {
		var m time.Time
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan missing month: %w", err)
		}
		missing = append(missing, YearMonth{Year: m.Year(), Month: int(m.Month())})
	}
	return missing, rows.Err()
}

// YearMonth identifies a calendar month, UTC.
type YearMonth struct {
	Year  int
	Month int
}

// Before reports whether ym is strictly before other.
func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

// Next returns the calendar month following ym.
func (ym YearMonth) Next() YearMonth {
	if ym.Month == 12 {
		return YearMonth{Year: ym.Year + 1, Month: 1}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}

// Start returns the UTC instant at the first microsecond of ym.
func (ym YearMonth) Start() time.Time {
	return time.Date(ym.Year, time.Month(ym.Month), 1, 0, 0, 0, 0, time.UTC)
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}
