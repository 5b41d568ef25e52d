// Package annotate implements the Annotator: it stamps every ohlc_1m minute
// with the ten exchange trading-session flags and the three US/UK holiday
// flags, computed from the Calendar Service and written back in one
// batched update keyed on minute.
package annotate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/terrylica/exness-data-preprocess-sub000/internal/calendar"
	domainerrors "github.com/terrylica/exness-data-preprocess-sub000/internal/errors"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/store"
)

// Mode selects whether to annotate every ohlc_1m row or only a bounded
// range, mirroring the regeneration modes the OHLC Generator offers.
type Mode int

const (
	// Range annotates only the minutes in [Start, End].
	Range Mode = iota
	// Full annotates every row currently in ohlc_1m.
	Full
)

// Request parameterizes one annotation pass. Start and End are inclusive
// month bounds; ignored when Mode is Full.
type Request struct {
	Mode  Mode
	Start store.YearMonth
	End   store.YearMonth
}

// Annotate computes and writes back session and holiday flags for the
// minutes req selects. Trading-minute sets are materialized once per
// exchange over the whole window (§4.4 step 1), not recomputed per row, and
// holiday lookups are cached per calendar date since they are date-level
// facts broadcast across every minute of that UTC date.
func Annotate(ctx context.Context, s *store.Store, svc *calendar.Service, req Request) error {
	start, end, err := bounds(ctx, s, req)
	if err != nil {
		return err
	}
	if start.IsZero() && end.IsZero() {
		return nil // nothing to annotate
	}

	minutes, err := minutesInRange(ctx, s, start, end)
	if err != nil {
		return err
	}
	if len(minutes) == 0 {
		return nil
	}

	exchangeSets := make(map[calendar.Exchange]map[time.Time]struct{}, len(calendar.Exchanges))
	for _, ex := range calendar.Exchanges {
		tradingMinutes, err := svc.TradingMinutes(ctx, ex, start, end)
		if err != nil {
			return domainerrors.New(domainerrors.CalendarUnavailable, s.Pair(),
				fmt.Errorf("trading minutes for %s: %w", ex, err))
		}
		set := make(map[time.Time]struct{}, len(tradingMinutes))
		for _, m := range tradingMinutes {
			set[m] = struct{}{}
		}
		exchangeSets[ex] = set
	}

	holidayCache := make(map[time.Time][2]bool) // date -> [isUSHoliday, isUKHoliday]

	cols := make([]store.ColumnDef, 0, len(store.ExchangeColumns)+3)
	cols = append(cols,
		store.ColumnDef{Name: "is_us_holiday", Type: "BOOLEAN"},
		store.ColumnDef{Name: "is_uk_holiday", Type: "BOOLEAN"},
		store.ColumnDef{Name: "is_major_holiday", Type: "BOOLEAN"},
	)
	for _, col := range store.ExchangeColumns {
		cols = append(cols, store.ColumnDef{Name: col, Type: "BOOLEAN"})
	}

	rows := make([]store.BatchRow, 0, len(minutes))
	for _, m := range minutes {
		date := m.Truncate(24 * time.Hour)
		flags, ok := holidayCache[date]
		if !ok {
			isUS, err := svc.IsHoliday("XNYS", date)
			if err != nil {
				return domainerrors.New(domainerrors.CalendarUnavailable, s.Pair(), err)
			}
			isUK, err := svc.IsHoliday("XLON", date)
			if err != nil {
				return domainerrors.New(domainerrors.CalendarUnavailable, s.Pair(), err)
			}
			flags = [2]bool{isUS, isUK}
			holidayCache[date] = flags
		}
		isUS, isUK := flags[0], flags[1]

		values := make([]any, 0, len(cols))
		values = append(values, isUS, isUK, isUS || isUK)
		for _, ex := range calendar.Exchanges {
			_, trading := exchangeSets[ex][m]
			values = append(values, trading)
		}
		rows = append(rows, store.BatchRow{Timestamp: m, Values: values})
	}

	if err := s.BatchUpdate(ctx, "ohlc_1m", cols, rows); err != nil {
		return domainerrors.New(domainerrors.StorageFailed, s.Pair(), fmt.Errorf("annotate ohlc_1m: %w", err))
	}
	return nil
}

func bounds(ctx context.Context, s *store.Store, req Request) (start, end time.Time, err error) {
	if req.Mode == Range {
		return req.Start.Start(), req.End.Next().Start(), nil
	}

	row := s.Conn().QueryRowContext(ctx, `SELECT MIN("Timestamp"), MAX("Timestamp") FROM ohlc_1m`)
	var minT, maxT sql.NullTime
	if err := row.Scan(&minT, &maxT); err != nil {
		return time.Time{}, time.Time{}, domainerrors.New(domainerrors.StorageFailed, s.Pair(),
			fmt.Errorf("ohlc_1m bounds: %w", err))
	}
	if !minT.Valid {
		return time.Time{}, time.Time{}, nil
	}
	return minT.Time, maxT.Time.Add(time.Minute), nil
}

func minutesInRange(ctx context.Context, s *store.Store, start, end time.Time) ([]time.Time, error) {
	rows, err := s.Conn().QueryContext(ctx,
		`SELECT "Timestamp" FROM ohlc_1m WHERE "Timestamp" >= ? AND "Timestamp" < ? ORDER BY "Timestamp"`,
		start, end)
	if err != nil {
		return nil, domainerrors.New(domainerrors.StorageFailed, s.Pair(), fmt.Errorf("list ohlc minutes: %w", err))
	}
	defer rows.Close()

	var minutes []time.Time
	for rows.Next() {
		var m time.Time
		if err := rows.Scan(&m); err != nil {
			return nil, domainerrors.New(domainerrors.StorageFailed, s.Pair(), fmt.Errorf("scan ohlc minute: %w", err))
		}
		minutes = append(minutes, m)
	}
	return minutes, rows.Err()
}
