// Package gapdetector implements the incremental Gap Detector: given a
// per-instrument database and a start month, it computes the ordered set of
// calendar months that must be (re)fetched, in a single SQL pass against
// storage rather than iterating month-by-month in application code.
package gapdetector

import (
	"context"
	"fmt"

	domainerrors "github.com/terrylica/exness-data-preprocess-sub000/internal/errors"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/store"
)

// Detect returns the ordered, ascending sequence of months in
// [startMonth, currentMonth] missing from table "raw_spread_ticks". Because
// MissingMonths computes the full expected-vs-observed set difference over
// the whole requested range in one query, internal gaps and the
// append-at-head months after the latest observation both fall out of the
// same result with no special-casing — this is the historical-bug fix
// §4.1 calls out: a trailing-only check would have missed the former.
//
// When force is set, the "present" set is bypassed entirely and every month
// in the range is returned for (re)fetch; the loader's insert-or-ignore
// semantics still prevent duplicate ticks from a month that was already
// present.
func Detect(ctx context.Context, s *store.Store, startMonth, currentMonth store.YearMonth, force bool) ([]store.YearMonth, error) {
	if currentMonth.Before(startMonth) {
		return nil, nil
	}

	if force {
		return allMonths(startMonth, currentMonth), nil
	}

	missing, err := s.MissingMonths(ctx, "raw_spread_ticks", startMonth, currentMonth)
	if err != nil {
		return nil, domainerrors.New(domainerrors.StorageFailed, s.Pair(),
			fmt.Errorf("compute missing months: %w", err))
	}
	return missing, nil
}

// allMonths enumerates every calendar month in [start, end] inclusive.
func allMonths(start, end store.YearMonth) []store.YearMonth {
	var months []store.YearMonth
	for m := start; !end.Before(m); m = m.Next() {
		months = append(months, m)
	}
	return months
}
