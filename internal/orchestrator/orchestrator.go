// Package orchestrator drives one full ingestion run for a single
// instrument: gap detection, bounded-parallel fetch/extract/load of every
// missing month, OHLC regeneration, annotation, and a final metadata
// update. Run is idempotent — invoking it again with no new months
// published is a cheap no-op.
package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/terrylica/exness-data-preprocess-sub000/internal/annotate"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/calendar"
	domainerrors "github.com/terrylica/exness-data-preprocess-sub000/internal/errors"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/gapdetector"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/loader"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/logging"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/metrics"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/ohlc"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/store"
)

// Result summarizes one Run call for logging and the CLI's exit-status
// decision.
type Result struct {
	Pair             string
	RunID            string
	MonthsAdded      int
	MonthsSkipped    int
	TicksInsertedRaw int
	TicksInsertedStd int
	OHLCRegenerated  string // "full", "range", or "" if nothing changed
}

// Orchestrator wires together the components one ingestion run needs for a
// single instrument's database.
type Orchestrator struct {
	Store    *store.Store
	Calendar *calendar.Service
	Loader   *loader.Loader

	// MaxMonthParallelism bounds how many months are fetched/extracted/
	// loaded at once. Zero or unset falls back to 1 (sequential), matching
	// the documented default.
	MaxMonthParallelism int

	// ForceRedownload bypasses the Gap Detector's present-months check and
	// (re)fetches every month in the requested range; insert-or-ignore
	// semantics in the Tick Loader still prevent duplicate ticks.
	ForceRedownload bool
}

// Run brings the instrument's database up to date through currentMonth
// (inclusive). It detects the months in [startMonth, currentMonth] that have
// no raw-spread ticks yet (every month in that range when ForceRedownload is
// set), loads them, then regenerates OHLC and annotations over the span from
// the earliest to the latest of those months — or for the whole table if
// raw_spread_ticks was empty before this run.
func (o *Orchestrator) Run(ctx context.Context, pair string, startMonth, currentMonth store.YearMonth) (Result, error) {
	timer := prometheus.NewTimer(metrics.RunDuration.WithLabelValues(pair))
	defer timer.ObserveDuration()

	runID := uuid.NewString()
	result := Result{Pair: pair, RunID: runID}

	isFirstRun, err := o.isFirstRun(ctx)
	if err != nil {
		return Result{}, err
	}

	missing, err := gapdetector.Detect(ctx, o.Store, startMonth, currentMonth, o.ForceRedownload)
	if err != nil {
		return Result{}, err
	}
	if len(missing) == 0 {
		logging.Info().Str("pair", pair).Str("run_id", runID).Msg("no missing months, run is a no-op")
		return result, nil
	}

	monthResults, err := o.loadMonths(ctx, pair, missing)
	if err != nil {
		return Result{}, err
	}

	loadedAny := false
	for _, mr := range monthResults {
		if mr.Skipped {
			result.MonthsSkipped++
			continue
		}
		result.MonthsAdded++
		result.TicksInsertedRaw += mr.RawInserted
		result.TicksInsertedStd += mr.StdInserted
		loadedAny = true
	}

	if !loadedAny {
		logging.Info().Str("pair", pair).Str("run_id", runID).Msg("no months available to load this run")
		return result, nil
	}

	rangeStart, rangeEnd := monthRange(missing)

	if isFirstRun {
		if err := ohlc.Generate(ctx, o.Store, ohlc.Request{Mode: ohlc.Full}); err != nil {
			return Result{}, err
		}
		if err := annotate.Annotate(ctx, o.Store, o.Calendar, annotate.Request{Mode: annotate.Full}); err != nil {
			return Result{}, err
		}
		result.OHLCRegenerated = "full"
	} else {
		req := ohlc.Request{Mode: ohlc.Range, Start: rangeStart, End: rangeEnd}
		if err := ohlc.Generate(ctx, o.Store, req); err != nil {
			return Result{}, err
		}
		annotateReq := annotate.Request{Mode: annotate.Range, Start: rangeStart, End: rangeEnd}
		if err := annotate.Annotate(ctx, o.Store, o.Calendar, annotateReq); err != nil {
			return Result{}, err
		}
		result.OHLCRegenerated = "range"
	}

	if err := o.updateMetadata(ctx, currentMonth); err != nil {
		return Result{}, err
	}

	logging.Info().Str("pair", pair).Str("run_id", runID).
		Int("months_added", result.MonthsAdded).
		Int("months_skipped", result.MonthsSkipped).
		Str("ohlc_regenerated", result.OHLCRegenerated).
		Msg("ingestion run complete")

	return result, nil
}

// loadMonths fetches/extracts/loads each missing month with bounded
// parallelism. The first fatal error cancels the remaining work and is
// returned; gapdetector.Detect already guarantees months is restart-safe
// to retry in full on the next run.
func (o *Orchestrator) loadMonths(ctx context.Context, pair string, months []store.YearMonth) ([]loader.MonthResult, error) {
	results := make([]loader.MonthResult, len(months))

	limit := o.MaxMonthParallelism
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, month := range months {
		i, month := i, month
		g.Go(func() error {
			mr, err := o.Loader.LoadMonth(gctx, pair, month.Year, month.Month)
			if err != nil {
				return err
			}
			results[i] = mr
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// isFirstRun reports whether raw_spread_ticks is empty, meaning no prior
// ingestion run has loaded data into this database file yet.
func (o *Orchestrator) isFirstRun(ctx context.Context) (bool, error) {
	_, _, hasRows, err := o.Store.MonthBounds(ctx, "raw_spread_ticks")
	if err != nil {
		return false, domainerrors.New(domainerrors.StorageFailed, o.Store.Pair(), err)
	}
	return !hasRows, nil
}

func (o *Orchestrator) updateMetadata(ctx context.Context, currentMonth store.YearMonth) error {
	earliest, latest, ok, err := o.Store.MonthBounds(ctx, "raw_spread_ticks")
	if err != nil {
		return domainerrors.New(domainerrors.StorageFailed, o.Store.Pair(), err)
	}
	if !ok {
		return nil
	}

	var ohlcBars int
	row := o.Store.Conn().QueryRowContext(ctx, `SELECT count(*) FROM ohlc_1m`)
	if err := row.Scan(&ohlcBars); err != nil {
		return domainerrors.New(domainerrors.StorageFailed, o.Store.Pair(), fmt.Errorf("count ohlc rows: %w", err))
	}

	entries := map[string]string{
		"earliest_date": earliest.Format(time.RFC3339),
		"latest_date":   latest.Format(time.RFC3339),
		"ohlc_bars":     strconv.Itoa(ohlcBars),
		"last_run_at":   time.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range entries {
		if err := o.Store.SetMetadata(ctx, key, value); err != nil {
			return domainerrors.New(domainerrors.StorageFailed, o.Store.Pair(), err)
		}
	}
	return nil
}

// monthRange returns the inclusive [min, max] bound of months, which is
// already sorted ascending by gapdetector.Detect.
func monthRange(months []store.YearMonth) (start, end store.YearMonth) {
	start, end = months[0], months[0]
	for _, m := range months[1:] {
		if m.Before(start) {
			start = m
		}
		if end.Before(m) {
			end = m
		}
	}
	return start, end
}
