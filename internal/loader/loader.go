// Package loader implements the Tick Loader: for each missing month and
// variant it fetches the archive, extracts ticks, and bulk-appends them
// with at-most-once semantics per timestamp.
package loader

import (
	"context"
	"fmt"

	"github.com/terrylica/exness-data-preprocess-sub000/internal/archive"
	domainerrors "github.com/terrylica/exness-data-preprocess-sub000/internal/errors"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/logging"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/metrics"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/store"
)

// Fetcher resolves and downloads an archive. Matches archive.Fetcher's
// signature so production code passes *archive.HTTPFetcher directly while
// tests substitute a fake.
type Fetcher interface {
	Fetch(ctx context.Context, pair string, variant archive.Variant, year, month int) (localPath string, err error)
}

// Extractor streams ticks out of a local archive file.
type Extractor interface {
	Extract(archivePath string) ([]store.Tick, error)
}

// MonthResult reports the outcome of loading one (year, month).
type MonthResult struct {
	Year, Month  int
	Skipped      bool // true if the month was NotYetAvailable for every variant attempted
	RawAttempted int
	RawInserted  int
	StdAttempted int
	StdInserted  int
}

// Loader drives the fetch→extract→bulk-append sequence for one instrument.
type Loader struct {
	Store                  *store.Store
	Fetcher                Fetcher
	Extractor              Extractor
	DeleteArchiveAfterLoad bool
}

var variantTable = map[archive.Variant]string{
	archive.RawSpread: "raw_spread_ticks",
	archive.Standard:  "standard_ticks",
}

// LoadMonth loads both variants for (year, month). A 404-equivalent
// (NotYetAvailable) on a variant skips that variant without failing the
// month; if both variants are unavailable the whole month is reported
// skipped. Any other fetch/parse/storage failure aborts the month and
// propagates the taxonomy error unchanged.
func (l *Loader) LoadMonth(ctx context.Context, pair string, year, month int) (MonthResult, error) {
	result := MonthResult{Year: year, Month: month}
	variantsAvailable := 0

	for _, variant := range []archive.Variant{archive.RawSpread, archive.Standard} {
		attempted, inserted, available, err := l.loadVariant(ctx, pair, variant, year, month)
		if err != nil {
			metrics.MonthsProcessed.WithLabelValues(pair, "failed").Inc()
			return MonthResult{}, err
		}
		if available {
			variantsAvailable++
		}
		switch variant {
		case archive.RawSpread:
			result.RawAttempted, result.RawInserted = attempted, inserted
		case archive.Standard:
			result.StdAttempted, result.StdInserted = attempted, inserted
		}
	}

	result.Skipped = variantsAvailable == 0
	outcome := "loaded"
	if result.Skipped {
		outcome = "skipped"
	}
	metrics.MonthsProcessed.WithLabelValues(pair, outcome).Inc()
	return result, nil
}

func (l *Loader) loadVariant(ctx context.Context, pair string, variant archive.Variant, year, month int) (attempted, inserted int, available bool, err error) {
	localPath, fetchErr := l.Fetcher.Fetch(ctx, pair, variant, year, month)
	if fetchErr != nil {
		if domainerrors.Is(fetchErr, domainerrors.NotYetAvailable) {
			logging.Warn().Str("pair", pair).Int("year", year).Int("month", month).
				Str("variant", variant.String()).Msg("archive not yet available, skipping")
			return 0, 0, false, nil
		}
		return 0, 0, false, fetchErr
	}

	if l.DeleteArchiveAfterLoad {
		defer func() {
			if delErr := archive.DeleteArtifact(localPath); delErr != nil {
				logging.Warn().Err(delErr).Str("path", localPath).Msg("failed to delete archive artifact")
			}
		}()
	}

	ticks, extractErr := l.Extractor.Extract(localPath)
	if extractErr != nil {
		return 0, 0, true, extractErr
	}

	table := variantTable[variant]
	res, appendErr := l.Store.BulkAppend(ctx, table, ticks)
	if appendErr != nil {
		return 0, 0, true, domainerrors.ForMonth(domainerrors.StorageFailed, pair, year, month, variant.DomainVariant(),
			fmt.Errorf("bulk append to %s: %w", table, appendErr))
	}
	metrics.TicksInserted.WithLabelValues(pair, variant.String()).Add(float64(res.Inserted))

	logging.Info().Str("pair", pair).Int("year", year).Int("month", month).
		Str("variant", variant.String()).
		Int("attempted", res.Attempted).Int("inserted", res.Inserted).Msg("month variant loaded")

	return res.Attempted, res.Inserted, true, nil
}
