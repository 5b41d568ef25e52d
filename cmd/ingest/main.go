// Command ingest runs the tick-archive ingestion pipeline for every
// configured currency pair: gap detection, fetch/extract/load of missing
// months, OHLC regeneration, and annotation, then exits.
//
// Configuration is loaded via internal/config (defaults, optional
// config.yaml, then INGEST_-prefixed environment variables). Each pair's
// run is supervised as a restartable suture.Service so a transient fetch
// or storage failure is retried with backoff before the run is abandoned;
// a permanent failure (malformed archive, incompatible schema) is not
// retried. The process exits 0 only if every configured pair completed
// successfully, including the no-new-months case.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/terrylica/exness-data-preprocess-sub000/internal/archive"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/calendar"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/config"
	domainerrors "github.com/terrylica/exness-data-preprocess-sub000/internal/errors"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/extract"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/httpserver"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/loader"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/logging"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/orchestrator"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: cfg.Logging.Timestamp,
	})
	logging.Info().Strs("pairs", cfg.Pairs).Msg("starting ingestion run")

	calendarService, err := calendar.New()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize calendar service")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	root := suture.New("exness-ingest", suture.Spec{
		EventHook:        (&sutureslog.Handler{Logger: logging.NewSlogLogger()}).MustHook(),
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})

	if cfg.Observability.Enabled {
		root.Add(httpserver.New(cfg.Observability.Addr, func() error { return nil }))
	}

	var (
		mu      sync.Mutex
		results []orchestrator.Result
		worst   domainerrors.Kind = -1
		pending sync.WaitGroup
	)

	current := store.YearMonth{Year: time.Now().Year(), Month: int(time.Now().Month())}
	start := store.YearMonth{Year: cfg.StartYear, Month: cfg.StartMonth}

	for _, pair := range cfg.Pairs {
		storeCfg := store.Config{
			DataDir:                cfg.Storage.DataDir,
			Threads:                cfg.Storage.Threads,
			MaxMemory:              cfg.Storage.MaxMemory,
			PreserveInsertionOrder: cfg.Storage.PreserveInsertionOrder,
		}
		s, err := store.Open(storeCfg, pair)
		if err != nil {
			logging.Error().Err(err).Str("pair", pair).Msg("failed to open store")
			mu.Lock()
			worst = worstKind(worst, domainerrors.KindOf(err))
			mu.Unlock()
			continue
		}
		defer func() { _ = s.Close() }()

		l := &loader.Loader{
			Store:                  s,
			Fetcher:                archive.NewHTTPFetcher(cfg.Archive.BaseURL, cfg.Archive.TempDir),
			Extractor:              extract.ZipCSVExtractor{},
			DeleteArchiveAfterLoad: cfg.DeleteArchiveAfterLoad,
		}
		o := &orchestrator.Orchestrator{
			Store:               s,
			Calendar:            calendarService,
			Loader:              l,
			MaxMonthParallelism: cfg.MaxMonthParallelism,
			ForceRedownload:     cfg.ForceRedownload,
		}

		pending.Add(1)
		svc := &orchestrator.Service{
			Orchestrator: o,
			Pair:         pair,
			StartMonth:   start,
			CurrentMonth: current,
			OnResult: func(r orchestrator.Result) {
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
				pending.Done()
			},
			OnError: func(err error) {
				mu.Lock()
				worst = worstKind(worst, domainerrors.KindOf(err))
				mu.Unlock()
				pending.Done()
			},
		}
		root.Add(svc)
	}

	errCh := root.ServeBackground(ctx)

	done := make(chan struct{})
	go func() { pending.Wait(); close(done) }()

	select {
	case <-done:
		cancel()
	case <-ctx.Done():
		// Timeout or signal before every pair reported back: at least one
		// pair did not complete, so the run must not exit 0.
		mu.Lock()
		worst = worstKind(worst, domainerrors.Cancelled)
		mu.Unlock()
	}

	for range errCh {
		// drain until the supervisor finishes shutting down
	}

	for _, r := range results {
		logging.Info().Str("pair", r.Pair).Str("run_id", r.RunID).
			Int("months_added", r.MonthsAdded).
			Int("months_skipped", r.MonthsSkipped).
			Str("ohlc_regenerated", r.OHLCRegenerated).
			Msg("pair ingestion complete")
	}

	if worst == -1 {
		logging.Info().Msg("ingestion run finished successfully")
		return 0
	}
	logging.Error().Str("worst_kind", worst.String()).Msg("ingestion run finished with failures")
	return exitCodeFor(worst)
}

// exitCodeFor maps a taxonomy Kind to a process exit code, per the
// documented propagation policy: 0 only on success.
func exitCodeFor(kind domainerrors.Kind) int {
	switch kind {
	case domainerrors.FetchFailed:
		return 2
	case domainerrors.ParseFailed:
		return 3
	case domainerrors.SchemaMismatch:
		return 4
	case domainerrors.StorageFailed:
		return 5
	case domainerrors.CalendarUnavailable:
		return 6
	case domainerrors.Cancelled:
		return 130
	default:
		return 1
	}
}

// worstKind keeps the first-observed failure kind across pairs; later
// failures don't override it, since the exit code only needs to report that
// something failed, not rank failure kinds against each other.
func worstKind(current, candidate domainerrors.Kind) domainerrors.Kind {
	if current == -1 {
		return candidate
	}
	return current
}
