package ohlc

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terrylica/exness-data-preprocess-sub000/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.DataDir = t.TempDir()
	s, err := store.Open(cfg, "EURUSD")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertRawTick(t *testing.T, s *store.Store, ts time.Time, bid, ask float64) {
	t.Helper()
	_, err := s.Conn().ExecContext(context.Background(),
		`INSERT INTO raw_spread_ticks ("Timestamp", "Bid", "Ask") VALUES (?, ?, ?)`, ts, bid, ask)
	require.NoError(t, err)
}

func insertStdTick(t *testing.T, s *store.Store, ts time.Time, bid, ask float64) {
	t.Helper()
	_, err := s.Conn().ExecContext(context.Background(),
		`INSERT INTO standard_ticks ("Timestamp", "Bid", "Ask") VALUES (?, ?, ?)`, ts, bid, ask)
	require.NoError(t, err)
}

func TestGenerateFullComputesOHLCAndNullGuardsMissingVariant(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	minute := time.Date(2024, 8, 1, 13, 30, 0, 0, time.UTC)
	insertRawTick(t, s, minute, 1.1000, 1.1002)
	insertRawTick(t, s, minute.Add(20*time.Second), 1.1010, 1.1012)
	insertRawTick(t, s, minute.Add(40*time.Second), 1.0995, 1.0997)
	insertRawTick(t, s, minute.Add(59*time.Second), 1.1005, 1.1007)
	// No standard_ticks rows for this minute at all.

	err := Generate(ctx, s, Request{Mode: Full})
	require.NoError(t, err)

	var open, high, low, close float64
	var rawSpreadAvg float64
	var stdSpreadAvg sql.NullFloat64
	var tickCountRaw int
	var tickCountStd sql.NullInt64
	var rangePerSpread, bodyPerSpread sql.NullFloat64
	row := s.Conn().QueryRowContext(ctx, `
		SELECT "Open", "High", "Low", "Close", raw_spread_avg, standard_spread_avg,
		       tick_count_raw_spread, tick_count_standard, range_per_spread, body_per_spread
		FROM ohlc_1m WHERE "Timestamp" = ?`, minute)
	require.NoError(t, row.Scan(&open, &high, &low, &close, &rawSpreadAvg, &stdSpreadAvg,
		&tickCountRaw, &tickCountStd, &rangePerSpread, &bodyPerSpread))

	require.Equal(t, 1.1000, open)
	require.Equal(t, 1.1005, close)
	require.Equal(t, 1.1010, high)
	require.Equal(t, 1.0995, low)
	require.Equal(t, 4, tickCountRaw)
	require.False(t, stdSpreadAvg.Valid, "standard_spread_avg must be NULL, never zero, when B contributed no ticks")
	require.False(t, tickCountStd.Valid, "tick_count_standard must be NULL, never zero, when B contributed no ticks")
	require.False(t, rangePerSpread.Valid, "ratio columns must be NULL when the divisor is NULL")
	require.False(t, bodyPerSpread.Valid)
	require.GreaterOrEqual(t, high, open)
	require.GreaterOrEqual(t, high, close)
	require.LessOrEqual(t, low, open)
	require.LessOrEqual(t, low, close)
}

func TestGenerateComputesRatiosWhenBothVariantsPresent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	minute := time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC)
	insertRawTick(t, s, minute, 1.2000, 1.2002)
	insertRawTick(t, s, minute.Add(30*time.Second), 1.2010, 1.2012)
	insertStdTick(t, s, minute, 1.2000, 1.2003)
	insertStdTick(t, s, minute.Add(45*time.Second), 1.2008, 1.2011)

	require.NoError(t, Generate(ctx, s, Request{Mode: Full}))

	var stdSpreadAvg, rangePerSpread float64
	var tickCountStd int
	row := s.Conn().QueryRowContext(ctx, `
		SELECT standard_spread_avg, tick_count_standard, range_per_spread
		FROM ohlc_1m WHERE "Timestamp" = ?`, minute)
	require.NoError(t, row.Scan(&stdSpreadAvg, &tickCountStd, &rangePerSpread))

	require.Equal(t, 2, tickCountStd)
	require.Greater(t, stdSpreadAvg, 0.0)
	require.Greater(t, rangePerSpread, 0.0)
}

func TestGenerateRangeRegenerationMatchesFullForSameWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	augMinute := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)
	sepMinute := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	insertRawTick(t, s, augMinute, 1.1, 1.1002)
	insertRawTick(t, s, sepMinute, 1.2, 1.2002)

	require.NoError(t, Generate(ctx, s, Request{Mode: Full}))

	augustRow := func() []any {
		var open, high, low, close, rawSpreadAvg float64
		var tickCountRaw, nyHour int
		var nySession string
		require.NoError(t, s.Conn().QueryRowContext(ctx, `
			SELECT "Open", "High", "Low", "Close", raw_spread_avg, tick_count_raw_spread, ny_hour, ny_session
			FROM ohlc_1m WHERE "Timestamp" = ?`, augMinute).
			Scan(&open, &high, &low, &close, &rawSpreadAvg, &tickCountRaw, &nyHour, &nySession))
		return []any{open, high, low, close, rawSpreadAvg, tickCountRaw, nyHour, nySession}
	}

	var fullCount int
	require.NoError(t, s.Conn().QueryRowContext(ctx, `SELECT count(*) FROM ohlc_1m`).Scan(&fullCount))
	require.Equal(t, 2, fullCount)
	fullAugust := augustRow()

	// Regenerate only August; September's row must survive untouched.
	err := Generate(ctx, s, Request{
		Mode:  Range,
		Start: store.YearMonth{Year: 2024, Month: 8},
		End:   store.YearMonth{Year: 2024, Month: 8},
	})
	require.NoError(t, err)

	var rangeCount int
	require.NoError(t, s.Conn().QueryRowContext(ctx, `SELECT count(*) FROM ohlc_1m`).Scan(&rangeCount))
	require.Equal(t, 2, rangeCount)
	require.Equal(t, fullAugust, augustRow(), "range regeneration must reproduce the full regeneration's August row")

	var septemberStillPresent int
	require.NoError(t, s.Conn().QueryRowContext(ctx,
		`SELECT count(*) FROM ohlc_1m WHERE "Timestamp" = ?`, sepMinute).Scan(&septemberStillPresent))
	require.Equal(t, 1, septemberStillPresent)
}

func TestGenerateLabelsHourAndSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// 13:30 UTC in August is 09:30 America/New_York (EDT, UTC-4); hour 9
	// falls in the [8,13) "London" window of the fixed session mapping.
	minute := time.Date(2024, 8, 1, 13, 30, 0, 0, time.UTC)
	insertRawTick(t, s, minute, 1.1, 1.1002)

	require.NoError(t, Generate(ctx, s, Request{Mode: Full}))

	var nyHour int
	var nySession string
	row := s.Conn().QueryRowContext(ctx,
		`SELECT ny_hour, ny_session FROM ohlc_1m WHERE "Timestamp" = ?`, minute)
	require.NoError(t, row.Scan(&nyHour, &nySession))
	require.Equal(t, 9, nyHour)
	require.Equal(t, "London", nySession)
}

func TestGenerateRestartAfterNoRowsIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, Generate(ctx, s, Request{Mode: Full}))
	require.NoError(t, Generate(ctx, s, Request{Mode: Full}))

	var count int
	require.NoError(t, s.Conn().QueryRowContext(ctx, `SELECT count(*) FROM ohlc_1m`).Scan(&count))
	require.Zero(t, count)
}
