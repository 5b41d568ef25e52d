package annotate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terrylica/exness-data-preprocess-sub000/internal/calendar"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/ohlc"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.DataDir = t.TempDir()
	s, err := store.Open(cfg, "USDJPY")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedMinute(t *testing.T, s *store.Store, ts time.Time) {
	t.Helper()
	_, err := s.Conn().ExecContext(context.Background(),
		`INSERT INTO raw_spread_ticks ("Timestamp", "Bid", "Ask") VALUES (?, ?, ?)`, ts, 150.0, 150.02)
	require.NoError(t, err)
}

func TestAnnotateTokyoLunchWindowIsNeverTrading(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	svc, err := calendar.New()
	require.NoError(t, err)

	// 2024-08-01 is a Thursday, ordinary trading day in Tokyo.
	// 11:45 JST falls inside the 11:30-12:30 lunch break.
	lunchMinuteUTC := time.Date(2024, 8, 1, 2, 45, 0, 0, time.UTC)
	seedMinute(t, s, lunchMinuteUTC)
	require.NoError(t, ohlc.Generate(ctx, s, ohlc.Request{Mode: ohlc.Full}))

	require.NoError(t, Annotate(ctx, s, svc, Request{Mode: Full}))

	var isTokyoSession bool
	require.NoError(t, s.Conn().QueryRowContext(ctx,
		`SELECT is_xtks_session FROM ohlc_1m WHERE "Timestamp" = ?`, lunchMinuteUTC).Scan(&isTokyoSession))
	require.False(t, isTokyoSession, "minute inside Tokyo's lunch break must not be flagged as a trading minute")
}

func TestAnnotateMajorHolidayIsUSOrUKHoliday(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	svc, err := calendar.New()
	require.NoError(t, err)

	// 2024-07-04 is US Independence Day, an ordinary UK business day.
	minute := time.Date(2024, 7, 4, 15, 0, 0, 0, time.UTC)
	seedMinute(t, s, minute)
	require.NoError(t, ohlc.Generate(ctx, s, ohlc.Request{Mode: ohlc.Full}))

	require.NoError(t, Annotate(ctx, s, svc, Request{Mode: Full}))

	var isUS, isUK, isMajor bool
	require.NoError(t, s.Conn().QueryRowContext(ctx,
		`SELECT is_us_holiday, is_uk_holiday, is_major_holiday FROM ohlc_1m WHERE "Timestamp" = ?`, minute).
		Scan(&isUS, &isUK, &isMajor))
	require.True(t, isUS)
	require.False(t, isUK)
	require.Equal(t, isUS || isUK, isMajor)
}

func TestAnnotateNYSESessionFlagMatchesCalendarService(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	svc, err := calendar.New()
	require.NoError(t, err)

	// 14:00 UTC on an ordinary Wednesday is 10:00 America/New_York (EDT),
	// inside NYSE's 09:30-16:00 regular session.
	minute := time.Date(2024, 8, 7, 14, 0, 0, 0, time.UTC)
	seedMinute(t, s, minute)
	require.NoError(t, ohlc.Generate(ctx, s, ohlc.Request{Mode: ohlc.Full}))

	require.NoError(t, Annotate(ctx, s, svc, Request{Mode: Full}))

	want, err := svc.IsTradingMinute(calendar.XNYS, minute)
	require.NoError(t, err)
	require.True(t, want)

	var got bool
	require.NoError(t, s.Conn().QueryRowContext(ctx,
		`SELECT is_nyse_session FROM ohlc_1m WHERE "Timestamp" = ?`, minute).Scan(&got))
	require.Equal(t, want, got)
}

func TestAnnotateRangeModeLeavesOtherMonthsUntouched(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	svc, err := calendar.New()
	require.NoError(t, err)

	augMinute := time.Date(2024, 8, 7, 14, 0, 0, 0, time.UTC)
	sepMinute := time.Date(2024, 9, 5, 14, 0, 0, 0, time.UTC)
	seedMinute(t, s, augMinute)
	seedMinute(t, s, sepMinute)
	require.NoError(t, ohlc.Generate(ctx, s, ohlc.Request{Mode: ohlc.Full}))

	require.NoError(t, Annotate(ctx, s, svc, Request{
		Mode:  Range,
		Start: store.YearMonth{Year: 2024, Month: 8},
		End:   store.YearMonth{Year: 2024, Month: 8},
	}))

	var sepNYSEFlag sql.NullBool
	row := s.Conn().QueryRowContext(ctx, `SELECT is_nyse_session FROM ohlc_1m WHERE "Timestamp" = ?`, sepMinute)
	require.NoError(t, row.Scan(&sepNYSEFlag))
	// September row was inserted by Generate with a false placeholder and
	// Annotate's range window excluded it, so it must remain false, not the
	// calendar-correct value for that minute.
	require.True(t, sepNYSEFlag.Valid)
	require.False(t, sepNYSEFlag.Bool)
}
