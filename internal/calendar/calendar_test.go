package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainerrors "github.com/terrylica/exness-data-preprocess-sub000/internal/errors"
)

func mustService(t *testing.T) *Service {
	t.Helper()
	svc, err := New()
	require.NoError(t, err)
	return svc
}

func TestTokyoLunchWindowExcluded(t *testing.T) {
	svc := mustService(t)
	// 2024-08-05 is a Monday; Tokyo local 12:00 is UTC 03:00.
	instant := time.Date(2024, 8, 5, 3, 0, 0, 0, time.UTC)
	ok, err := svc.IsTradingMinute(XTKS, instant)
	require.NoError(t, err)
	require.False(t, ok, "Tokyo lunch minute must not be a trading minute")
}

func TestTokyoLunchWindowFullyExcluded(t *testing.T) {
	svc := mustService(t)
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	day := time.Date(2024, 8, 5, 0, 0, 0, 0, loc)
	for minute := 11*60 + 30; minute < 12*60+30; minute++ {
		local := time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, loc)
		ok, err := svc.IsTradingMinute(XTKS, local.UTC())
		require.NoError(t, err)
		require.Falsef(t, ok, "minute %02d:%02d local must be excluded", minute/60, minute%60)
	}
}

func TestNYSEClosedOutsideSession(t *testing.T) {
	svc := mustService(t)
	midnightUTC := time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC)
	ok, err := svc.IsTradingMinute(XNYS, midnightUTC)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDSTSpringForwardMinuteAbsent(t *testing.T) {
	svc := mustService(t)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2024-03-10: US spring-forward, 02:00-02:59 local does not exist.
	// Local 01:59 EST (06:59 UTC) and 03:00 EDT (07:00 UTC) are consecutive
	// UTC minutes, so no UTC instant maps to a 02:xx local minute and the
	// trading-minute set cannot contain one or a duplicate.
	before := time.Date(2024, 3, 10, 1, 59, 0, 0, loc).UTC()
	after := time.Date(2024, 3, 10, 3, 0, 0, 0, loc).UTC()
	require.Equal(t, time.Minute, after.Sub(before))

	minutes, err := svc.TradingMinutes(context.Background(), XNYS, before, after.Add(time.Minute))
	require.NoError(t, err)
	seen := make(map[time.Time]struct{}, len(minutes))
	for _, m := range minutes {
		_, dup := seen[m]
		require.Falsef(t, dup, "duplicate UTC minute %s", m)
		seen[m] = struct{}{}
		require.NotEqual(t, 2, m.In(loc).Hour(), "nonexistent 02:xx local minute must not appear")
	}
}

func TestWeekendNeverTrading(t *testing.T) {
	svc := mustService(t)
	// 2024-08-10 is a Saturday.
	instant := time.Date(2024, 8, 10, 15, 0, 0, 0, time.UTC)
	ok, err := svc.IsTradingMinute(XNYS, instant)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsHolidayChristmasIsUSAndUKHoliday(t *testing.T) {
	svc := mustService(t)
	christmas := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	us, err := svc.IsHoliday("XNYS", christmas)
	require.NoError(t, err)
	uk, err := svc.IsHoliday("XLON", christmas)
	require.NoError(t, err)
	require.True(t, us)
	require.True(t, uk)
}

func TestUnknownCalendarIsCalendarUnavailable(t *testing.T) {
	svc := mustService(t)
	_, err := svc.IsHoliday("XZZZ", time.Now().UTC())
	require.Error(t, err)
	require.Equal(t, domainerrors.CalendarUnavailable, domainerrors.KindOf(err))
}

func TestTradingMinutesBulkMatchesPerMinute(t *testing.T) {
	svc := mustService(t)
	start := time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	minutes, err := svc.TradingMinutes(context.Background(), XHKG, start, end)
	require.NoError(t, err)

	set := make(map[time.Time]struct{}, len(minutes))
	for _, m := range minutes {
		set[m] = struct{}{}
	}
	for t0 := start; t0.Before(end); t0 = t0.Add(time.Minute) {
		want, err := svc.IsTradingMinute(XHKG, t0)
		require.NoError(t, err)
		_, inSet := set[t0]
		require.Equal(t, want, inSet)
	}
}
