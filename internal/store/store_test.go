package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	s, err := Open(cfg, "EURUSD")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBulkAppendIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ticks := []Tick{
		{Timestamp: time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), Bid: 1.1, Ask: 1.1001},
		{Timestamp: time.Date(2024, 8, 1, 0, 0, 1, 0, time.UTC), Bid: 1.1002, Ask: 1.1003},
	}

	res, err := s.BulkAppend(ctx, "raw_spread_ticks", ticks)
	require.NoError(t, err)
	require.Equal(t, AppendResult{Attempted: 2, Inserted: 2}, res)

	res, err = s.BulkAppend(ctx, "raw_spread_ticks", ticks)
	require.NoError(t, err)
	require.Equal(t, AppendResult{Attempted: 2, Inserted: 0}, res)

	var count int
	require.NoError(t, s.Conn().QueryRowContext(ctx, `SELECT count(*) FROM raw_spread_ticks`).Scan(&count))
	require.Equal(t, 2, count)
}

func TestMissingMonthsDetectsInternalGap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, m := range []int{1, 3} { // January and March present, February absent
		_, err := s.BulkAppend(ctx, "raw_spread_ticks", []Tick{
			{Timestamp: time.Date(2024, time.Month(m), 15, 0, 0, 0, 0, time.UTC), Bid: 1, Ask: 1},
		})
		require.NoError(t, err)
	}

	missing, err := s.MissingMonths(ctx, "raw_spread_ticks", YearMonth{2024, 1}, YearMonth{2024, 3})
	require.NoError(t, err)
	require.Equal(t, []YearMonth{{2024, 2}}, missing)
}

func TestMissingMonthsEmptyTableReturnsFullRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	missing, err := s.MissingMonths(ctx, "raw_spread_ticks", YearMonth{2024, 1}, YearMonth{2024, 2})
	require.NoError(t, err)
	require.Equal(t, []YearMonth{{2024, 1}, {2024, 2}}, missing)
}

func TestSchemaVersionRecordedOnCreate(t *testing.T) {
	s := openTestStore(t)
	value, ok, err := s.GetMetadata(context.Background(), "schema_version")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, schemaVersion, value)
}
