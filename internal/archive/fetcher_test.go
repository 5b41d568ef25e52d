package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	domainerrors "github.com/terrylica/exness-data-preprocess-sub000/internal/errors"
)

func TestHTTPFetcherURLMatchesDocumentedContract(t *testing.T) {
	f := NewHTTPFetcher("https://ticks.example/v1", t.TempDir())
	got := f.url("EURUSD", RawSpread, 2024, 8)
	want := "https://ticks.example/v1/ticks/EURUSD_Raw_Spread/2024/08/Exness_EURUSD_Raw_Spread_2024_08.zip"
	require.Equal(t, want, got)
}

func TestHTTPFetcherDownloadsArchiveOnSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("zip-bytes"))
	}))
	defer server.Close()

	f := NewHTTPFetcher(server.URL, t.TempDir())
	path, err := f.Fetch(context.Background(), "EURUSD", Standard, 2024, 8)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "zip-bytes", string(data))
	require.Equal(t, filepath.Join(f.TempDir, "Exness_EURUSD_2024_08.zip"), path)
}

func TestHTTPFetcherReturnsNotYetAvailableOn404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewHTTPFetcher(server.URL, t.TempDir())
	_, err := f.Fetch(context.Background(), "EURUSD", Standard, 2024, 8)
	require.Error(t, err)
	require.Equal(t, domainerrors.NotYetAvailable, domainerrors.KindOf(err))
}

func TestHTTPFetcherReturnsFetchFailedOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := NewHTTPFetcher(server.URL, t.TempDir())
	_, err := f.Fetch(context.Background(), "EURUSD", Standard, 2024, 8)
	require.Error(t, err)
	require.Equal(t, domainerrors.FetchFailed, domainerrors.KindOf(err))
}
