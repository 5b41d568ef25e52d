// Package archive implements the Archive Fetcher external collaborator:
// given (variant, year, month) it resolves the monthly tick-archive URL and
// streams the ZIP to a local file, tripping a circuit breaker after
// repeated failures so a flaky archive host fails a run fast instead of
// hanging it indefinitely.
package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	domainerrors "github.com/terrylica/exness-data-preprocess-sub000/internal/errors"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/logging"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/metrics"
)

// Variant is one of the two tick-archive streams.
type Variant int

const (
	Standard Variant = iota
	RawSpread
)

func (v Variant) suffix() string {
	if v == RawSpread {
		return "_Raw_Spread"
	}
	return ""
}

func (v Variant) domainVariant() domainerrors.Variant {
	if v == RawSpread {
		return domainerrors.RawSpread
	}
	return domainerrors.Standard
}

// DomainVariant exposes the taxonomy-level Variant for callers outside this
// package that need to build their own domainerrors.Error.
func (v Variant) DomainVariant() domainerrors.Variant { return v.domainVariant() }

// String names the variant for logging.
func (v Variant) String() string {
	if v == RawSpread {
		return "raw-spread"
	}
	return "standard"
}

// Fetcher resolves and downloads the monthly archive for (pair, variant,
// year, month). Defined as an interface so the Tick Loader can be tested
// against a fake with no network dependency.
type Fetcher interface {
	Fetch(ctx context.Context, pair string, variant Variant, year, month int) (localPath string, err error)
}

// HTTPFetcher is the production Fetcher: it builds the archive URL per the
// documented contract, downloads it to tempDir, and wraps the call in a
// single circuit breaker shared by every request this fetcher makes.
type HTTPFetcher struct {
	BaseURL string
	TempDir string
	Client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewHTTPFetcher constructs a Fetcher with a default HTTP client and a
// circuit breaker that trips after 5 consecutive failures within 60s.
func NewHTTPFetcher(baseURL, tempDir string) *HTTPFetcher {
	f := &HTTPFetcher{
		BaseURL: baseURL,
		TempDir: tempDir,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
	f.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "archive-fetch",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return f
}

// url builds the archive URL per the documented contract:
// {base}/ticks/{pair}{variant_suffix}/{YYYY}/{MM}/Exness_{pair}{variant_suffix}_{YYYY}_{MM}.zip
func (f *HTTPFetcher) url(pair string, variant Variant, year, month int) string {
	suffix := variant.suffix()
	return fmt.Sprintf("%s/ticks/%s%s/%04d/%02d/Exness_%s%s_%04d_%02d.zip",
		f.BaseURL, pair, suffix, year, month, pair, suffix, year, month)
}

// Fetch downloads the archive, returning NotYetAvailable for a 404-equivalent
// response and FetchFailed for any other network/IO error.
func (f *HTTPFetcher) Fetch(ctx context.Context, pair string, variant Variant, year, month int) (string, error) {
	target := f.url(pair, variant, year, month)
	timer := prometheus.NewTimer(metrics.ArchiveFetchDuration.WithLabelValues(pair, variant.String()))
	defer timer.ObserveDuration()

	resp, err := f.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		return f.Client.Do(req)
	})
	if err != nil {
		metrics.ArchiveFetchErrors.WithLabelValues(pair, variant.String(), domainerrors.FetchFailed.String()).Inc()
		return "", domainerrors.ForMonth(domainerrors.FetchFailed, pair, year, month, variant.domainVariant(),
			fmt.Errorf("fetch %s: %w", target, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		metrics.ArchiveFetchErrors.WithLabelValues(pair, variant.String(), domainerrors.NotYetAvailable.String()).Inc()
		return "", domainerrors.ForMonth(domainerrors.NotYetAvailable, pair, year, month, variant.domainVariant(),
			fmt.Errorf("archive not published: %s", target))
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ArchiveFetchErrors.WithLabelValues(pair, variant.String(), domainerrors.FetchFailed.String()).Inc()
		return "", domainerrors.ForMonth(domainerrors.FetchFailed, pair, year, month, variant.domainVariant(),
			fmt.Errorf("unexpected status %d from %s", resp.StatusCode, target))
	}

	if err := os.MkdirAll(f.TempDir, 0o750); err != nil {
		return "", domainerrors.ForMonth(domainerrors.FetchFailed, pair, year, month, variant.domainVariant(),
			fmt.Errorf("create temp dir: %w", err))
	}
	localPath := filepath.Join(f.TempDir, fmt.Sprintf("Exness_%s%s_%04d_%02d.zip",
		pair, variant.suffix(), year, month))

	out, err := os.Create(localPath)
	if err != nil {
		return "", domainerrors.ForMonth(domainerrors.FetchFailed, pair, year, month, variant.domainVariant(),
			fmt.Errorf("create local file: %w", err))
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", domainerrors.ForMonth(domainerrors.FetchFailed, pair, year, month, variant.domainVariant(),
			fmt.Errorf("write local file: %w", err))
	}

	return localPath, nil
}

// DeleteArtifact removes a previously fetched archive file, used when
// delete_archive_after_load is enabled.
func DeleteArtifact(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete archive artifact %s: %w", path, err)
	}
	return nil
}
