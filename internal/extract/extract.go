// Package extract implements the Tick Extractor external collaborator:
// given a monthly archive (a ZIP containing a single CSV with header
// "Exness,Symbol,Timestamp,Bid,Ask"), it yields an ordered sequence of
// (timestamp_utc, bid, ask) records.
package extract

import (
	"archive/zip"
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	domainerrors "github.com/terrylica/exness-data-preprocess-sub000/internal/errors"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/store"
)

// Extractor streams ticks out of a local archive file. Defined as an
// interface so the Tick Loader can be tested against an in-memory fake.
type Extractor interface {
	Extract(archivePath string) ([]store.Tick, error)
}

// ZipCSVExtractor is the production Extractor.
type ZipCSVExtractor struct{}

// Extract opens the ZIP at archivePath, locates its single CSV member, and
// parses every row into a Tick. A malformed row anywhere in the archive
// aborts the whole extraction — §4.2 requires the per-month load to fail
// atomically, not commit a partial tick set.
func (ZipCSVExtractor) Extract(archivePath string) ([]store.Tick, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, domainerrors.New(domainerrors.ParseFailed, "",
			fmt.Errorf("open archive %s: %w", archivePath, err))
	}
	defer zr.Close()

	var csvFile *zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			csvFile = f
			break
		}
	}
	if csvFile == nil {
		return nil, domainerrors.New(domainerrors.ParseFailed, "",
			fmt.Errorf("archive %s contains no CSV member", archivePath))
	}

	rc, err := csvFile.Open()
	if err != nil {
		return nil, domainerrors.New(domainerrors.ParseFailed, "",
			fmt.Errorf("open csv member: %w", err))
	}
	defer rc.Close()

	return parseCSV(rc)
}

func parseCSV(r io.Reader) ([]store.Tick, error) {
	reader := csv.NewReader(bufio.NewReaderSize(r, 256*1024))
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, domainerrors.New(domainerrors.ParseFailed, "",
			fmt.Errorf("read header: %w", err))
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var ticks []store.Tick
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domainerrors.New(domainerrors.ParseFailed, "",
				fmt.Errorf("read row %d: %w", len(ticks)+2, err))
		}

		ts, err := parseTimestamp(record[cols.timestamp])
		if err != nil {
			return nil, domainerrors.New(domainerrors.ParseFailed, "",
				fmt.Errorf("row %d: parse timestamp %q: %w", len(ticks)+2, record[cols.timestamp], err))
		}
		bid, err := strconv.ParseFloat(record[cols.bid], 64)
		if err != nil {
			return nil, domainerrors.New(domainerrors.ParseFailed, "",
				fmt.Errorf("row %d: parse bid %q: %w", len(ticks)+2, record[cols.bid], err))
		}
		ask, err := strconv.ParseFloat(record[cols.ask], 64)
		if err != nil {
			return nil, domainerrors.New(domainerrors.ParseFailed, "",
				fmt.Errorf("row %d: parse ask %q: %w", len(ticks)+2, record[cols.ask], err))
		}

		ticks = append(ticks, store.Tick{Timestamp: ts, Bid: bid, Ask: ask})
	}
	return ticks, nil
}

type columns struct {
	timestamp, bid, ask int
}

func columnIndex(header []string) (columns, error) {
	idx := map[string]int{}
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	cols := columns{}
	var ok bool
	if cols.timestamp, ok = idx["Timestamp"]; !ok {
		return columns{}, domainerrors.New(domainerrors.ParseFailed, "", fmt.Errorf("missing Timestamp column"))
	}
	if cols.bid, ok = idx["Bid"]; !ok {
		return columns{}, domainerrors.New(domainerrors.ParseFailed, "", fmt.Errorf("missing Bid column"))
	}
	if cols.ask, ok = idx["Ask"]; !ok {
		return columns{}, domainerrors.New(domainerrors.ParseFailed, "", fmt.Errorf("missing Ask column"))
	}
	return cols, nil
}

// parseTimestamp normalizes an ISO-8601 "Z"-suffixed timestamp with
// millisecond or microsecond subseconds to a UTC instant with microsecond
// precision.
func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999",
		"2006-01-02T15:04:05.999999Z",
		"2006-01-02 15:04:05.999",
		"2006-01-02T15:04:05.999Z",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}
