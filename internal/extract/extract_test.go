package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, filename, content string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(filename)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestZipCSVExtractorParsesWellFormedArchive(t *testing.T) {
	csv := "Exness,Symbol,Timestamp,Bid,Ask\n" +
		"Exness,EURUSD,2024-08-01 13:30:00.123456,1.10000,1.10020\n" +
		"Exness,EURUSD,2024-08-01 13:30:05.000000,1.10010,1.10030\n"
	path := buildZip(t, "ticks.csv", csv)

	ticks, err := ZipCSVExtractor{}.Extract(path)
	require.NoError(t, err)
	require.Len(t, ticks, 2)

	require.Equal(t, 1.10000, ticks[0].Bid)
	require.Equal(t, 1.10020, ticks[0].Ask)
	require.Equal(t,
		time.Date(2024, 8, 1, 13, 30, 0, 123456000, time.UTC),
		ticks[0].Timestamp)
}

func TestZipCSVExtractorRejectsMissingColumn(t *testing.T) {
	csv := "Exness,Symbol,Timestamp,Bid\nExness,EURUSD,2024-08-01 13:30:00.000000,1.1\n"
	path := buildZip(t, "ticks.csv", csv)

	_, err := ZipCSVExtractor{}.Extract(path)
	require.Error(t, err)
}

func TestZipCSVExtractorRejectsMalformedRowAtomically(t *testing.T) {
	csv := "Exness,Symbol,Timestamp,Bid,Ask\n" +
		"Exness,EURUSD,2024-08-01 13:30:00.000000,1.1,1.1002\n" +
		"Exness,EURUSD,not-a-timestamp,1.1,1.1002\n"
	path := buildZip(t, "ticks.csv", csv)

	_, err := ZipCSVExtractor{}.Extract(path)
	require.Error(t, err, "a malformed row anywhere must fail the whole extraction, never a partial tick set")
}

func TestZipCSVExtractorRejectsArchiveWithNoCSVMember(t *testing.T) {
	path := buildZip(t, "readme.txt", "not a csv")

	_, err := ZipCSVExtractor{}.Extract(path)
	require.Error(t, err)
}
