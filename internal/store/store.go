// Package store wraps one embedded DuckDB file per currency pair and
// exposes the narrow capability surface the ingestion pipeline needs:
// schema bootstrap, bulk append with insert-or-ignore semantics, range
// deletion, and scoped transactions. Nothing outside this package talks to
// database/sql directly for schema-owning statements.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	domainerrors "github.com/terrylica/exness-data-preprocess-sub000/internal/errors"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/logging"
)

// schemaVersion is bumped whenever the table/column layout changes. A
// mismatch between this constant and a database's stored metadata value is
// reported as errors.SchemaMismatch rather than silently migrated.
const schemaVersion = "2"

// Config tunes the connection DuckDB opens for a pair's database file.
type Config struct {
	DataDir                string
	Threads                int
	MaxMemory              string
	PreserveInsertionOrder bool
}

// DefaultConfig returns sane defaults for local batch runs.
func DefaultConfig() Config {
	return Config{
		DataDir:                "./data",
		MaxMemory:              "4GB",
		PreserveInsertionOrder: true,
	}
}

// Store is the per-instrument DuckDB handle.
type Store struct {
	conn *sql.DB
	pair string
	path string
}

// Open creates (if absent) and opens the database file for pair, bootstraps
// its schema, and returns a ready Store. pair is an uppercase six-letter
// currency code, e.g. "EURUSD".
func Open(cfg Config, pair string) (*Store, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}
	path := filepath.Join(cfg.DataDir, pair+".duckdb")

	preserveOrder := "true"
	if !cfg.PreserveInsertionOrder {
		preserveOrder = "false"
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "4GB"
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&preserve_insertion_order=%s",
		path, numThreads, maxMemory, preserveOrder)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	s := &Store{conn: conn, pair: pair, path: path}
	if err := s.initialize(); err != nil {
		closeQuietly(conn)
		var mismatch *SchemaMismatchError
		if asSchemaMismatch(err, &mismatch) {
			return nil, domainerrors.New(domainerrors.SchemaMismatch, pair, mismatch)
		}
		return nil, domainerrors.New(domainerrors.StorageFailed, pair,
			fmt.Errorf("initialize schema: %w", err))
	}
	return s, nil
}

// Conn exposes the underlying *sql.DB for packages that issue ad hoc
// queries (gap detection, OHLC generation) the Store does not wrap itself.
func (s *Store) Conn() *sql.DB { return s.conn }

// Pair returns the currency pair this store was opened for.
func (s *Store) Pair() string { return s.pair }

// Path returns the database file path on disk.
func (s *Store) Path() string { return s.path }

// Ping checks the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.conn.PingContext(ctx)
}

// Close flushes a checkpoint and closes the connection. DuckDB replays its
// WAL on next open; checkpointing here keeps that replay cheap and avoids
// leaving uncommitted pages behind after a batch run.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Str("pair", s.pair).Msg("checkpoint before close failed")
	}
	return s.conn.Close()
}

// Checkpoint forces DuckDB to flush its WAL into the main database file.
func (s *Store) Checkpoint(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, "CHECKPOINT;")
	return err
}

// Tx runs fn inside a transaction, committing on success and rolling back
// on any returned error, including a panic recovered and re-raised after
// rollback.
func (s *Store) Tx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) initialize() error {
	if err := s.createTables(); err != nil {
		return err
	}
	if err := s.verifySchemaVersion(); err != nil {
		return err
	}
	if err := s.createIndexes(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Str("pair", s.pair).Msg("checkpoint after schema initialization failed")
	}
	return nil
}

func closeQuietly(conn *sql.DB) {
	if conn != nil {
		_ = conn.Close()
	}
}

func asSchemaMismatch(err error, target **SchemaMismatchError) bool {
	return stderrors.As(err, target)
}
