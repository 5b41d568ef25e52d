package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/terrylica/exness-data-preprocess-sub000/internal/metrics"
)

// ColumnDef names a staging-table column and its DuckDB type, used by
// BatchUpdate to build the temporary table a batched update joins against.
type ColumnDef struct {
	Name string
	Type string
}

// BatchRow is one row of a batched update: the minute key plus one value
// per ColumnDef, in the same order.
type BatchRow struct {
	Timestamp time.Time
	Values    []any
}

// BatchUpdate performs one batched UPDATE of table's named columns, keyed
// on Timestamp, via a temporary staging table joined in a single UPDATE...
// FROM statement. §4.3's restart-safety and §4.4's "a single batched update
// keyed on minute is mandatory; per-row updates are forbidden" both rely on
// this being the only way flag/label columns get written back.
func (s *Store) BatchUpdate(ctx context.Context, table string, cols []ColumnDef, rows []BatchRow) error {
	if len(rows) == 0 {
		return nil
	}

	timer := prometheus.NewTimer(metrics.DBQueryDuration.WithLabelValues(s.pair, "batch_update_"+table))
	defer timer.ObserveDuration()

	return s.Tx(ctx, func(tx *sql.Tx) error {
		const staging = "batch_update_staging"

		var ddl strings.Builder
		ddl.WriteString(`"Timestamp" TIMESTAMP`)
		for _, c := range cols {
			fmt.Fprintf(&ddl, `, "%s" %s`, c.Name, c.Type)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TEMP TABLE %s (%s)`, staging, ddl.String())); err != nil {
			return fmt.Errorf("create staging table: %w", err)
		}
		defer func() { _, _ = tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, staging)) }()

		placeholders := make([]string, len(cols)+1)
		for i := range placeholders {
			placeholders[i] = "?"
		}
		insertStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			`INSERT INTO %s VALUES (%s)`, staging, strings.Join(placeholders, ", ")))
		if err != nil {
			return fmt.Errorf("prepare staging insert: %w", err)
		}
		for _, row := range rows {
			args := make([]any, 0, len(row.Values)+1)
			args = append(args, row.Timestamp)
			args = append(args, row.Values...)
			if _, err := insertStmt.ExecContext(ctx, args...); err != nil {
				insertStmt.Close()
				return fmt.Errorf("insert staging row for %s: %w", row.Timestamp, err)
			}
		}
		insertStmt.Close()

		setClauses := make([]string, len(cols))
		for i, c := range cols {
			setClauses[i] = fmt.Sprintf(`"%s" = s."%s"`, c.Name, c.Name)
		}
		updateSQL := fmt.Sprintf(
			`UPDATE %s SET %s FROM %s s WHERE %s."Timestamp" = s."Timestamp"`,
			table, strings.Join(setClauses, ", "), staging, table)
		if _, err := tx.ExecContext(ctx, updateSQL); err != nil {
			return fmt.Errorf("batched update of %s: %w", table, err)
		}
		return nil
	})
}
