package tiles

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// sqlFilter collects WHERE predicates. Sentinel filter values add nothing.
// All appended values are integers, so they are inlined and the built
// fragment is safe to embed in cursor declarations.
type sqlFilter struct {
	conds []string
}

func (f *sqlFilter) zoomRange(col string, minZoom, maxZoom int) {
	if minZoom > ZoomMin {
		f.cmp(col, ">=", int64(minZoom))
	}
	if maxZoom < ZoomMax {
		f.cmp(col, "<=", int64(maxZoom))
	}
}

func (f *sqlFilter) timestampWindow(col string, minTimestamp, maxTimestamp int64) {
	if minTimestamp > 0 {
		f.cmp(col, ">", minTimestamp)
	}
	if maxTimestamp > 0 {
		f.cmp(col, "<", maxTimestamp)
	}
}

// scale adds the scale predicate. Stores without the scale column never
// filter on it, and a scale of 0 matches everything.
func (f *sqlFilter) scale(col string, scale int, hasScale bool) {
	if hasScale && scale > 0 {
		f.equal(col, scale)
	}
}

func (f *sqlFilter) equal(col string, v int) {
	f.cmp(col, "=", int64(v))
}

func (f *sqlFilter) cmp(col, op string, v int64) {
	f.conds = append(f.conds, fmt.Sprintf("%s %s %d", col, op, v))
}

func (f *sqlFilter) raw(cond string) {
	f.conds = append(f.conds, cond)
}

// where renders the collected predicates, with a leading space so it can
// be appended to a query directly. No predicates renders as nothing.
func (f *sqlFilter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

// scaleColumn returns the SELECT expression for the scale field: the real
// column when the store has one, the requested scale or 1 otherwise.
func scaleColumn(col string, requested int, hasScale bool) string {
	if hasScale {
		return col
	}
	if requested > 0 {
		return fmt.Sprintf("%d", requested)
	}
	return "1"
}

// orphanSweepSQL removes content rows no coordinate references. Expired
// coordinates hold NULL references, which must stay out of the subquery.
const orphanSweepSQL = "DELETE FROM images WHERE content_id NOT IN" +
	" (SELECT DISTINCT content_id FROM map WHERE content_id IS NOT NULL)"

// execBatch prepares query once and runs it for every row inside a single
// transaction.
func execBatch(ctx context.Context, db *sql.DB, query string, n int, args func(i int) []any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	if err := execBatchTx(ctx, tx, query, n, args); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func execBatchTx(ctx context.Context, tx *sql.Tx, query string, n int, args func(i int) []any) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("batch row %d: %w", i, err)
		}
	}
	return nil
}
