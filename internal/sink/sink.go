// Package sink executes the mutation the resolver chose against the local
// PostgreSQL store.
package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/regionsync/inbound-sync/internal/resolver"
	"github.com/regionsync/inbound-sync/internal/schema"
)

// PgxIface is the subset of pgx's pool/conn surface the sink needs, kept
// narrow so pgxmock can stand in for it in tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Writer executes INSERT/UPSERT/DELETE statements against the sink and
// reads current local state for the resolver.
type Writer struct {
	pool PgxIface
}

// NewWriter constructs a Writer.
func NewWriter(pool PgxIface) *Writer {
	return &Writer{pool: pool}
}

// Read implements resolver.LocalReader.
func (w *Writer) Read(ctx context.Context, table string, primaryKey any) (resolver.LocalRow, error) {
	if _, err := schema.Lookup(table); err != nil {
		return resolver.LocalRow{}, err
	}

	query := fmt.Sprintf(
		`SELECT EXTRACT(EPOCH FROM updated_at) * 1000, COALESCE(version, 0) FROM %s WHERE id = $1`,
		pgx.Identifier{table}.Sanitize(),
	)

	var updatedAtMs float64
	var version int64
	err := w.pool.QueryRow(ctx, query, primaryKey).Scan(&updatedAtMs, &version)
	if err != nil {
		if err == pgx.ErrNoRows {
			return resolver.LocalRow{Exists: false}, nil
		}
		return resolver.LocalRow{}, fmt.Errorf("read local row: %w", err)
	}

	return resolver.LocalRow{Exists: true, UpdatedAtMs: int64(updatedAtMs), Version: version}, nil
}

// Delete executes "DELETE FROM <table> WHERE id = $1". A delete of an
// absent row is a no-op, not an error — the statement simply affects zero
// rows.
func (w *Writer) Delete(ctx context.Context, table string, primaryKey any) error {
	if _, err := schema.Lookup(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, pgx.Identifier{table}.Sanitize())
	_, err := w.pool.Exec(ctx, query, primaryKey)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

// Upsert inserts or updates a row keyed by id, whitelisting columns against
// the table's known schema and parameterizing every value — never
// interpolating.
func (w *Writer) Upsert(ctx context.Context, table string, columns []string, values []any) error {
	t, err := schema.Lookup(table)
	if err != nil {
		return err
	}

	cols, vals := t.Whitelist(columns, values)
	if len(cols) == 0 {
		return fmt.Errorf("upsert into %s: no known columns in payload", table)
	}
	if !contains(cols, "id") {
		return fmt.Errorf("upsert into %s: payload missing id column", table)
	}

	query, args := upsertQuery(t, cols, vals)
	if _, err := w.pool.Exec(ctx, query, args...); err != nil {
		logrus.WithFields(logrus.Fields{"table": table, "columns": cols}).
			WithError(err).Error("sink upsert failed")
		return fmt.Errorf("upsert into %s: %w", table, err)
	}
	return nil
}

// upsertQuery renders "INSERT ... ON CONFLICT (id) DO UPDATE SET ...",
// preserving sync_source on update and forcing updated_at to NOW().
// Placeholders are positional ($1..$n); the table's PostgreSQL identifier
// is whitelisted, never taken from user input.
func upsertQuery(t *schema.Table, cols []string, vals []any) (string, []any) {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	var setClauses []string
	for _, c := range cols {
		if c == "id" || t.PreserveOnConflict[c] {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	setClauses = append(setClauses, "updated_at = NOW()")

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		pgx.Identifier{t.Name}.Sanitize(),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(setClauses, ", "),
	)
	return query, vals
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
