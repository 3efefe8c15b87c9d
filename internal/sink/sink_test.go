package sink

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadExistingRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"extract", "coalesce"}).AddRow(float64(1710000000000), int64(3))
	mock.ExpectQuery(`SELECT EXTRACT\(EPOCH FROM updated_at\) \* 1000, COALESCE\(version, 0\) FROM "products" WHERE id = \$1`).
		WithArgs("abc-1").
		WillReturnRows(rows)

	w := NewWriter(mock)
	row, err := w.Read(context.Background(), "products", "abc-1")
	require.NoError(t, err)
	assert.True(t, row.Exists)
	assert.Equal(t, int64(1710000000000), row.UpdatedAtMs)
	assert.Equal(t, int64(3), row.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadMissingRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT EXTRACT`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	w := NewWriter(mock)
	row, err := w.Read(context.Background(), "products", "missing")
	require.NoError(t, err)
	assert.False(t, row.Exists)
}

func TestReadUnknownTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := NewWriter(mock)
	_, err = w.Read(context.Background(), "users", "1")
	assert.Error(t, err)
}

func TestDeleteExecutesStatement(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM "products" WHERE id = \$1`).
		WithArgs("abc-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	w := NewWriter(mock)
	err = w.Delete(context.Background(), "products", "abc-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBuildsParameterizedQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO "products" \(id, product_name\) VALUES \(\$1, \$2\) ON CONFLICT \(id\) DO UPDATE SET product_name = EXCLUDED.product_name, updated_at = NOW\(\)`).
		WithArgs("abc-1", "Widget").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	w := NewWriter(mock)
	err = w.Upsert(context.Background(), "products", []string{"id", "product_name"}, []any{"abc-1", "Widget"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDropsUnknownColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO "products" \(id\) VALUES \(\$1\) ON CONFLICT \(id\) DO UPDATE SET updated_at = NOW\(\)`).
		WithArgs("abc-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	w := NewWriter(mock)
	err = w.Upsert(context.Background(), "products", []string{"id", "not_a_real_column"}, []any{"abc-1", "x"})
	assert.NoError(t, err)
}

func TestUpsertMissingIDErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := NewWriter(mock)
	err = w.Upsert(context.Background(), "products", []string{"product_name"}, []any{"Widget"})
	assert.Error(t, err)
}
