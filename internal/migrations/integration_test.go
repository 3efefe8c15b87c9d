package migrations

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgreSQLContainer(ctx context.Context, t *testing.T) (*pgx.Conn, func()) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := pgx.Connect(ctx, connStr)
	require.NoError(t, err)

	cleanup := func() {
		_ = conn.Close(ctx)
		_ = pgContainer.Terminate(ctx)
	}
	return conn, cleanup
}

func TestApplyCreatesProductsAndSalesTables(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed migration test in short mode")
	}

	ctx := context.Background()
	conn, cleanup := setupPostgreSQLContainer(ctx, t)
	defer cleanup()

	require.NoError(t, Apply(ctx, conn))

	for _, table := range []string{"products", "sales"} {
		var exists bool
		err := conn.QueryRow(ctx,
			"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s should exist after migration", table)
	}

	var migrationsApplied int
	err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM inbound_sync_migrations").Scan(&migrationsApplied)
	require.NoError(t, err)
	assert.Equal(t, 1, migrationsApplied)
}

func TestApplyIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed migration test in short mode")
	}

	ctx := context.Background()
	conn, cleanup := setupPostgreSQLContainer(ctx, t)
	defer cleanup()

	require.NoError(t, Apply(ctx, conn))
	require.NoError(t, Apply(ctx, conn), "applying migrations twice must not error")

	needsUpgrade, err := NeedsUpgrade(ctx, conn)
	require.NoError(t, err)
	assert.False(t, needsUpgrade)
}

func TestApplyIndexesExist(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed migration test in short mode")
	}

	ctx := context.Background()
	conn, cleanup := setupPostgreSQLContainer(ctx, t)
	defer cleanup()

	require.NoError(t, Apply(ctx, conn))

	for _, idx := range []string{"idx_products_updated_at", "idx_sales_product_id", "idx_sales_updated_at"} {
		var exists bool
		err := conn.QueryRow(ctx,
			"SELECT EXISTS (SELECT FROM pg_indexes WHERE indexname = $1)", idx,
		).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "index %s should exist after migration", idx)
	}
}
