// Package migrations contains database migration definitions for the sink
// schema.
package migrations

import (
	"context"
	"fmt"
	"sync"

	migrator "github.com/cybertec-postgresql/pgx-migrator"
	"github.com/jackc/pgx/v5"
)

// migrations holds function returning all upgrade migrations needed
var migrations func() migrator.Option = func() migrator.Option {
	return migrator.Migrations(
		&migrator.Migration{
			Name: "001_create_tables",
			Func: func(ctx context.Context, tx pgx.Tx) error {
				_, err := tx.Exec(ctx, `
					CREATE TABLE products (
						id                    uuid PRIMARY KEY,
						product_name          text NOT NULL,
						description           text,
						price                 numeric(12,2) NOT NULL,
						stock_quantity        integer NOT NULL DEFAULT 0,
						category              text,
						manufacturer_country  text,
						created_by_user_id    uuid,
						sync_source           text,
						version               bigint NOT NULL DEFAULT 0,
						created_at            timestamptz NOT NULL DEFAULT now(),
						updated_at            timestamptz NOT NULL DEFAULT now()
					);

					CREATE TABLE sales (
						id                    uuid PRIMARY KEY,
						sale_date             date NOT NULL,
						product_id            uuid,
						product_name          text,
						quantity              integer NOT NULL,
						unit_price            numeric(12,2) NOT NULL,
						total_amount          numeric(12,2) NOT NULL,
						customer_name         text,
						sale_region           text,
						sync_source           text,
						salesperson_user_id   uuid,
						version               bigint NOT NULL DEFAULT 0,
						created_at            timestamptz NOT NULL DEFAULT now(),
						updated_at            timestamptz NOT NULL DEFAULT now()
					);

					CREATE INDEX idx_products_updated_at ON products(updated_at DESC);
					CREATE INDEX idx_sales_product_id ON sales(product_id);
					CREATE INDEX idx_sales_updated_at ON sales(updated_at DESC);
				`)
				return err
			},
		},
		// adding new migration here

		// &migrator.Migration{
		// 	Name: "Short description of a migration",
		// 	Func: func(ctx context.Context, tx pgx.Tx) error {
		// 		...
		// 	},
		// },
	)
}

var (
	migratorInstance *migrator.Migrator
	once             sync.Once
)

// getMigrator returns a singleton migrator instance
func getMigrator() (*migrator.Migrator, error) {
	var err error
	once.Do(func() {
		migratorInstance, err = migrator.New(
			migrations(),
			migrator.TableName("inbound_sync_migrations"),
		)
	})
	return migratorInstance, err
}

// Apply applies all pending migrations to the database
func Apply(ctx context.Context, conn *pgx.Conn) error {
	m, err := getMigrator()
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Migrate(ctx, conn); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// NeedsUpgrade checks if the database needs migration
func NeedsUpgrade(ctx context.Context, conn *pgx.Conn) (bool, error) {
	m, err := getMigrator()
	if err != nil {
		return false, fmt.Errorf("failed to create migrator: %w", err)
	}

	needUpgrade, err := m.NeedUpgrade(ctx, conn)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}

	return needUpgrade, nil
}
