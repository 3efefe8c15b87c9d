// Package schema describes the sink's known tables so the sink writer can
// whitelist incoming columns rather than trust CDC payload shape.
package schema

import "fmt"

// Table describes one sink table's known columns.
type Table struct {
	Name    string
	Columns map[string]bool
	// PreserveOnConflict lists columns that must keep their existing value
	// on UPDATE rather than taking the incoming value (sync_source is kept
	// only on update; updated_at is always set to NOW()).
	PreserveOnConflict map[string]bool
}

// Tables is the whitelist of tables this process is allowed to write.
// "users" is intentionally absent: user records never flow through this
// sync path.
var Tables = map[string]*Table{
	"products": {
		Name: "products",
		Columns: set(
			"id", "product_name", "description", "price", "stock_quantity",
			"category", "manufacturer_country", "created_by_user_id",
			"sync_source", "version", "created_at", "updated_at",
		),
		PreserveOnConflict: set("sync_source", "updated_at"),
	},
	"sales": {
		Name: "sales",
		Columns: set(
			"id", "sale_date", "product_id", "product_name", "quantity",
			"unit_price", "total_amount", "customer_name", "sale_region",
			"sync_source", "salesperson_user_id", "version", "created_at",
			"updated_at",
		),
		PreserveOnConflict: set("sync_source", "updated_at"),
	},
}

// Lookup returns the table descriptor for name, or an error if the core
// has no schema for it (and therefore must not write to it).
func Lookup(name string) (*Table, error) {
	t, ok := Tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown or forbidden table %q", name)
	}
	return t, nil
}

// Whitelist filters columns down to the ones this table actually has,
// dropping anything the CDC payload carries that the sink schema doesn't
// know about rather than aborting the write.
func (t *Table) Whitelist(columns []string, values []any) ([]string, []any) {
	outCols := make([]string, 0, len(columns))
	outVals := make([]any, 0, len(values))
	for i, c := range columns {
		if t.Columns[c] {
			outCols = append(outCols, c)
			outVals = append(outVals, values[i])
		}
	}
	return outCols, outVals
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
