package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownTable(t *testing.T) {
	tbl, err := Lookup("products")
	require.NoError(t, err)
	assert.Equal(t, "products", tbl.Name)
}

func TestLookupUsersForbidden(t *testing.T) {
	_, err := Lookup("users")
	assert.Error(t, err)
}

func TestLookupUnknownTable(t *testing.T) {
	_, err := Lookup("widgets")
	assert.Error(t, err)
}

func TestWhitelistDropsUnknownColumns(t *testing.T) {
	tbl, err := Lookup("products")
	require.NoError(t, err)

	cols, vals := tbl.Whitelist([]string{"id", "product_name", "some_unknown_col"}, []any{"1", "Widget", "x"})
	assert.Equal(t, []string{"id", "product_name"}, cols)
	assert.Equal(t, []any{"1", "Widget"}, vals)
}

func TestPreserveOnConflictColumns(t *testing.T) {
	tbl, err := Lookup("sales")
	require.NoError(t, err)
	assert.True(t, tbl.PreserveOnConflict["sync_source"])
	assert.True(t, tbl.PreserveOnConflict["updated_at"])
	assert.False(t, tbl.PreserveOnConflict["quantity"])
}
