package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regionsync/inbound-sync/internal/envelope"
)

func TestResolveNewRecord(t *testing.T) {
	d := Resolve(LocalRow{Exists: false}, envelope.OpCreate, envelope.Row{})
	assert.Equal(t, Apply, d.Action)
	assert.Equal(t, ReasonNewRecord, d.Reason)
}

func TestResolveDeleteOfAbsent(t *testing.T) {
	d := Resolve(LocalRow{Exists: false}, envelope.OpDelete, envelope.Row{})
	assert.Equal(t, Apply, d.Action)
	assert.Equal(t, ReasonDeleteOfAbsent, d.Reason)
}

func TestResolveDeleteOperation(t *testing.T) {
	d := Resolve(LocalRow{Exists: true, UpdatedAtMs: 5000}, envelope.OpDelete, envelope.Row{})
	assert.Equal(t, Apply, d.Action)
	assert.Equal(t, ReasonDeleteOperation, d.Reason)
}

func TestResolveMissingTimestampAppliesAsNewer(t *testing.T) {
	d := Resolve(LocalRow{Exists: true, UpdatedAtMs: 5000}, envelope.OpUpdate, envelope.Row{})
	assert.Equal(t, Apply, d.Action)
	assert.Equal(t, ReasonNewerTimestamp, d.Reason)
}

func TestResolveLoopPreventionWithinWindow(t *testing.T) {
	local := LocalRow{Exists: true, UpdatedAtMs: 10_000}
	after := envelope.Row{"updated_at": int64(10_500)}
	d := Resolve(local, envelope.OpUpdate, after)
	assert.Equal(t, Skip, d.Action)
	assert.Equal(t, ReasonLoopPrevention, d.Reason)
}

func TestResolveNewerTimestampApplies(t *testing.T) {
	local := LocalRow{Exists: true, UpdatedAtMs: 10_000}
	after := envelope.Row{"updated_at": int64(20_000)}
	d := Resolve(local, envelope.OpUpdate, after)
	assert.Equal(t, Apply, d.Action)
	assert.Equal(t, ReasonNewerTimestamp, d.Reason)
}

func TestResolveOlderTimestampSkipped(t *testing.T) {
	local := LocalRow{Exists: true, UpdatedAtMs: 20_000}
	after := envelope.Row{"updated_at": int64(10_000)}
	d := Resolve(local, envelope.OpUpdate, after)
	assert.Equal(t, Skip, d.Action)
	assert.Equal(t, ReasonOlderTimestamp, d.Reason)
}

type stubReader struct {
	row LocalRow
	err error
}

func (s stubReader) Read(ctx context.Context, table string, primaryKey any) (LocalRow, error) {
	return s.row, s.err
}

func TestResolveWithReaderPropagatesReadError(t *testing.T) {
	r := stubReader{err: errors.New("connection reset")}
	_, err := ResolveWithReader(context.Background(), r, "products", "1", envelope.OpUpdate, envelope.Row{})
	require.Error(t, err)
}

func TestResolveWithReaderDelegatesToResolve(t *testing.T) {
	r := stubReader{row: LocalRow{Exists: false}}
	d, err := ResolveWithReader(context.Background(), r, "products", "1", envelope.OpCreate, envelope.Row{})
	require.NoError(t, err)
	assert.Equal(t, Apply, d.Action)
	assert.Equal(t, ReasonNewRecord, d.Reason)
}
