// Package resolver implements the Last-Write-Wins conflict resolution
// state machine: it compares an incoming change against local state and
// decides whether to apply or skip it.
package resolver

import (
	"context"
	"fmt"

	"github.com/regionsync/inbound-sync/internal/envelope"
)

// Action is the resolver's verdict for a change.
type Action string

const (
	Apply Action = "apply"
	Skip  Action = "skip"
)

// Reason values are logged verbatim and used by tests to assert on the
// decision path taken.
const (
	ReasonDeleteOfAbsent     = "delete_of_absent"
	ReasonNewRecord          = "new_record"
	ReasonDeleteOperation    = "delete_operation"
	ReasonLoopPrevention     = "loop_prevention_rapid_update"
	ReasonNewerTimestamp     = "newer_timestamp"
	ReasonHigherVersion      = "higher_version"
	ReasonSameOrOlderVersion = "same_or_older_version"
	ReasonOlderTimestamp     = "older_timestamp"
)

// loopWindowMs is the near-simultaneous-echo window: an incoming change
// whose timestamp is within this many milliseconds of local state is
// assumed to be our own write returning through CDC.
const loopWindowMs = 1000

// tieWindowMs is strictly smaller than loopWindowMs, so the version
// tiebreak it guards is unreachable: any delta small enough to satisfy
// delta < tieWindowMs already satisfied delta < loopWindowMs and returned
// from the loop-prevention branch above. Left in place deliberately
// rather than folded into loopWindowMs or removed.
const tieWindowMs = 100

// LocalRow is the current post-image the resolver compares against.
type LocalRow struct {
	Exists      bool
	UpdatedAtMs int64
	Version     int64
}

// LocalReader fetches the current local row for (table, primary key).
type LocalReader interface {
	Read(ctx context.Context, table string, primaryKey any) (LocalRow, error)
}

// Decision is the resolver's verdict plus the reason behind it.
type Decision struct {
	Action Action
	Reason string
}

// incomingVersion reads the version column from the incoming after-row,
// defaulting to 0 when absent.
func incomingVersion(after envelope.Row) int64 {
	raw, ok := after["version"]
	if !ok || raw == nil {
		return 0
	}
	switch n := raw.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

// incomingUpdatedAtMs reads updated_at from the after-row, normalized to
// milliseconds.
func incomingUpdatedAtMs(after envelope.Row) (int64, bool) {
	raw, ok := after["updated_at"]
	if !ok || raw == nil {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		return envelope.NormalizeTimestampMs(int64(n)), true
	case int64:
		return envelope.NormalizeTimestampMs(n), true
	case int:
		return envelope.NormalizeTimestampMs(int64(n)), true
	default:
		return 0, false
	}
}

// Resolve implements the conflict resolution decision procedure.
func Resolve(local LocalRow, op envelope.Op, after envelope.Row) Decision {
	if !local.Exists {
		if op == envelope.OpDelete {
			return Decision{Action: Apply, Reason: ReasonDeleteOfAbsent}
		}
		return Decision{Action: Apply, Reason: ReasonNewRecord}
	}

	if op == envelope.OpDelete {
		return Decision{Action: Apply, Reason: ReasonDeleteOperation}
	}

	tInc, ok := incomingUpdatedAtMs(after)
	if !ok {
		// No timestamp to compare against; treat as newer so genuine
		// updates without an updated_at column are not silently dropped.
		return Decision{Action: Apply, Reason: ReasonNewerTimestamp}
	}

	delta := tInc - local.UpdatedAtMs
	if delta < 0 {
		delta = -delta
	}

	switch {
	case delta < loopWindowMs:
		return Decision{Action: Skip, Reason: ReasonLoopPrevention}
	case tInc > local.UpdatedAtMs:
		return Decision{Action: Apply, Reason: ReasonNewerTimestamp}
	case delta < tieWindowMs:
		if incomingVersion(after) > local.Version {
			return Decision{Action: Apply, Reason: ReasonHigherVersion}
		}
		return Decision{Action: Skip, Reason: ReasonSameOrOlderVersion}
	default:
		return Decision{Action: Skip, Reason: ReasonOlderTimestamp}
	}
}

// ResolveWithReader fetches the current local row via reader and resolves
// the change, wrapping read failures so callers can log and drop the
// message rather than crash on a transient sink error.
func ResolveWithReader(ctx context.Context, reader LocalReader, table string, primaryKey any, op envelope.Op, after envelope.Row) (Decision, error) {
	local, err := reader.Read(ctx, table, primaryKey)
	if err != nil {
		return Decision{}, fmt.Errorf("read local row for %s/%v: %w", table, primaryKey, err)
	}
	return Resolve(local, op, after), nil
}
