// Package envelope decodes raw change-data-capture messages from the bus
// into a normalized Change record.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/regionsync/inbound-sync/internal/config"
)

// Op is a CDC operation code.
type Op string

const (
	OpCreate Op = "c"
	OpUpdate Op = "u"
	OpDelete Op = "d"
)

// Row is a mapping from column name to decoded value.
type Row map[string]any

// Change is the normalized output of the decoder, consumed by the policy
// gate, privacy filter, resolver and sink writer.
type Change struct {
	Table             string
	PrimaryKey        any
	Op                Op
	After             Row
	SyncOrigin        config.Region
	SourceTimestampMs int64
	HasSourceTime     bool
}

// wireEnvelope models both accepted JSON shapes: wrapped ({"payload":
// {...}}) and flat ({...}). Parsing into both the embedded struct and the
// pointer field, then picking whichever is non-nil, turns the two shapes
// into a single decode step.
type wireEnvelope struct {
	Payload *wirePayload `json:"payload"`
	wirePayload
}

type wirePayload struct {
	Op         Op             `json:"op"`
	After      map[string]any `json:"after"`
	SyncOrigin string         `json:"_sync_origin"`
}

type wireKey struct {
	ID any `json:"id"`
}

// SkipReason explains why a message was not decoded into a Change. A
// SkipReason is not an error — it is an expected, loggable outcome.
type SkipReason string

const (
	SkipTombstone     SkipReason = "tombstone"
	SkipBadJSON       SkipReason = "bad_json"
	SkipMissingOrigin SkipReason = "missing_sync_origin"
	SkipMissingID     SkipReason = "missing_id"
)

// SkipError wraps a SkipReason so callers can branch on it without string
// comparison while still getting an ordinary error for logging.
type SkipError struct {
	Reason SkipReason
	Detail string
}

func (e *SkipError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

const topicPrefix = "sync."

// TableFromTopic strips the fixed "sync." prefix from a bus topic name.
func TableFromTopic(topic string) string {
	return strings.TrimPrefix(topic, topicPrefix)
}

// Decode parses a raw bus message (key + value bytes, topic string) into a
// normalized Change, or returns a *SkipError describing why the message
// was discarded. A nil value is a tombstone (compaction marker) and is
// always skipped.
func Decode(topic string, key, value []byte) (*Change, error) {
	if len(value) == 0 {
		return nil, &SkipError{Reason: SkipTombstone}
	}

	var wire wireEnvelope
	if err := json.Unmarshal(value, &wire); err != nil {
		return nil, &SkipError{Reason: SkipBadJSON, Detail: err.Error()}
	}

	payload := wire.wirePayload
	if wire.Payload != nil {
		payload = *wire.Payload
	}

	if payload.SyncOrigin == "" {
		return nil, &SkipError{Reason: SkipMissingOrigin}
	}

	change := &Change{
		Table:      TableFromTopic(topic),
		Op:         payload.Op,
		After:      Row(payload.After),
		SyncOrigin: config.Region(payload.SyncOrigin),
	}

	pk, err := primaryKey(key, change.After)
	if err != nil {
		return nil, err
	}
	change.PrimaryKey = pk

	if ms, ok := sourceTimestampMs(change.After); ok {
		change.SourceTimestampMs = ms
		change.HasSourceTime = true
	}

	return change, nil
}

func primaryKey(key []byte, after Row) (any, error) {
	if len(key) > 0 {
		var k wireKey
		if err := json.Unmarshal(key, &k); err == nil && k.ID != nil {
			return k.ID, nil
		}
	}
	if after != nil {
		if id, ok := after["id"]; ok && id != nil {
			return id, nil
		}
	}
	return nil, &SkipError{Reason: SkipMissingID}
}

// sourceTimestampMs derives the source timestamp from after.updated_at
// (preferred) or after.created_at, applying the microsecond-to-millisecond
// normalization rule.
func sourceTimestampMs(after Row) (int64, bool) {
	for _, col := range []string{"updated_at", "created_at"} {
		raw, ok := after[col]
		if !ok || raw == nil {
			continue
		}
		n, ok := toInt64(raw)
		if !ok {
			continue
		}
		return NormalizeTimestampMs(n), true
	}
	return 0, false
}

// NormalizeTimestampMs applies the microsecond-epoch rule: integers larger
// than 10^11 are microseconds since epoch and are divided down to
// milliseconds; anything else is assumed to already be milliseconds.
func NormalizeTimestampMs(v int64) int64 {
	const microThreshold = 100_000_000_000 // 10^11
	if v > microThreshold {
		return v / 1000
	}
	return v
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
