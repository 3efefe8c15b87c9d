// Package privacy strips and nulls columns that must not cross regions,
// and normalizes temporal encodings in the columns that survive.
package privacy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/regionsync/inbound-sync/internal/envelope"
)

// removedColumns are never written and never appear in the INSERT column
// list.
var removedColumns = map[string]bool{
	"username":           true,
	"email":              true,
	"full_name":          true,
	"phone":              true,
	"user_email":         true,
	"user_phone":         true,
	"user_name":          true,
	"creator_name":       true,
	"creator_email":      true,
	"creator_phone":      true,
	"salesperson_name":   true,
	"salesperson_email":  true,
	"salesperson_phone":  true,
}

// nulledColumns keep their place in the INSERT column list but are always
// bound to null, erasing the cross-region foreign key.
var nulledColumns = map[string]bool{
	"created_by_user_id":  true,
	"salesperson_user_id": true,
}

const epochDayThreshold = 100_000 // 10^5

// Filtered is the (columns, values) pair synthesized from an accepted,
// non-delete change's After row, ready for SQL parameter binding.
type Filtered struct {
	Columns []string
	Values  []any
}

// Apply removes metadata (`_`-prefixed) and private columns, nulls FK
// columns, and normalizes temporal encodings. Column order is stable
// (lexical), so the same column set always yields the same UPSERT statement.
func Apply(after envelope.Row) Filtered {
	names := make([]string, 0, len(after))
	for name := range after {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if removedColumns[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := Filtered{Columns: names, Values: make([]any, len(names))}
	for i, name := range names {
		if nulledColumns[name] {
			out.Values[i] = nil
			continue
		}
		out.Values[i] = normalize(name, after[name])
	}
	return out
}

// normalize converts microsecond-epoch timestamp columns to time.Time and
// small epoch-day integers to ISO date strings, leaving everything else
// untouched.
func normalize(column string, value any) any {
	if value == nil {
		return nil
	}

	if strings.HasSuffix(column, "_at") {
		if n, ok := toInt64(value); ok {
			return time.UnixMilli(envelope.NormalizeTimestampMs(n)).UTC()
		}
		return value
	}

	if strings.Contains(column, "date") {
		if n, ok := toInt64(value); ok && n < epochDayThreshold {
			return epochDayToISODate(n)
		}
	}

	return value
}

// epochDayToISODate renders days-since-epoch as YYYY-MM-DD.
func epochDayToISODate(days int64) string {
	t := time.Unix(days*86400, 0).UTC()
	return fmt.Sprintf("%04d-%02d-%02d", t.Year(), t.Month(), t.Day())
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
