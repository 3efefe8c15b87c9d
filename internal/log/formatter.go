// Package log provides the logrus formatter shared by every binary in this
// repository.
package log

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Formatter renders log entries as "time [LEVEL] message key=value ..." when
// human is true, or delegates to logrus.JSONFormatter otherwise. Production
// deployments behind a log shipper want JSON; local runs want something a
// person can read in a terminal.
type Formatter struct {
	human bool
	json  logrus.JSONFormatter
}

// NewFormatter returns a Formatter. human selects the terminal-friendly
// rendering; set it false to get structured JSON lines.
func NewFormatter(human bool) *Formatter {
	return &Formatter{
		human: human,
		json:  logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"},
	}
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	if !f.human {
		return f.json.Format(entry)
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s",
		entry.Time.Format("15:04:05.000"),
		strings.ToUpper(entry.Level.String()),
		entry.Message)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}
