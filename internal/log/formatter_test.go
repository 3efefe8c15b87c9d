package log

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatHumanReadable(t *testing.T) {
	f := NewFormatter(true)
	entry := &logrus.Entry{
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "consumer loop starting",
		Data:    logrus.Fields{"topic": "sync.products"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Contains(t, string(out), "03:04:05.000")
	assert.Contains(t, string(out), "[INFO]")
	assert.Contains(t, string(out), "consumer loop starting")
	assert.Contains(t, string(out), "topic=sync.products")
}

func TestFormatJSON(t *testing.T) {
	f := NewFormatter(false)
	entry := &logrus.Entry{
		Time:    time.Now(),
		Level:   logrus.ErrorLevel,
		Message: "upsert failed",
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"msg":"upsert failed"`)
}

func TestFormatHumanSortsFieldsByKey(t *testing.T) {
	f := NewFormatter(true)
	entry := &logrus.Entry{
		Time:    time.Now(),
		Level:   logrus.DebugLevel,
		Message: "decode skip",
		Data:    logrus.Fields{"zebra": 1, "apple": 2},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	line := string(out)
	assert.True(t, indexOf(line, "apple") < indexOf(line, "zebra"))
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
