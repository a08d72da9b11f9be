package state

import (
	"fmt"
	"time"
)

// Precision is the resolution at which watermarks are persisted. Timestamps
// compared against a loaded watermark must be truncated to it.
const Precision = time.Microsecond

// timestampLayout matches the ISO-8601 form written by Python's
// datetime.isoformat for aware values, e.g. 2024-01-02T03:04:05.123456+00:00.
const timestampLayout = "2006-01-02T15:04:05.999999-07:00"

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func formatTimestamp(t time.Time) string {
	return t.Truncate(Precision).Format(timestampLayout)
}

// parseTimestamp accepts RFC 3339 values (offset or Z) and naive ISO-8601
// values, which are taken as UTC.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999999Z07:00", s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
