package state

import (
	"maps"
	"slices"
	"time"
)

// Watermarks maps a source key to the most recent publication time already
// delivered for that source.
type Watermarks map[string]time.Time

func (w Watermarks) Clone() Watermarks {
	if w == nil {
		return Watermarks{}
	}
	return maps.Clone(w)
}

func (w Watermarks) Get(source string) (time.Time, bool) {
	t, ok := w[source]
	return t, ok
}

// Advance moves the watermark of source to t if t is later than the stored
// value or none is stored. It reports whether the value changed.
func (w Watermarks) Advance(source string, t time.Time) bool {
	if prev, ok := w[source]; ok && !t.After(prev) {
		return false
	}
	w[source] = t
	return true
}

// Keys returns the source keys in sorted order.
func (w Watermarks) Keys() []string {
	return slices.Sorted(maps.Keys(w))
}
