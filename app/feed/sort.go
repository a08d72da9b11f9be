package feed

import (
	"slices"
)

// SortByRecency orders items most recent first. Items with equal timestamps
// keep their relative order.
func SortByRecency(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
}
