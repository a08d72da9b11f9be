package feed

import (
	"strings"
)

// FilterFields lists the item fields a ConfigFilter may refer to.
var FilterFields = map[string]bool{
	"title":   true,
	"summary": true,
	"url":     true,
	"source":  true,
}

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run returns the items that pass every filter, keeping their order.
func (f *Filterer) Run(items []Item, filters []ConfigFilter) []Item {
	if len(filters) == 0 {
		return items
	}

	kept := make([]Item, 0, len(items))
	for _, item := range items {
		if f.isExcluded(item, filters) {
			continue
		}
		kept = append(kept, item)
	}

	return kept
}

func (f *Filterer) isExcluded(item Item, filters []ConfigFilter) bool {
	for _, filter := range filters {
		value := f.getFieldValue(item, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true
			}
		}
	}

	return false
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(item Item, field string) string {
	switch field {
	case "title":
		return item.Title
	case "summary":
		return item.Summary
	case "url":
		return item.URL
	case "source":
		return item.Source
	default:
		return ""
	}
}
