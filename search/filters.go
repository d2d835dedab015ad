package search

import (
	"strings"
	"time"

	"github.com/abiiranathan/doclib/library"
)

// Filter is a pure predicate over a record. Filters compose by logical AND.
// The Name identifies a filter so it can be removed from the active set.
type Filter struct {
	Name  string
	Match func(library.Record) bool
}

// TagFilter keeps records carrying the given tag.
func TagFilter(tag string) Filter {
	return Filter{
		Name:  "tag:" + tag,
		Match: func(rec library.Record) bool { return rec.HasTag(tag) },
	}
}

// ContentTypeFilter keeps records whose content-type label matches, e.g. "md".
func ContentTypeFilter(label string) Filter {
	label = strings.ToLower(strings.TrimPrefix(label, "."))
	return Filter{
		Name:  "type:" + label,
		Match: func(rec library.Record) bool { return rec.ContentType() == label },
	}
}

// ModifiedBetween keeps records whose DateModified falls in [from, to].
func ModifiedBetween(from, to time.Time) Filter {
	return Filter{
		Name: "modified:" + from.Format(time.DateOnly) + ".." + to.Format(time.DateOnly),
		Match: func(rec library.Record) bool {
			return !rec.DateModified.Before(from) && !rec.DateModified.After(to)
		},
	}
}

func matchesAll(rec library.Record, filters []Filter) bool {
	for _, filter := range filters {
		if !filter.Match(rec) {
			return false
		}
	}
	return true
}
