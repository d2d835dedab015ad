package library

import (
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is one catalog entry pointing at a content blob owned by the store.
// JSON field names are stable; unknown fields in persisted snapshots are
// tolerated for forward compatibility.
type Record struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	SourceID     string    `json:"sourceIdentifier"`
	FilePath     string    `json:"filePath"`
	Tags         []string  `json:"tags"`
	Summary      string    `json:"summary,omitempty"`
	DateAdded    time.Time `json:"dateAdded"`
	DateModified time.Time `json:"dateModified"`
}

// NewRecord builds a record with a fresh ID and both timestamps set to now.
func NewRecord(title, source, filePath string, tags []string) Record {
	now := time.Now().UTC()
	return Record{
		ID:           uuid.NewString(),
		Title:        title,
		SourceID:     source,
		FilePath:     filePath,
		Tags:         normalizeTags(tags),
		DateAdded:    now,
		DateModified: now,
	}
}

// normalizeTags lowercases, trims and deduplicates a tag list.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" && !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}
	return out
}

// HasTag reports whether the record carries tag (case-insensitive).
func (r Record) HasTag(tag string) bool {
	return slices.Contains(r.Tags, strings.ToLower(strings.TrimSpace(tag)))
}

// ContentType returns the content-type label derived from the blob's file
// extension, e.g. "md".
func (r Record) ContentType() string {
	return strings.TrimPrefix(filepath.Ext(r.FilePath), ".")
}

// clone returns a copy that shares no mutable state with the original.
func (r Record) clone() Record {
	r.Tags = slices.Clone(r.Tags)
	return r
}
