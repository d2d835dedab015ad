// Package library is the authoritative catalog of document records, held in
// memory and mirrored to a JSON snapshot with an automatic backup. All
// mutation and every read of the authoritative collection run on a single
// serial worker goroutine; callers only ever receive copies.
package library

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// State tracks the index lifecycle. Mutations are only accepted once the
// library is Ready.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

var (
	// ErrNotReady is returned for mutations issued before Load completes.
	ErrNotReady = errors.New("library: index not loaded")

	// ErrRecordNotFound is returned by Update/Remove and the tag helpers
	// when no record matches the given ID. The call is a local no-op.
	ErrRecordNotFound = errors.New("library: record not found")

	// ErrNoRecovery signals that both the primary snapshot and its backup
	// were unreadable. The library starts empty rather than refusing to run.
	ErrNoRecovery = errors.New("library: index corrupted and backup recovery failed")
)

// Library owns the record collection and its on-disk snapshots.
type Library struct {
	path       string // <root>/index.json
	backupPath string // <root>/index_backup.json

	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once

	// Worker-owned state. Only the run goroutine touches these.
	records []Record
	state   State

	subscribers
}

// New constructs a library rooted at the given data directory and starts its
// worker. Call Load before anything else, and Close when finished.
func New(root string) *Library {
	l := &Library{
		path:       filepath.Join(root, "index.json"),
		backupPath: filepath.Join(root, "index_backup.json"),
		ops:        make(chan func()),
		done:       make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Library) run() {
	for op := range l.ops {
		op()
	}
	close(l.done)
}

// do executes op on the worker goroutine and waits for it to finish, so every
// mutation is fully durable before the public call returns.
func (l *Library) do(op func()) {
	ran := make(chan struct{})
	l.ops <- func() {
		op()
		close(ran)
	}
	<-ran
}

// Close stops the worker. Safe to call more than once; the library must not
// be used afterwards.
func (l *Library) Close() {
	l.closeOnce.Do(func() {
		close(l.ops)
		<-l.done
	})
}

// upsertLocked inserts rec, or replaces the record sharing its source
// identifier in the same slot. The existing record's ID and DateAdded are
// preserved so re-importing a source never creates a duplicate identity.
func (l *Library) upsertLocked(rec Record) Event {
	for i := range l.records {
		if l.records[i].SourceID == rec.SourceID {
			rec.ID = l.records[i].ID
			rec.DateAdded = l.records[i].DateAdded
			rec.DateModified = time.Now().UTC()
			l.records[i] = rec
			return Event{Kind: EventUpdated, Record: rec.clone()}
		}
	}
	l.records = append(l.records, rec)
	return Event{Kind: EventAdded, Record: rec.clone()}
}

// Add records rec, replacing any existing record with the same source
// identifier, and persists the snapshot before returning.
func (l *Library) Add(rec Record) error {
	var err error
	l.do(func() {
		if l.state != StateReady {
			err = ErrNotReady
			return
		}
		event := l.upsertLocked(rec.clone())
		err = l.persistLocked()
		l.emit(event)
	})
	return err
}

// Update replaces the record matching rec.ID and bumps its DateModified.
// Returns ErrRecordNotFound (a no-op) for unknown IDs.
func (l *Library) Update(rec Record) error {
	var err error
	l.do(func() {
		if l.state != StateReady {
			err = ErrNotReady
			return
		}
		for i := range l.records {
			if l.records[i].ID == rec.ID {
				rec = rec.clone()
				rec.DateAdded = l.records[i].DateAdded
				rec.DateModified = time.Now().UTC()
				l.records[i] = rec
				err = l.persistLocked()
				l.emit(Event{Kind: EventUpdated, Record: rec.clone()})
				return
			}
		}
		err = ErrRecordNotFound
	})
	return err
}

// Remove deletes the record matching id and persists. It does NOT delete the
// record's content blob: the store is a separate layer and callers that want
// the bytes gone must call store.Delete with the record's FilePath, otherwise
// the blob is orphaned until backup cleanup notices.
func (l *Library) Remove(id string) error {
	var err error
	l.do(func() {
		if l.state != StateReady {
			err = ErrNotReady
			return
		}
		for i := range l.records {
			if l.records[i].ID == id {
				removed := l.records[i]
				l.records = append(l.records[:i], l.records[i+1:]...)
				err = l.persistLocked()
				l.emit(Event{Kind: EventRemoved, Record: removed})
				return
			}
		}
		err = ErrRecordNotFound
	})
	return err
}

// AddTag attaches tag to the record matching id.
func (l *Library) AddTag(id, tag string) error {
	return l.mutateTags(id, func(rec *Record) {
		rec.Tags = normalizeTags(append(rec.Tags, tag))
	})
}

// RemoveTag detaches tag from the record matching id.
func (l *Library) RemoveTag(id, tag string) error {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return l.mutateTags(id, func(rec *Record) {
		kept := rec.Tags[:0]
		for _, t := range rec.Tags {
			if t != tag {
				kept = append(kept, t)
			}
		}
		rec.Tags = kept
	})
}

func (l *Library) mutateTags(id string, mutate func(*Record)) error {
	var err error
	l.do(func() {
		if l.state != StateReady {
			err = ErrNotReady
			return
		}
		for i := range l.records {
			if l.records[i].ID == id {
				mutate(&l.records[i])
				l.records[i].DateModified = time.Now().UTC()
				err = l.persistLocked()
				l.emit(Event{Kind: EventUpdated, Record: l.records[i].clone()})
				return
			}
		}
		err = ErrRecordNotFound
	})
	return err
}

// Snapshot returns a copy of the full record collection, safe to read from
// any goroutine.
func (l *Library) Snapshot() []Record {
	var out []Record
	l.do(func() {
		out = make([]Record, len(l.records))
		for i, rec := range l.records {
			out[i] = rec.clone()
		}
	})
	return out
}

// Get returns the record matching id.
func (l *Library) Get(id string) (Record, bool) {
	var (
		rec Record
		ok  bool
	)
	l.do(func() {
		for i := range l.records {
			if l.records[i].ID == id {
				rec, ok = l.records[i].clone(), true
				return
			}
		}
	})
	return rec, ok
}

// BySource returns the record matching the given source identifier.
func (l *Library) BySource(source string) (Record, bool) {
	var (
		rec Record
		ok  bool
	)
	l.do(func() {
		for i := range l.records {
			if l.records[i].SourceID == source {
				rec, ok = l.records[i].clone(), true
				return
			}
		}
	})
	return rec, ok
}

// SearchTitles returns records whose title contains query, case-insensitive.
// A linear scan is fine at catalog scale (thousands of records, not millions).
func (l *Library) SearchTitles(query string) []Record {
	query = strings.ToLower(query)
	var out []Record
	l.do(func() {
		for i := range l.records {
			if strings.Contains(strings.ToLower(l.records[i].Title), query) {
				out = append(out, l.records[i].clone())
			}
		}
	})
	return out
}

// ByTag returns records carrying the given tag.
func (l *Library) ByTag(tag string) []Record {
	var out []Record
	l.do(func() {
		for i := range l.records {
			if l.records[i].HasTag(tag) {
				out = append(out, l.records[i].clone())
			}
		}
	})
	return out
}
