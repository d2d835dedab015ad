package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// decodeRecords validates that data is well-formed JSON before deserializing,
// so a half-written or corrupted snapshot is detected rather than partially
// applied. Unknown fields are tolerated.
func decodeRecords(data []byte) ([]Record, error) {
	if !json.Valid(data) {
		return nil, errors.New("snapshot is not valid JSON")
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return records, nil
}

func encodeRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.MarshalIndent(records, "", "  ")
}

// writeSnapshot writes the current collection to path via a temporary file
// and an atomic rename.
func (l *Library) writeSnapshot(path string) error {
	data, err := encodeRecords(l.records)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// persistLocked serializes the collection to a temporary file, copies the
// current primary snapshot to the backup location, then renames the temporary
// file over the primary. The backup therefore always holds the previous good
// snapshot, never a half-written one.
func (l *Library) persistLocked() error {
	data, err := encodeRecords(l.records)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".index-*")
	if err != nil {
		return fmt.Errorf("persisting index: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("persisting index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persisting index: %w", err)
	}

	// Back up the prior snapshot only once a prior snapshot exists.
	if prior, err := os.ReadFile(l.path); err == nil {
		if err := os.WriteFile(l.backupPath, prior, 0644); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("backing up index: %w", err)
		}
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("replacing index: %w", err)
	}
	return nil
}

// Load reads the primary snapshot, falling back to the backup if the primary
// is unreadable or corrupted, then prunes records whose backing file has
// disappeared. A missing primary snapshot means a fresh, empty index.
//
// Load never leaves the library unusable: if both snapshots are lost it
// returns ErrNoRecovery but the library is Ready with an empty collection.
func (l *Library) Load() error {
	var err error
	l.do(func() { err = l.loadLocked() })
	return err
}

func (l *Library) loadLocked() error {
	l.state = StateLoading
	defer func() {
		l.state = StateReady
		l.emit(Event{Kind: EventLoaded})
	}()

	data, err := os.ReadFile(l.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		l.records = nil
		return nil
	case err != nil:
		log.Printf("unreadable index %s: %v\n", l.path, err)
		if rerr := l.recoverFromBackupLocked(); rerr != nil {
			l.records = nil
			return rerr
		}
	default:
		records, derr := decodeRecords(data)
		if derr != nil {
			log.Printf("corrupted index %s: %v\n", l.path, derr)
			if rerr := l.recoverFromBackupLocked(); rerr != nil {
				l.records = nil
				return rerr
			}
		} else {
			l.records = records
		}
	}

	l.pruneMissingLocked()
	return nil
}

// recoverFromBackupLocked loads the backup snapshot and, if valid, rewrites
// the primary snapshot with it. It deliberately bypasses persistLocked so the
// corrupted primary is never copied over the good backup.
func (l *Library) recoverFromBackupLocked() error {
	data, err := os.ReadFile(l.backupPath)
	if err != nil {
		return fmt.Errorf("%w: reading backup: %w", ErrNoRecovery, err)
	}
	records, derr := decodeRecords(data)
	if derr != nil {
		return fmt.Errorf("%w: %w", ErrNoRecovery, derr)
	}

	l.records = records
	if err := l.writeSnapshot(l.path); err != nil {
		log.Printf("unable to rewrite primary index after recovery: %v\n", err)
	}
	log.Printf("index restored from backup (%d records)\n", len(records))
	return nil
}

// pruneMissingLocked drops records whose content blob no longer exists and
// re-persists the pruned collection.
func (l *Library) pruneMissingLocked() {
	kept := l.records[:0]
	dropped := 0
	for _, rec := range l.records {
		if _, err := os.Stat(rec.FilePath); errors.Is(err, os.ErrNotExist) {
			log.Printf("dropping record %q, missing file %s\n", rec.Title, rec.FilePath)
			dropped++
			continue
		}
		kept = append(kept, rec)
	}
	l.records = kept

	if dropped > 0 {
		if err := l.persistLocked(); err != nil {
			log.Printf("unable to persist pruned index: %v\n", err)
		}
	}
}

// Export writes the current collection to path for backup portability.
func (l *Library) Export(path string) error {
	var err error
	l.do(func() {
		if l.state != StateReady {
			err = ErrNotReady
			return
		}
		var data []byte
		if data, err = encodeRecords(l.records); err != nil {
			return
		}
		err = os.WriteFile(path, data, 0644)
	})
	return err
}

// ImportFrom merges the records serialized at path into the collection,
// deduplicating by source identifier exactly like Add, and persists once.
// Record IDs are preserved for sources not already present.
func (l *Library) ImportFrom(path string) (int, error) {
	var (
		count int
		err   error
	)
	l.do(func() {
		if l.state != StateReady {
			err = ErrNotReady
			return
		}
		var data []byte
		if data, err = os.ReadFile(path); err != nil {
			return
		}
		var incoming []Record
		if incoming, err = decodeRecords(data); err != nil {
			return
		}

		events := make([]Event, 0, len(incoming))
		for _, rec := range incoming {
			events = append(events, l.upsertLocked(rec.clone()))
		}
		count = len(incoming)

		if err = l.persistLocked(); err != nil {
			return
		}
		for _, event := range events {
			l.emit(event)
		}
	})
	return count, err
}
