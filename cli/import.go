package cli

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/abiiranathan/doclib/library"
	"github.com/abiiranathan/doclib/store"
)

// ImportDocument persists already-extracted document content and records its
// metadata, returning the stored record. Re-importing a source identifier
// replaces the existing record and deletes the blob it used to point at, so
// re-imports never leak content files.
func ImportDocument(st *store.Store, lib *library.Library, title, source string, content []byte, tags []string) (library.Record, error) {
	previous, replacing := lib.BySource(source)

	name := st.GenerateUniqueName(source, ".md")
	path, err := st.Save(content, name)
	if err != nil {
		return library.Record{}, err
	}

	rec := library.NewRecord(title, source, path, tags)
	if err := lib.Add(rec); err != nil {
		// The blob is unreachable without a record; remove it again.
		if derr := st.Delete(path); derr != nil {
			log.Printf("unable to remove unrecorded blob %s: %v\n", path, derr)
		}
		return library.Record{}, err
	}

	if replacing && previous.FilePath != path {
		if err := st.Delete(previous.FilePath); err != nil {
			log.Printf("unable to remove replaced blob %s: %v\n", previous.FilePath, err)
		}
	}

	stored, ok := lib.BySource(source)
	if !ok {
		return library.Record{}, library.ErrRecordNotFound
	}
	return stored, nil
}

// VerifyReport summarizes a bulk integrity check.
type VerifyReport struct {
	Checked int
	Healthy int
	Lost    []library.Record
}

// VerifyAll loads every record's blob, letting the store heal recoverable
// corruption as a side effect, and reports documents that are lost for good.
func VerifyAll(ctx context.Context, st *store.Store, lib *library.Library, workers int) (*VerifyReport, error) {
	records := lib.Snapshot()

	var (
		healthy atomic.Int64
		lostCh  = make(chan library.Record, len(records))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for i := range records {
		rec := records[i]
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if _, err := st.Load(rec.FilePath); err != nil {
				if errors.Is(err, store.ErrCorrupted) {
					lostCh <- rec
					return nil
				}
				return err
			}
			healthy.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(lostCh)

	report := &VerifyReport{
		Checked: len(records),
		Healthy: int(healthy.Load()),
	}
	for rec := range lostCh {
		report.Lost = append(report.Lost, rec)
	}
	return report, nil
}
