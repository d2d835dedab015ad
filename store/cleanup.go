package store

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// CleanupOrphans removes backup files whose primary file no longer exists,
// along with stale checksum records. It is advisory maintenance: the primary
// file's existence is the sole source of truth and is re-checked under the
// path lock immediately before each removal, so a backup is never deleted
// while its primary is still alive.
func (s *Store) CleanupOrphans(ctx context.Context) error {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			primary := filepath.Join(s.docsDir, name)
			if _, err := os.Stat(primary); err == nil {
				return nil
			}

			lk := s.pathLock(primary)
			lk.Lock()
			defer lk.Unlock()

			// The primary may have been written between the scan
			// and acquiring the lock.
			if _, err := os.Stat(primary); err == nil {
				return nil
			}

			if err := os.Remove(filepath.Join(s.backupDir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.Remove(s.checksumPath(primary)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			log.Printf("removed orphaned backup %s\n", name)
			return nil
		})
	}
	return g.Wait()
}
