// Package store persists document content on disk. Every blob is written
// three ways: the primary file, a mirrored backup copy and a sha256 checksum.
// Reads verify the checksum and transparently heal the primary file from the
// backup when the bytes no longer match.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const checksumDirName = ".checksums"

var (
	// ErrWriteFailed signals that the underlying filesystem write failed.
	// The content must not be considered saved.
	ErrWriteFailed = errors.New("store: write failed")

	// ErrCorrupted signals a checksum mismatch that backup recovery could
	// not repair. The document content is lost.
	ErrCorrupted = errors.New("store: content corrupted beyond recovery")

	// ErrRecoveryFailed signals that the backup copy is missing or itself
	// fails checksum verification.
	ErrRecoveryFailed = errors.New("store: backup recovery failed")
)

// Store owns a documents directory, its checksum sidecar directory and a
// backup directory. Writes to the same path are serialized with a per-path
// lock; writes to different paths proceed in parallel.
type Store struct {
	docsDir   string
	backupDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates the on-disk layout under root and returns a ready Store.
func New(root string) (*Store, error) {
	s := &Store{
		docsDir:   filepath.Join(root, "documents"),
		backupDir: filepath.Join(root, "backups"),
		locks:     make(map[string]*sync.Mutex),
	}

	for _, dir := range []string{s.docsDir, filepath.Join(s.docsDir, checksumDirName), s.backupDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return s, nil
}

// DocumentsDir returns the directory holding primary content files.
func (s *Store) DocumentsDir() string { return s.docsDir }

// pathLock returns the mutex guarding writes to one primary path.
func (s *Store) pathLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lk, ok := s.locks[path]
	if !ok {
		lk = &sync.Mutex{}
		s.locks[path] = lk
	}
	return lk
}

func digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (s *Store) checksumPath(primary string) string {
	return filepath.Join(s.docsDir, checksumDirName, filepath.Base(primary)+".checksum")
}

func (s *Store) backupPath(primary string) string {
	return filepath.Join(s.backupDir, filepath.Base(primary))
}

// writeAtomic writes content to a temporary file in the target directory and
// renames it over path, so a crash mid-write never leaves a half-written file.
func writeAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
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

// Save writes content to the primary location, mirrors it to the backup
// location and records its checksum. On success all three are consistent.
// If the primary write fails, neither the backup nor the checksum is touched.
func (s *Store) Save(content []byte, filename string) (string, error) {
	path := filepath.Join(s.docsDir, filename)

	lk := s.pathLock(path)
	lk.Lock()
	defer lk.Unlock()

	if err := writeAtomic(path, content); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrWriteFailed, filename, err)
	}
	if err := writeAtomic(s.backupPath(path), content); err != nil {
		return "", fmt.Errorf("%w: backup of %s: %w", ErrWriteFailed, filename, err)
	}
	if err := writeAtomic(s.checksumPath(path), []byte(digest(content)+"\n")); err != nil {
		return "", fmt.Errorf("%w: checksum of %s: %w", ErrWriteFailed, filename, err)
	}
	return path, nil
}

// Load reads the primary file and verifies it against its checksum record if
// one exists. A read failure or checksum mismatch falls back to the backup
// copy, healing the primary file in the process. If recovery also fails the
// returned error matches ErrCorrupted.
func (s *Store) Load(path string) ([]byte, error) {
	lk := s.pathLock(path)
	lk.Lock()
	defer lk.Unlock()

	content, err := os.ReadFile(path)
	if err != nil {
		log.Printf("unreadable primary %s, trying backup: %v\n", filepath.Base(path), err)
		return s.corruptedFallback(path)
	}

	if want, err := os.ReadFile(s.checksumPath(path)); err == nil {
		if digest(content) != strings.TrimSpace(string(want)) {
			log.Printf("checksum mismatch for %s, trying backup\n", filepath.Base(path))
			return s.corruptedFallback(path)
		}
	}
	return content, nil
}

func (s *Store) corruptedFallback(path string) ([]byte, error) {
	content, err := s.recoverLocked(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return content, nil
}

// Recover restores the primary file from its backup copy and regenerates the
// checksum. The backup itself is verified against the checksum record when
// one exists.
func (s *Store) Recover(path string) ([]byte, error) {
	lk := s.pathLock(path)
	lk.Lock()
	defer lk.Unlock()
	return s.recoverLocked(path)
}

func (s *Store) recoverLocked(path string) ([]byte, error) {
	base := filepath.Base(path)

	content, err := os.ReadFile(s.backupPath(path))
	if err != nil {
		return nil, fmt.Errorf("%w: reading backup of %s: %w", ErrRecoveryFailed, base, err)
	}

	if want, err := os.ReadFile(s.checksumPath(path)); err == nil {
		if digest(content) != strings.TrimSpace(string(want)) {
			return nil, fmt.Errorf("%w: backup of %s fails verification", ErrRecoveryFailed, base)
		}
	}

	// Self-healing is best-effort: the content is good even if the
	// primary cannot be rewritten right now.
	if err := writeAtomic(path, content); err != nil {
		log.Printf("unable to heal primary %s: %v\n", base, err)
	} else if err := writeAtomic(s.checksumPath(path), []byte(digest(content)+"\n")); err != nil {
		log.Printf("unable to rewrite checksum for %s: %v\n", base, err)
	} else {
		log.Printf("restored %s from backup\n", base)
	}
	return content, nil
}

// Delete removes the primary file, its backup and its checksum. The three
// removals are independent so a missing checksum does not block removal of
// the rest.
func (s *Store) Delete(path string) error {
	lk := s.pathLock(path)
	lk.Lock()
	defer lk.Unlock()

	var errs []error
	for _, target := range []string{path, s.backupPath(path), s.checksumPath(path)} {
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GenerateUniqueName derives a collision-free filename from the current
// timestamp and a sanitized fragment of the source identifier, appending a
// numeric suffix until no existing file matches.
func (s *Store) GenerateUniqueName(source, ext string) string {
	ts := time.Now().Format("20060102_150405")
	frag := sanitizeFragment(source)

	name := fmt.Sprintf("%s_%s%s", ts, frag, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(s.docsDir, name)); errors.Is(err, os.ErrNotExist) {
			return name
		}
		name = fmt.Sprintf("%s_%s_%d%s", ts, frag, i, ext)
	}
}

// sanitizeFragment reduces a URL or path to a short filename-safe token.
func sanitizeFragment(source string) string {
	frag := source
	if u, err := url.Parse(source); err == nil && u.Host != "" {
		frag = u.Host
	} else {
		frag = filepath.Base(source)
	}

	var b strings.Builder
	for _, r := range strings.ToLower(frag) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	frag = b.String()

	if frag == "" {
		frag = "document"
	}
	if len(frag) > 40 {
		frag = frag[:40]
	}
	return frag
}
