package cli

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/abiiranathan/doclib/library"
	"github.com/abiiranathan/doclib/store"
)

func newTestComponents(t *testing.T) (*store.Store, *library.Library) {
	t.Helper()
	root := t.TempDir()

	st, err := store.New(root)
	if err != nil {
		t.Fatal(err)
	}

	lib := library.New(root)
	t.Cleanup(lib.Close)
	if err := lib.Load(); err != nil {
		t.Fatal(err)
	}
	return st, lib
}

func TestImportDocument(t *testing.T) {
	st, lib := newTestComponents(t)
	content := []byte("# Swift Concurrency\n\nactors, tasks, sendable\n")

	rec, err := ImportDocument(st, lib, "Swift Concurrency", "https://example.com/swift", content, []string{"swift"})
	if err != nil {
		t.Fatalf("ImportDocument() failed: %v", err)
	}
	if rec.ID == "" {
		t.Error("imported record has no ID")
	}

	got, err := st.Load(rec.FilePath)
	if err != nil {
		t.Fatalf("Load() of imported blob failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("stored content = %q, want %q", got, content)
	}

	if records := lib.Snapshot(); len(records) != 1 {
		t.Errorf("Snapshot() = %d records, want 1", len(records))
	}
}

func TestReimportReplacesRecordAndBlob(t *testing.T) {
	st, lib := newTestComponents(t)
	source := "https://example.com/doc"

	first, err := ImportDocument(st, lib, "Original", source, []byte("v1"), nil)
	if err != nil {
		t.Fatal(err)
	}

	second, err := ImportDocument(st, lib, "Updated", source, []byte("v2"), nil)
	if err != nil {
		t.Fatal(err)
	}

	if second.ID != first.ID {
		t.Errorf("re-import changed record identity: %s != %s", second.ID, first.ID)
	}
	if records := lib.Snapshot(); len(records) != 1 {
		t.Errorf("Snapshot() = %d records, want 1 after re-import", len(records))
	}

	got, err := st.Load(second.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("content = %q, want updated content", got)
	}

	// The superseded blob must not linger.
	if first.FilePath != second.FilePath {
		if _, err := os.Stat(first.FilePath); !os.IsNotExist(err) {
			t.Errorf("old blob %s still exists after re-import", first.FilePath)
		}
	}
}

func TestRemoveRecordKeepsBlobUntilPurged(t *testing.T) {
	st, lib := newTestComponents(t)

	rec, err := ImportDocument(st, lib, "Doc", "src", []byte("content"), nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := lib.Remove(rec.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(rec.FilePath); err != nil {
		t.Errorf("record removal deleted the blob: %v", err)
	}

	if err := st.Delete(rec.FilePath); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(rec.FilePath); !os.IsNotExist(err) {
		t.Error("blob survived explicit Delete()")
	}
}

func TestVerifyAll(t *testing.T) {
	st, lib := newTestComponents(t)

	if _, err := ImportDocument(st, lib, "Healthy", "src-1", []byte("fine"), nil); err != nil {
		t.Fatal(err)
	}

	corrupt, err := ImportDocument(st, lib, "Corrupt", "src-2", []byte("will be tampered"), nil)
	if err != nil {
		t.Fatal(err)
	}
	// Tamper with the primary; the backup still matches the checksum, so
	// verification heals this one.
	if err := os.WriteFile(corrupt.FilePath, []byte("tampered"), 0644); err != nil {
		t.Fatal(err)
	}

	report, err := VerifyAll(context.Background(), st, lib, 4)
	if err != nil {
		t.Fatalf("VerifyAll() failed: %v", err)
	}
	if report.Checked != 2 || report.Healthy != 2 || len(report.Lost) != 0 {
		t.Errorf("report = %+v, want 2 checked, 2 healthy (one healed)", report)
	}

	got, err := os.ReadFile(corrupt.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "will be tampered" {
		t.Errorf("primary not healed, got %q", got)
	}
}
