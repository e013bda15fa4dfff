package localfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"docforge/internal/ports"
)

func put(t *testing.T, s *Store, key, body string, metadata map[string]string) {
	t.Helper()
	_, err := s.Put(context.Background(), ports.PutObjectInput{
		Key:         key,
		ContentType: "application/pdf",
		Reader:      bytes.NewReader([]byte(body)),
		Size:        int64(len(body)),
		Metadata:    metadata,
	})
	if err != nil {
		t.Fatalf("put %s failed: %v", key, err)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	put(t, s, "tenant-1/exports/job.pdf", "pdf-bytes", map[string]string{"cached-at": "2026-01-02T15:04:05Z"})

	rc, info, err := s.Get(context.Background(), "tenant-1/exports/job.pdf")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "pdf-bytes" {
		t.Errorf("unexpected body: %q", data)
	}
	if info.ContentType != "application/pdf" {
		t.Errorf("unexpected content type: %s", info.ContentType)
	}
	if info.Metadata["cached-at"] != "2026-01-02T15:04:05Z" {
		t.Errorf("metadata lost: %v", info.Metadata)
	}
}

func TestStatMissingObject(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.Stat(context.Background(), "nope")
	if !ports.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestCopyCarriesMetadata(t *testing.T) {
	s := New(t.TempDir())
	put(t, s, "cache/abc.pdf", "cached", map[string]string{"ttl-hours": "24"})

	if err := s.Copy(context.Background(), "cache/abc.pdf", "tenant-1/exports/job.pdf"); err != nil {
		t.Fatalf("copy failed: %v", err)
	}

	info, err := s.Stat(context.Background(), "tenant-1/exports/job.pdf")
	if err != nil {
		t.Fatalf("stat after copy failed: %v", err)
	}
	if info.Metadata["ttl-hours"] != "24" {
		t.Errorf("metadata did not travel with the copy: %v", info.Metadata)
	}
}

func TestCopyMissingSource(t *testing.T) {
	s := New(t.TempDir())

	err := s.Copy(context.Background(), "missing", "dst")
	if !ports.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	put(t, s, "doomed.pdf", "x", nil)

	if err := s.Delete(context.Background(), "doomed.pdf"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Stat(context.Background(), "doomed.pdf"); !ports.IsNotFound(err) {
		t.Errorf("expected not-found after delete, got %v", err)
	}
	// The sidecar goes with it.
	if _, err := os.Stat(filepath.Join(root, "doomed.pdf.meta.json")); !os.IsNotExist(err) {
		t.Error("sidecar survived the delete")
	}
}

func TestDeleteMissing(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Delete(context.Background(), "nope"); !ports.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}
