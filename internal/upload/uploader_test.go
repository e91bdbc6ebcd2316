package upload

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nesturechat/internal/models"
)

func TestDiskUploadUniqueNames(t *testing.T) {
	dir := t.TempDir()
	d := NewDisk(dir, 1024)
	att := models.Attachment{Name: "notes.txt", MimeType: "text/plain", Size: 5}

	first, err := d.Upload(context.Background(), "visitor", att, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	second, err := d.Upload(context.Background(), "visitor", att, strings.NewReader("again"))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if first == second {
		t.Fatalf("expected unique paths, got %s twice", first)
	}
	if filepath.Base(second) != "notes (1).txt" {
		t.Fatalf("unexpected second name %s", filepath.Base(second))
	}
	data, err := os.ReadFile(first)
	if err != nil || string(data) != "hello" {
		t.Fatalf("content mismatch: %q %v", data, err)
	}
}

func TestDiskUploadRejectsOversizeAndBadOwner(t *testing.T) {
	d := NewDisk(t.TempDir(), 4)
	att := models.Attachment{Name: "big.txt"}
	if _, err := d.Upload(context.Background(), "v", att, strings.NewReader("too large")); err == nil {
		t.Fatalf("expected size error")
	}
	if _, err := d.Upload(context.Background(), "../escape", att, strings.NewReader("x")); err == nil {
		t.Fatalf("expected owner error")
	}
}

func TestCleanupExpired(t *testing.T) {
	dir := t.TempDir()
	d := NewDisk(dir, 0)
	path, err := d.Upload(context.Background(), "v1", models.Attachment{Name: "old.txt"}, strings.NewReader("x"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	fresh, err := d.Upload(context.Background(), "v2", models.Attachment{Name: "new.txt"}, strings.NewReader("y"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	removed, err := d.CleanupExpired(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "v1")); !os.IsNotExist(err) {
		t.Fatalf("empty owner dir should be pruned")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file removed: %v", err)
	}
}

func TestNoopUpload(t *testing.T) {
	loc, err := Noop{}.Upload(context.Background(), "v", models.Attachment{Name: "a"}, strings.NewReader("x"))
	if err != nil || loc != "" {
		t.Fatalf("noop upload returned %q %v", loc, err)
	}
}
