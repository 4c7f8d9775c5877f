package imagestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/orbitmesh/satnode/internal/meshnet"
)

func TestSaveImageUsesNamingConvention(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.Unix(1_700_000_123, 0)
	store.now = func() time.Time { return fixed }

	if err := store.SaveImage(meshnet.PeerId(7), []byte("pretend-png-bytes")); err != nil {
		t.Fatal(err)
	}

	wantName := "image_from_satellite_7_1700000123.png"
	data, err := os.ReadFile(filepath.Join(dir, wantName))
	if err != nil {
		t.Fatalf("expected file %s to exist: %v", wantName, err)
	}
	if string(data) != "pretend-png-bytes" {
		t.Errorf("saved content = %q, want %q", data, "pretend-png-bytes")
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "images")
	if _, err := New(dir, nil); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Error("New() did not create the target directory")
	}
}

func TestSaveImageMultipleSourcesDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	store, _ := New(dir, nil)
	store.now = func() time.Time { return time.Unix(1, 0) }

	store.SaveImage(1, []byte("a"))
	store.SaveImage(2, []byte("b"))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	// New always creates the captured/ subdirectory; count files only.
	var files []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e)
		}
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	for _, e := range files {
		if !strings.HasPrefix(e.Name(), "image_from_satellite_") {
			t.Errorf("unexpected file name %s", e.Name())
		}
	}
}
