package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()

	f1 := filepath.Join(dir, "f1.txt")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}

	sizes, total, err := DiskUsage(map[string]string{
		"database": f1,
		"bleve":    sub,
		"vectors":  filepath.Join(dir, "nonexistent"),
		"history":  "",
	})
	if err != nil {
		t.Fatal(err)
	}
	if sizes["database"] != 5 {
		t.Errorf("file: got %d bytes, want 5", sizes["database"])
	}
	if sizes["bleve"] != 3 {
		t.Errorf("dir: got %d bytes, want 3", sizes["bleve"])
	}
	if sizes["vectors"] != 0 || sizes["history"] != 0 {
		t.Errorf("missing and empty paths should be 0: %v", sizes)
	}
	if total != 8 {
		t.Errorf("total: got %d, want 8", total)
	}
}
