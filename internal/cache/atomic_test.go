package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "features.geojson")

	if err := WriteFileAtomic(path, []byte("v1")); err != nil {
		t.Fatalf("first write error: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("v2")); err != nil {
		t.Fatalf("second write error: %v", err)
	}

	body, err := os.ReadFile(path)
	if err != nil || string(body) != "v2" {
		t.Fatalf("expected v2, got %q err=%v", body, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("临时文件应被清理: %d entries", len(entries))
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}
}
