package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path with size bytes of repeating fake media content.
// A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	content := bytes.Repeat([]byte("mixdown-test-payload "), int(size/21)+1)
	if err := os.WriteFile(path, content[:size], 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
