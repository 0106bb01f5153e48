package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSizes(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "index.db")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	f2 := filepath.Join(dir, "index.db-journal")
	if err := os.WriteFile(f2, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{f1}, 5},
		{"several files", []string{f1, f2}, 8},
		{"missing file is skipped", []string{f1, filepath.Join(dir, "nonexistent")}, 5},
		{"directory is not counted", []string{dir, f2}, 3},
		{"nothing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fileSizes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("fileSizes(%v) = %d, want %d", tt.paths, got, tt.want)
			}
		})
	}
}
