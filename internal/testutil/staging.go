package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// StagedFolder writes a folder of files under root for tests that drive the
// real filesystem.
type StagedFolder struct {
	t     *testing.T
	files map[string][]byte
	mtime time.Time
	root  string
	name  string
}

// NewStagedFolder starts a folder called name under root.
func NewStagedFolder(t *testing.T, root, name string) *StagedFolder {
	t.Helper()
	return &StagedFolder{t: t, root: root, name: name, files: map[string][]byte{}}
}

// WithFile adds a file of size bytes at the slash-separated relative path.
func (s *StagedFolder) WithFile(rel string, size int) *StagedFolder {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	s.files[rel] = data
	return s
}

// WithContent adds a file with the given content.
func (s *StagedFolder) WithContent(rel, content string) *StagedFolder {
	s.files[rel] = []byte(content)
	return s
}

// ModifiedAt sets the modification time of the folder and its files.
func (s *StagedFolder) ModifiedAt(t time.Time) *StagedFolder {
	s.mtime = t
	return s
}

// Write creates the folder and returns its path.
func (s *StagedFolder) Write() string {
	s.t.Helper()

	dir := filepath.Join(s.root, s.name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		s.t.Fatalf("failed to create %s: %v", dir, err)
	}
	for rel, data := range s.files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			s.t.Fatalf("failed to create %s: %v", filepath.Dir(full), err)
		}
		if err := os.WriteFile(full, data, 0o600); err != nil {
			s.t.Fatalf("failed to write %s: %v", full, err)
		}
		if !s.mtime.IsZero() {
			if err := os.Chtimes(full, s.mtime, s.mtime); err != nil {
				s.t.Fatalf("failed to set times on %s: %v", full, err)
			}
		}
	}
	if !s.mtime.IsZero() {
		if err := os.Chtimes(dir, s.mtime, s.mtime); err != nil {
			s.t.Fatalf("failed to set times on %s: %v", dir, err)
		}
	}
	return dir
}
