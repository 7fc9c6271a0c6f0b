package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// FileSystemArchive saves raw page snapshots to disk so a failed parse can
// be replayed after the fact.
type FileSystemArchive struct {
	root   string
	logger *zap.Logger
}

// NewFileSystemArchive returns an archive rooted at dir. One subdirectory
// is created per run, named after the run's start time.
func NewFileSystemArchive(dir string, logger *zap.Logger) (*FileSystemArchive, error) {
	root := filepath.Join(dir, time.Now().UTC().Format("20060102T150405"))
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create archive dir %s: %w", root, err)
	}
	return &FileSystemArchive{root: root, logger: logger}, nil
}

// SavePage writes one page snapshot and returns its path.
func (a *FileSystemArchive) SavePage(page int, body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("empty page body")
	}
	target := filepath.Join(a.root, fmt.Sprintf("page-%03d.html", page))
	if err := os.WriteFile(target, body, 0o600); err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", target, err)
	}
	return target, nil
}
