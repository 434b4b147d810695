// Package report delivers finished deployment records: to a JSON file, the
// history store and an external registry.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pendergraft/deployer/internal/config"
	"github.com/pendergraft/deployer/internal/deployments/domain"
)

// ErrPersist is returned when a record could not be written.
var ErrPersist = errors.New("persisting deployment record")

// FileSink writes the record as indented JSON. A failed record goes to the
// derived "<base>.failed.json" path so a good record is never overwritten.
type FileSink struct {
	path string
	// written is the path of the last successful write.
	written string
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// PathFor returns where record will be written.
func (s *FileSink) PathFor(record *domain.Record) string {
	if record.Succeeded() {
		return s.path
	}
	return config.FailedPath(s.path)
}

// Written returns the path of the last file written, if any.
func (s *FileSink) Written() string {
	return s.written
}

// Write replaces the target file atomically: readers see the old file or
// the complete new one.
func (s *FileSink) Write(ctx context.Context, record *domain.Record) error {
	path := s.PathFor(record)

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: create directory: %v", ErrPersist, err)
		}
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrPersist, err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write: %v", ErrPersist, err)
	}

	// Fsync to ensure data is on disk before rename
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: fsync: %v", ErrPersist, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close: %v", ErrPersist, err)
	}

	// CreateTemp uses 0600
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: chmod: %v", ErrPersist, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename: %v", ErrPersist, err)
	}

	s.written = path
	return nil
}
