package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"kvcanary/internal/models"
)

// MetricsFile persists the latest canary snapshot as a compact JSON document,
// replacing the whole file on every write.
type MetricsFile struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

// NewMetricsFile prepares the directory holding path. The directory is only
// created here; later writes assume it exists.
func NewMetricsFile(path string, logger *slog.Logger) (*MetricsFile, error) {
	if path == "" {
		return nil, fmt.Errorf("metrics file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure metrics directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsFile{path: path, log: logger}, nil
}

// Path returns the file location.
func (f *MetricsFile) Path() string {
	return f.path
}

// Persist writes snap and logs, rather than returns, any failure.
func (f *MetricsFile) Persist(snap models.Snapshot) {
	if err := f.Write(snap); err != nil {
		f.log.Error("canary: failed to write metrics", "path", f.path, "error", err)
	}
}

// Write encodes snap and atomically replaces the file. On error the previous
// content is left in place.
func (f *MetricsFile) Write(snap models.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	bytes, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", f.path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, bytes, 0o644); err != nil {
		return fmt.Errorf("write temp metrics: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace metrics file: %w", err)
	}
	return nil
}

// Read loads the snapshot currently on disk.
func (f *MetricsFile) Read() (models.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("read metrics: %w", err)
	}
	var snap models.Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("parse metrics: %w", err)
	}
	return snap, nil
}
