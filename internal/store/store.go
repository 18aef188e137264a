// Package store persists accepted projects as a single JSON file keyed by
// project id. The file is the source of truth for dedup across restarts.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"fundwatch/internal/scrape"
)

// Store is the durable id-to-record mapping. It is loaded once at startup,
// mutated only by the run controller, and read concurrently by the API.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]scrape.ProjectRecord
	logger  *zap.Logger
}

// Load reads the store file at path. A missing file is a normal empty start,
// not an error.
func Load(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:    path,
		records: make(map[string]scrape.ProjectRecord),
		logger:  logger,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("no existing results file, starting empty", zap.String("path", path))
			return s, nil
		}
		return nil, fmt.Errorf("read results file: %w", err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("decode results file: %w", err)
	}
	logger.Info("loaded results file",
		zap.String("path", path),
		zap.Int("projects", len(s.records)),
	)
	return s, nil
}

// Contains reports whether id has already been accepted.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// Upsert records an accepted project. Records are immutable once stored, so
// inserting an already-present id is a no-op.
func (s *Store) Upsert(rec scrape.ProjectRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return
	}
	s.records[rec.ID] = rec
}

// Persist overwrites the results file with the full mapping. The write goes
// through a temp file and rename so a failed write cannot truncate the
// previously persisted state.
func (s *Store) Persist() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.records, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".results-*")
	if err != nil {
		return fmt.Errorf("create temp results file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp results file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp results file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp results file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace results file: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current mapping for the read path.
func (s *Store) Snapshot() map[string]scrape.ProjectRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]scrape.ProjectRecord, len(s.records))
	for id, rec := range s.records {
		out[id] = rec
	}
	return out
}

// Len returns the number of stored projects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
