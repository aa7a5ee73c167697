// Package store persists completed-job records to a flat JSON file in
// the per-user application data directory. The file is a snapshot, not
// a log: every save rewrites the full record set atomically
// (temp file + rename) so a crash mid-write never corrupts prior state.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one persisted completed-job entry. It intentionally keeps
// only what survives a restart: identity, type, timestamps, and the
// result payload.
type Record struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	MediaPath string          `json:"mediaPath,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	StartedAt *time.Time      `json:"startedAt,omitempty"`
	EndedAt   *time.Time      `json:"endedAt,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

type Store struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Save atomically rewrites the snapshot file with the given records.
func (s *Store) Save(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if records == nil {
		records = []Record{}
	}
	// Plain Marshal: indenting would reformat the embedded raw result
	// payloads, so records would not round-trip byte for byte.
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal job records: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".completed_jobs-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot file. A missing or unparseable file is
// treated as "no prior state", never as a fatal error.
func (s *Store) Load() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil
	}
	return records
}
