package cron

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store holds the persistent job collection. Jobs keep their submission
// order; the file is rewritten atomically after any structural change.
// Single-writer: only the owning Service mutates it.
type Store struct {
	path string
	jobs []*Job
}

// NewStore creates a store backed by the given file path. Nothing is read
// until Load.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the store file. A missing file yields an empty store; a corrupt
// file is logged and degrades to empty rather than failing startup.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.jobs = nil
			return nil
		}
		return fmt.Errorf("read cron store: %w", err)
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("cron store corrupt, starting empty", "path", s.path, "error", err)
		s.jobs = nil
		return nil
	}
	s.jobs = f.Jobs
	return nil
}

// Save writes the store atomically (temp file + rename).
func (s *Store) Save() error {
	f := storeFile{Version: storeVersion, Jobs: s.jobs}
	if f.Jobs == nil {
		f.Jobs = []*Job{}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cron store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create cron store dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cron store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace cron store: %w", err)
	}
	return nil
}

// Get returns the job with the given id.
func (s *Store) Get(id string) (*Job, bool) {
	for _, j := range s.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return nil, false
}

// Add appends a job in submission order.
func (s *Store) Add(job *Job) {
	s.jobs = append(s.jobs, job)
}

// Remove deletes the job with the given id. Returns false if absent.
func (s *Store) Remove(id string) bool {
	for i, j := range s.jobs {
		if j.ID == id {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			return true
		}
	}
	return false
}

// Jobs returns the jobs in submission order. Callers must not mutate
// entries outside the service lock.
func (s *Store) Jobs() []*Job {
	return s.jobs
}
