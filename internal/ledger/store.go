// Package ledger implements the append-only JSONL stores the pipeline
// journals to: raw alerts, parsed alerts, execution plans, the dedupe
// ledger and the position log. Durability model: append and sync before
// reporting success, replay front-to-back on open to rebuild in-memory
// projections.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is a single append-only line-delimited JSON file. One process
// writes it; concurrent appends within the process are serialized.
type Store struct {
	mu   sync.Mutex
	path string
	file *os.File
	enc  *json.Encoder
}

// Open creates the parent directory if needed and opens the file for
// appending.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return &Store{path: path, file: file, enc: json.NewEncoder(file)}, nil
}

// Append writes one record and syncs it to disk before returning. A nil
// error means the record survives a crash.
func (s *Store) Append(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	return nil
}

// Replay reads the file start to end, calling fn for each line. Corrupt
// trailing lines (torn writes) are skipped, not fatal.
func (s *Store) Replay(fn func(line json.RawMessage) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("replay %s: %w", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		if err := fn(raw); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("replay %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
