// Package history remembers which URI every saved file came from together
// with the validators the server sent for it, so that a later save can ask
// for a newer version only.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"fetchutils/pkg/cache"
)

// Entry describes one saved file.
type Entry struct {
	URI          string    `json:"uri"`
	LastModified time.Time `json:"last_modified,omitzero"`
	ETag         string    `json:"etag,omitempty"`
	Size         int64     `json:"size"`
	Saved        time.Time `json:"saved"`
}

// Record is an Entry together with the file it describes.
type Record struct {
	Dest string
	Entry
}

// Store is the history kept in a JSON file, keyed by absolute destination
// path. The file is read on first use and only written by Save after a
// change.
// Mutable
type Store struct {
	path    string
	mu      sync.RWMutex
	entries map[string]Entry
	loaded  bool
	dirty   bool
}

func Open(path string) *Store {
	return &Store{path: path}
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

func key(dest string) string {
	if abs, err := filepath.Abs(dest); err == nil {
		return abs
	}
	return filepath.Clean(dest)
}

func (s *Store) Get(dest string) (Entry, bool, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		e, ok := s.entries[key(dest)]
		return e, ok, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return Entry{}, false, err
	}
	e, ok := s.entries[key(dest)]
	return e, ok, nil
}

// Put records e for dest, replacing what was known before.
func (s *Store) Put(dest string, e Entry) error {
	return s.modify(func(entries map[string]Entry) {
		entries[key(dest)] = e
	})
}

func (s *Store) Remove(dest string) error {
	return s.modify(func(entries map[string]Entry) {
		delete(entries, key(dest))
	})
}

// Prune forgets every entry whose file no longer exists and returns their
// destinations.
func (s *Store) Prune() ([]string, error) {
	var gone []string
	err := s.modify(func(entries map[string]Entry) {
		for dest := range entries {
			if _, err := os.Stat(dest); os.IsNotExist(err) {
				gone = append(gone, dest)
				delete(entries, dest)
			}
		}
	})
	sort.Strings(gone)
	return gone, err
}

// List returns all records sorted by destination.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(s.entries))
	for dest, e := range s.entries {
		records = append(records, Record{Dest: dest, Entry: e})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Dest < records[j].Dest })
	return records, nil
}

// IsDirty reports whether there are changes Save has not written yet.
func (s *Store) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *Store) modify(fn func(map[string]Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return err
	}
	fn(s.entries)
	s.dirty = true
	return nil
}

// Reload discards unsaved changes and reads the file again.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded, s.dirty, s.entries = false, false, nil
	return s.ensureLoadedLocked()
}

// ensureLoadedLocked reads the file unless that happened already. A missing
// file is an empty history. Must be called with the write lock held.
func (s *Store) ensureLoadedLocked() error {
	if s.loaded {
		return nil
	}

	entries := make(map[string]Entry)
	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return fmt.Errorf("failed to read history: %w", err)
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("failed to parse history %s: %w", s.path, err)
		}
	}

	s.entries = entries
	s.loaded = true
	return nil
}

// Save writes the history back if it changed. The file is replaced
// atomically under a lock file shared with other processes.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	unlock, err := cache.Lock(s.path)
	if err != nil {
		return err
	}
	defer unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace history: %w", err)
	}

	s.dirty = false
	return nil
}
