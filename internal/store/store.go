// Package store persists the door position and light states across restarts.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Record is the persisted board state.
type Record struct {
	Door         string `json:"door_state"`
	IndoorLight  bool   `json:"indoor_light"`
	OutdoorLight bool   `json:"outdoor_light"`
}

// File is a JSON state file shared by the door and light controllers.
// Writes go to a temporary file that is renamed over the original.
type File struct {
	path string

	mu     sync.Mutex
	record Record
}

// New creates a File for path. Nothing is read until Load.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Load reads the state file. ok is false when the file does not exist;
// the cached record is then left empty.
func (f *File) Load() (rec Record, ok bool, err error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("reading state file: %w", err)
	}

	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("parsing state file: %w", err)
	}

	f.mu.Lock()
	f.record = rec
	f.mu.Unlock()
	return rec, true, nil
}

// Current returns the cached record.
func (f *File) Current() Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record
}

// Update applies fn to the cached record and writes the result.
// The cache is updated even if the write fails.
func (f *File) Update(fn func(*Record)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fn(&f.record)

	data, err := json.MarshalIndent(f.record, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating state dir: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
