// Package history persists per-file size baselines and the log of validation
// runs used by the size anomaly detector.
package history

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrCorruptLog is returned when an existing history file cannot be parsed.
var ErrCorruptLog = errors.New("corrupt history log")

// Entry is one validation run of a monitored file.
type Entry struct {
	// Version identifies the run.
	Version string `yaml:"version"`

	// Size is the file size in bytes observed by the run.
	Size int64 `yaml:"size"`

	// Error is the number of lines that failed validation.
	Error int `yaml:"error"`

	// Last is the baseline the size was compared against.
	Last int64 `yaml:"last"`

	// Delta is the anomaly class: 0 valid, ±1 alert, ±2 error.
	Delta int `yaml:"delta"`

	// Count and Group are the side-effect snapshots of the run.
	Count map[string]int            `yaml:"count,omitempty"`
	Group map[string]map[string]int `yaml:"group,omitempty"`
}

// FileHistory is the persisted record of one monitored file.
type FileHistory struct {
	// Last is the baseline: the last accepted size.
	Last int64   `yaml:"last"`
	Log  []Entry `yaml:"log"`
}

// Store is a history log backed by a single YAML file. Every mutation
// rewrites the whole file. Store is safe for concurrent use within one
// process; separate processes writing the same file still race.
type Store struct {
	mu    sync.Mutex
	path  string
	files map[string]*FileHistory
}

// Load reads the history file at path. A missing or empty file yields an
// empty store; a file that cannot be parsed yields ErrCorruptLog.
func Load(path string) (*Store, error) {
	s := &Store{
		path:  path,
		files: make(map[string]*FileHistory),
	}

	data, err := os.ReadFile(path) // #nosec G304 -- history path comes from config
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}

	if err := yaml.Unmarshal(data, &s.files); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptLog, path, err)
	}
	for name, fh := range s.files {
		if fh == nil {
			s.files[name] = &FileHistory{}
		}
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Baseline returns the last accepted size of filename.
func (s *Store) Baseline(filename string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fh, ok := s.files[filename]
	if !ok {
		return 0, false
	}
	return fh.Last, true
}

// Record appends a run entry for filename and persists the store. The
// baseline moves to the entry's size only when the entry was classified
// valid (Delta == 0).
func (s *Store) Record(filename string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fh, ok := s.files[filename]
	if !ok {
		fh = &FileHistory{Last: e.Size}
		s.files[filename] = fh
	}
	fh.Log = append(fh.Log, e)
	if e.Delta == 0 {
		fh.Last = e.Size
	}

	return s.save()
}

// History returns a copy of the run entries of filename, oldest first.
func (s *Store) History(filename string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	fh, ok := s.files[filename]
	if !ok {
		return nil
	}
	return slices.Clone(fh.Log)
}

// Files returns the monitored file names in sorted order.
func (s *Store) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Sorted(maps.Keys(s.files))
}

func (s *Store) save() error {
	data, err := yaml.Marshal(s.files)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating history directory: %w", err)
		}
	}
	return atomicWriteFile(s.path, data, 0o644)
}

// atomicWriteFile writes data to a temporary file in the target directory
// and renames it over path.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}

	success = true
	return nil
}
