// Package state holds the CLI session state: the last used directory and
// import mode, the recently submitted tasks, and the progress of the task
// currently being watched. Only a subset is written to disk.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/mdimport/internal/models"
)

const (
	maxRecent       = 50
	maxRecentStored = 10
)

// TaskRef records a submitted import task.
type TaskRef struct {
	ID          string                `yaml:"id"`
	Directory   string                `yaml:"directory"`
	Mode        models.ImportMode     `yaml:"mode"`
	Status      models.ProgressStatus `yaml:"status"`
	SubmittedAt time.Time             `yaml:"submitted_at"`
}

// persisted is the on-disk subset of Store.
type persisted struct {
	LastDirectory string            `yaml:"last_directory,omitempty"`
	LastMode      models.ImportMode `yaml:"last_mode,omitempty"`
	RecentTasks   []TaskRef         `yaml:"recent_tasks,omitempty"`
}

// Store is a session state container. A Store with a path writes itself
// after every mutation; a Store without one lives in memory only.
type Store struct {
	mu     sync.Mutex
	path   string
	last   string
	mode   models.ImportMode
	recent []TaskRef
	active *models.ImportProgress
}

// New returns an empty Store persisted to path. An empty path disables
// persistence.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the state file at path. A missing file yields an empty Store.
func Load(path string) (*Store, error) {
	s := New(path)
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read %s: %w", path, err)
	}
	var p persisted
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("state: parse %s: %w", path, err)
	}
	s.last = p.LastDirectory
	s.mode = p.LastMode
	for _, ref := range p.RecentTasks {
		s.pushLocked(ref)
	}
	slices.Reverse(s.recent)
	return s, nil
}

// LastDirectory returns the directory of the most recent scan.
func (s *Store) LastDirectory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// LastMode returns the most recently used import mode, or skip.
func (s *Store) LastMode() models.ImportMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == "" {
		return models.ModeSkip
	}
	return s.mode
}

// SetLastDirectory records dir as the most recent scan target.
func (s *Store) SetLastDirectory(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == dir {
		return nil
	}
	s.last = dir
	return s.saveLocked()
}

// SetLastMode records the most recently used import mode.
func (s *Store) SetLastMode(mode models.ImportMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == mode {
		return nil
	}
	s.mode = mode
	return s.saveLocked()
}

// RecentTasks returns the recorded tasks, newest first.
func (s *Store) RecentTasks() []TaskRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.recent)
}

// Task returns the recorded task with the given id.
func (s *Store) Task(id string) (TaskRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.recent, func(r TaskRef) bool { return r.ID == id })
	if i < 0 {
		return TaskRef{}, false
	}
	return s.recent[i], true
}

// AddTask records ref as the newest task. A task already present is moved
// to the front and replaced.
func (s *Store) AddTask(ref TaskRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushLocked(ref)
	return s.saveLocked()
}

// UpdateTaskStatus sets the status of a recorded task. Unknown ids are
// ignored.
func (s *Store) UpdateTaskStatus(id string, status models.ProgressStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.recent, func(r TaskRef) bool { return r.ID == id })
	if i < 0 || s.recent[i].Status == status {
		return nil
	}
	s.recent[i].Status = status
	return s.saveLocked()
}

// Active returns the progress of the task being watched, if any.
func (s *Store) Active() (models.ImportProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return models.ImportProgress{}, false
	}
	return s.active.Clone(), true
}

// SetActive replaces the watched progress. It is never persisted.
func (s *Store) SetActive(p models.ImportProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := p.Clone()
	s.active = &c
}

// ClearActive drops the watched progress.
func (s *Store) ClearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
}

// Save writes the persisted subset to the store's path.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) pushLocked(ref TaskRef) {
	s.recent = slices.DeleteFunc(s.recent, func(r TaskRef) bool { return r.ID == ref.ID })
	s.recent = slices.Insert(s.recent, 0, ref)
	if len(s.recent) > maxRecent {
		s.recent = s.recent[:maxRecent]
	}
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	p := persisted{
		LastDirectory: s.last,
		LastMode:      s.mode,
		RecentTasks:   slices.Clone(s.recent[:min(len(s.recent), maxRecentStored)]),
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("state: create dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("state: rename %s: %w", s.path, err)
	}
	return nil
}
