package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/comtradebench/greenbench/internal/assess"
)

// ErrAssessmentNotFound is returned when an id does not match any stored assessment.
var ErrAssessmentNotFound = errors.New("assessment not found")

// AssessmentStore records completed assessments and serves them back.
type AssessmentStore interface {
	assess.Store
	// List returns all assessments, sorted by the given field and order.
	List(sortField, order string) ([]AssessmentSummary, error)
	// Get returns a single assessment with its full result.
	Get(id string) (*assess.Assessment, error)
}

// FileStore keeps assessments in memory and, when dir is set, as one JSON
// file per assessment so results survive restarts.
type FileStore struct {
	dir string

	mu      sync.RWMutex
	items   map[string]*assess.Assessment
	loaded  bool
	loadErr error
}

// NewFileStore creates a FileStore persisting to dir. An empty dir keeps
// results in memory only.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:   dir,
		items: make(map[string]*assess.Assessment),
	}
}

// load reads all result JSON files from the configured directory.
func (fs *FileStore) load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.dir == "" {
		fs.loaded = true
		return nil
	}
	items := make(map[string]*assess.Assessment)

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			fs.items = items
			fs.loaded = true
			return nil
		}
		fs.loadErr = err
		return err
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(fs.dir, e.Name()))
		if err != nil {
			continue
		}
		var a assess.Assessment
		if err := json.Unmarshal(data, &a); err != nil {
			continue
		}
		if a.ID == "" {
			// Use filename (without extension) as fallback ID.
			a.ID = strings.TrimSuffix(e.Name(), ".json")
		}
		items[a.ID] = &a
	}

	fs.items = items
	fs.loaded = true
	fs.loadErr = nil
	return nil
}

// ensureLoaded loads data if not already loaded.
func (fs *FileStore) ensureLoaded() error {
	fs.mu.RLock()
	if fs.loaded {
		fs.mu.RUnlock()
		return nil
	}
	fs.mu.RUnlock()
	return fs.load()
}

// Reload forces a fresh reload of all result files from disk.
func (fs *FileStore) Reload() error {
	return fs.load()
}

// Save implements assess.Store.
func (fs *FileStore) Save(a *assess.Assessment) error {
	if a == nil || a.ID == "" {
		return errors.New("assessment id is required")
	}
	if err := fs.ensureLoaded(); err != nil {
		return err
	}

	if fs.dir != "" {
		data, err := json.MarshalIndent(a, "", "  ")
		if err != nil {
			return err
		}
		if err := os.MkdirAll(fs.dir, 0o755); err != nil {
			return fmt.Errorf("creating results dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(fs.dir, a.ID+".json"), data, 0o644); err != nil {
			return fmt.Errorf("writing assessment %s: %w", a.ID, err)
		}
	}

	fs.mu.Lock()
	fs.items[a.ID] = a
	fs.mu.Unlock()
	return nil
}

func toSummary(a *assess.Assessment) AssessmentSummary {
	s := AssessmentSummary{
		ID:         a.ID,
		TaskID:     a.TaskID,
		DurationMS: a.DurationMS,
		StartedAt:  a.StartedAt,
	}
	if a.Result != nil {
		s.ScoreTotal = a.Result.Total
		s.Errors = len(a.Result.Errors)
	}
	return s
}

// List returns all assessments sorted by the given field and order.
func (fs *FileStore) List(sortField, order string) ([]AssessmentSummary, error) {
	if err := fs.ensureLoaded(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	out := make([]AssessmentSummary, 0, len(fs.items))
	for _, a := range fs.items {
		out = append(out, toSummary(a))
	}
	sortAssessments(out, sortField, order)
	return out, nil
}

// Get returns a single assessment.
func (fs *FileStore) Get(id string) (*assess.Assessment, error) {
	if err := fs.ensureLoaded(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	a, ok := fs.items[id]
	if !ok {
		return nil, ErrAssessmentNotFound
	}
	return a, nil
}

func sortAssessments(items []AssessmentSummary, field, order string) {
	less := func(i, j int) bool {
		switch field {
		case "score":
			return items[i].ScoreTotal < items[j].ScoreTotal
		case "duration":
			return items[i].DurationMS < items[j].DurationMS
		case "task":
			return items[i].TaskID < items[j].TaskID
		default: // "started_at" or empty
			return items[i].StartedAt.Before(items[j].StartedAt)
		}
	}

	if order == "asc" {
		sort.SliceStable(items, less)
	} else {
		sort.SliceStable(items, func(i, j int) bool { return less(j, i) })
	}
}

// Ensure FileStore satisfies AssessmentStore.
var _ AssessmentStore = (*FileStore)(nil)
