package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "cyclecal/internal/log"
	"cyclecal/internal/model"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidRecord = errors.New("invalid record")
)

// FileStore keeps event records in a single JSON file. Every mutation
// rewrites the file atomically.
type FileStore struct {
	path string
	now  func() time.Time

	// mu guards records and loaded; reads may trigger the lazy load, so
	// every operation takes it exclusively.
	mu      sync.Mutex
	records []model.Record
	loaded  bool
}

// NewFileStore returns a store backed by path. The file is read lazily on
// first access; a missing file is an empty store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.records = []model.Record{}
			s.loaded = true
			return nil
		}
		return fmt.Errorf("read store: %w", err)
	}
	var recs []model.Record
	if len(data) > 0 {
		if err := json.Unmarshal(data, &recs); err != nil {
			return fmt.Errorf("decode store %s: %w", s.path, err)
		}
	}
	if recs == nil {
		recs = []model.Record{}
	}
	s.records = recs
	s.loaded = true
	appLog.Debug("store loaded", "path", s.path, "records", len(recs))
	return nil
}

// List returns a copy of all records in insertion order.
func (s *FileStore) List(_ context.Context) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]model.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Events returns all records converted to typed events. Records of an
// unknown type are logged and skipped.
func (s *FileStore) Events(ctx context.Context) ([]model.Event, error) {
	recs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	events, errs := model.EventsOf(recs)
	for _, e := range errs {
		appLog.Warn("store: skipping record", "reason", e.Error())
	}
	return events, nil
}

func (s *FileStore) Get(_ context.Context, id string) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return model.Record{}, err
	}
	i := s.indexOf(id)
	if i < 0 {
		return model.Record{}, ErrNotFound
	}
	return s.records[i], nil
}

// Add validates and appends rec, filling in ID and Timestamp when empty.
func (s *FileStore) Add(_ context.Context, rec model.Record) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return model.Record{}, err
	}
	rec, err := s.prepare(rec)
	if err != nil {
		return model.Record{}, err
	}
	if s.indexOf(rec.ID) >= 0 {
		return model.Record{}, fmt.Errorf("%w: duplicate id %q", ErrInvalidRecord, rec.ID)
	}
	next := append(cloneRecords(s.records), rec)
	if err := s.persist(next); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// Update replaces the record with rec.ID.
func (s *FileStore) Update(_ context.Context, rec model.Record) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return model.Record{}, err
	}
	i := s.indexOf(rec.ID)
	if i < 0 {
		return model.Record{}, ErrNotFound
	}
	if rec.Timestamp == "" {
		rec.Timestamp = s.records[i].Timestamp
	}
	rec, err := s.prepare(rec)
	if err != nil {
		return model.Record{}, err
	}
	next := cloneRecords(s.records)
	next[i] = rec
	if err := s.persist(next); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	next := cloneRecords(s.records)
	next = append(next[:i], next[i+1:]...)
	return s.persist(next)
}

// Import adds recs in one write. Records whose ID already exists, and
// invalid records, are skipped. It returns the number added.
func (s *FileStore) Import(_ context.Context, recs []model.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return 0, err
	}
	next := cloneRecords(s.records)
	seen := make(map[string]bool, len(next))
	for _, r := range next {
		seen[r.ID] = true
	}
	added := 0
	for _, r := range recs {
		if r.ID != "" && seen[r.ID] {
			continue
		}
		prepared, err := s.prepare(r)
		if err != nil {
			appLog.Warn("store: import skipped record", "id", r.ID, "reason", err.Error())
			continue
		}
		seen[prepared.ID] = true
		next = append(next, prepared)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := s.persist(next); err != nil {
		return 0, err
	}
	return added, nil
}

func (s *FileStore) prepare(rec model.Record) (model.Record, error) {
	ev, err := rec.Event()
	if err != nil {
		return rec, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if cs, ok := ev.(model.CycleStart); ok {
		if err := cs.Validate(); err != nil {
			return rec, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = strconv.FormatInt(s.now().UnixMilli(), 10)
	}
	return rec, nil
}

func (s *FileStore) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, r := range s.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// persist writes recs to disk and, only on success, makes them current.
func (s *FileStore) persist(recs []model.Record) error {
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	s.records = recs
	return nil
}

func cloneRecords(recs []model.Record) []model.Record {
	out := make([]model.Record, len(recs), len(recs)+1)
	copy(out, recs)
	return out
}

// writeFileAtomic writes data to a temp file in the target directory,
// then renames it over path with 0600 permissions.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cyclecal-events-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
