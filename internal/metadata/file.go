package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aliskhannn/image-storage/internal/model"
)

// FileStore keeps all records in memory and mirrors every mutation into a
// single JSON file via an atomic temp-file-and-rename rewrite. A crash can
// only ever leave the previous complete snapshot behind, never a torn one.
type FileStore struct {
	mu      sync.RWMutex
	path    string
	records map[uuid.UUID]model.ImageRecord
}

// NewFileStore opens (or creates) the index file at path and loads all
// records persisted by previous runs.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	s := &FileStore{
		path:    path,
		records: make(map[uuid.UUID]model.ImageRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}

	var raw map[string]model.ImageRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}

	for key, rec := range raw {
		if rec.UUID == uuid.Nil {
			return nil, fmt.Errorf("parse index: record %q has no uuid", key)
		}
		s.records[rec.UUID] = rec
	}

	return s, nil
}

// Put inserts a new record. The insert and the snapshot write happen under
// one lock so the on-disk index never observes a partially applied change.
func (s *FileStore) Put(_ context.Context, rec model.ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.UUID]; ok {
		return ErrDuplicateID
	}

	s.records[rec.UUID] = rec
	if err := s.persistLocked(); err != nil {
		delete(s.records, rec.UUID)
		return fmt.Errorf("persist index: %w", err)
	}

	return nil
}

// Get returns the record for id.
func (s *FileStore) Get(_ context.Context, id uuid.UUID) (model.ImageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return model.ImageRecord{}, ErrNotFound
	}

	return rec, nil
}

// Delete removes the record for id.
func (s *FileStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}

	delete(s.records, id)
	if err := s.persistLocked(); err != nil {
		s.records[id] = rec
		return fmt.Errorf("persist index: %w", err)
	}

	return nil
}

// List returns records under pathPrefix ordered by creation time descending
// with the record UUID as a tie-break, so pagination is stable.
func (s *FileStore) List(_ context.Context, pathPrefix string, limit, offset int) ([]model.ImageRecord, int, error) {
	s.mu.RLock()
	matched := make([]model.ImageRecord, 0, len(s.records))
	for _, rec := range s.records {
		if underPrefix(rec.StoredPath, pathPrefix) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].UUID.String() > matched[j].UUID.String()
	})

	total := len(matched)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []model.ImageRecord{}, total, nil
	}

	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	return matched[offset:end], total, nil
}

// Close is a no-op: every mutation is already on disk.
func (s *FileStore) Close() error {
	return nil
}

// persistLocked rewrites the index snapshot. Callers must hold s.mu.
func (s *FileStore) persistLocked() error {
	raw := make(map[string]model.ImageRecord, len(s.records))
	for id, rec := range s.records {
		raw[id.String()] = rec
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".index-*.json")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}

	return nil
}

// underPrefix reports whether p equals prefix or lies below it. The check
// is segment-aware: "user1" does not cover "user10/a.png".
func underPrefix(p, prefix string) bool {
	if prefix == "" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
