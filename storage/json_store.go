package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	schemaVersion = "2.0"
	lockTimeout   = 5 * time.Second
)

// JSONStore implements Store using a single JSON file. It suits single-node
// deployments; every mutation rewrites the whole file atomically.
type JSONStore struct {
	path string
	lock *FileLock
	data *storeData
	mu   sync.RWMutex
}

var _ Store = (*JSONStore)(nil)

// storeData is the top-level JSON structure.
type storeData struct {
	Version    string                `json:"version"`
	UpdatedAt  time.Time             `json:"updated_at"`
	Videos     map[string]*Video     `json:"videos"`
	LinkRows   map[string]*LinkRow   `json:"linkrows"`
	SyncStates map[string]*SyncState `json:"sync_states"`
}

// NewJSONStore creates a new JSON file store at the given path.
// If the file exists, it is loaded; otherwise an empty store is created.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path: path,
		lock: NewFileLock(path),
	}

	if err := s.lock.Lock(lockTimeout); err != nil {
		return nil, err
	}

	if err := s.load(); err != nil {
		s.lock.Unlock()
		return nil, err
	}

	return s, nil
}

// load reads the JSON file into memory. Creates empty data if file doesn't exist.
func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.data = newStoreData()
			// Save immediately to catch permission errors early
			return s.save()
		}
		return &StorageError{Op: "read", Entity: "store", Err: err}
	}

	s.data = &storeData{}
	if err := json.Unmarshal(data, s.data); err != nil {
		return &StorageError{Op: "read", Entity: "store", Err: ErrStorageCorrupt}
	}

	if s.data.Videos == nil {
		s.data.Videos = make(map[string]*Video)
	}
	if s.data.LinkRows == nil {
		s.data.LinkRows = make(map[string]*LinkRow)
	}
	if s.data.SyncStates == nil {
		s.data.SyncStates = make(map[string]*SyncState)
	}

	return nil
}

// save persists the data to disk atomically.
func (s *JSONStore) save() error {
	s.data.UpdatedAt = time.Now()

	writer, err := newAtomicWriter(s.path)
	if err != nil {
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		writer.Abort()
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}

	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}

	return nil
}

// Close releases resources held by the store.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Unlock()
}

func newStoreData() *storeData {
	return &storeData{
		Version:    schemaVersion,
		UpdatedAt:  time.Now(),
		Videos:     make(map[string]*Video),
		LinkRows:   make(map[string]*LinkRow),
		SyncStates: make(map[string]*SyncState),
	}
}

// --- VideoStore implementation ---

func (s *JSONStore) ListVideos(ctx context.Context) ([]*Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	videos := make([]*Video, 0, len(s.data.Videos))
	for _, v := range s.data.Videos {
		cp := *v
		videos = append(videos, &cp)
	}
	sortVideos(videos)
	return videos, nil
}

func (s *JSONStore) DeleteVideos(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]*Video, len(ids))
	for _, id := range ids {
		if v, ok := s.data.Videos[id]; ok {
			removed[id] = v
			delete(s.data.Videos, id)
		}
	}
	if len(removed) == 0 {
		return nil
	}

	if err := s.save(); err != nil {
		for id, v := range removed {
			s.data.Videos[id] = v
		}
		return &StorageError{Op: "delete", Entity: "video", Err: err}
	}
	return nil
}

func (s *JSONStore) CreateVideos(ctx context.Context, videos []*Video) error {
	if len(videos) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]*Video, len(videos))
	added, err := s.insertVideos(batch, videos)
	if err != nil {
		return err
	}
	for id := range batch {
		if _, exists := s.data.Videos[id]; exists {
			return &StorageError{Op: "create", Entity: "video", ID: id, Err: ErrAlreadyExists}
		}
	}
	for id, v := range batch {
		s.data.Videos[id] = v
	}

	if err := s.save(); err != nil {
		for _, id := range added {
			delete(s.data.Videos, id)
		}
		return &StorageError{Op: "create", Entity: "video", Err: err}
	}
	return nil
}

// ReplaceVideos swaps the whole video map in one file write. If the write
// fails the previous map is restored.
func (s *JSONStore) ReplaceVideos(ctx context.Context, videos []*Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*Video, len(videos))
	if _, err := s.insertVideos(next, videos); err != nil {
		return &StorageError{Op: "replace", Entity: "video", Err: err}
	}

	prev := s.data.Videos
	s.data.Videos = next
	if err := s.save(); err != nil {
		s.data.Videos = prev
		return &StorageError{Op: "replace", Entity: "video", Err: err}
	}
	return nil
}

// insertVideos validates videos and adds copies to dst, returning the new IDs.
// Must be called with mutex held.
func (s *JSONStore) insertVideos(dst map[string]*Video, videos []*Video) ([]string, error) {
	now := time.Now()
	ids := make([]string, 0, len(videos))
	for _, v := range videos {
		if v.VideoID == "" || !v.Type.Valid() {
			return nil, &StorageError{Op: "create", Entity: "video", ID: v.VideoID, Err: ErrInvalidInput}
		}
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if _, exists := dst[v.ID]; exists {
			return nil, &StorageError{Op: "create", Entity: "video", ID: v.ID, Err: ErrAlreadyExists}
		}
		v.CreatedAt = now
		v.UpdatedAt = now
		cp := *v
		ids = append(ids, v.ID)
		dst[v.ID] = &cp
	}
	return ids, nil
}

// --- LinkRowStore implementation ---

func (s *JSONStore) ListLinkRows(ctx context.Context) ([]*LinkRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*LinkRow, 0, len(s.data.LinkRows))
	for _, r := range s.data.LinkRows {
		cp := *r
		rows = append(rows, &cp)
	}
	sortLinkRows(rows)
	return rows, nil
}

func (s *JSONStore) GetLinkRow(ctx context.Context, id string) (*LinkRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, exists := s.data.LinkRows[id]
	if !exists {
		return nil, &StorageError{Op: "read", Entity: "linkrow", ID: id, Err: ErrNotFound}
	}
	cp := *row
	return &cp, nil
}

func (s *JSONStore) CreateLinkRow(ctx context.Context, row *LinkRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if _, exists := s.data.LinkRows[row.ID]; exists {
		return &StorageError{Op: "create", Entity: "linkrow", ID: row.ID, Err: ErrAlreadyExists}
	}

	now := time.Now()
	row.CreatedAt = now
	row.UpdatedAt = now

	cp := *row
	s.data.LinkRows[row.ID] = &cp
	if err := s.save(); err != nil {
		delete(s.data.LinkRows, row.ID)
		return err
	}
	return nil
}

func (s *JSONStore) UpdateLinkRow(ctx context.Context, row *LinkRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data.LinkRows[row.ID]
	if !exists {
		return &StorageError{Op: "update", Entity: "linkrow", ID: row.ID, Err: ErrNotFound}
	}

	row.CreatedAt = existing.CreatedAt
	row.UpdatedAt = time.Now()

	cp := *row
	s.data.LinkRows[row.ID] = &cp
	if err := s.save(); err != nil {
		s.data.LinkRows[row.ID] = existing
		return err
	}
	return nil
}

func (s *JSONStore) DeleteLinkRow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data.LinkRows[id]
	if !exists {
		return &StorageError{Op: "delete", Entity: "linkrow", ID: id, Err: ErrNotFound}
	}

	delete(s.data.LinkRows, id)
	if err := s.save(); err != nil {
		s.data.LinkRows[id] = existing
		return err
	}
	return nil
}

// --- SyncStateStore implementation ---

func (s *JSONStore) GetSyncState(ctx context.Context, name string) (*SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.data.SyncStates[name]
	if !exists {
		return nil, &StorageError{Op: "read", Entity: "sync_state", ID: name, Err: ErrNotFound}
	}
	cp := *state
	return &cp, nil
}

func (s *JSONStore) UpdateSyncState(ctx context.Context, state *SyncState) error {
	if state.Name == "" {
		return &StorageError{Op: "update", Entity: "sync_state", Err: ErrInvalidInput}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.data.SyncStates[state.Name]
	state.UpdatedAt = time.Now()
	cp := *state
	s.data.SyncStates[state.Name] = &cp
	if err := s.save(); err != nil {
		if prev != nil {
			s.data.SyncStates[state.Name] = prev
		} else {
			delete(s.data.SyncStates, state.Name)
		}
		return err
	}
	return nil
}

func sortVideos(videos []*Video) {
	sort.SliceStable(videos, func(i, j int) bool {
		if videos[i].Type != videos[j].Type {
			return videos[i].Type < videos[j].Type
		}
		return videos[i].Order < videos[j].Order
	})
}

func sortLinkRows(rows []*LinkRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Order != rows[j].Order {
			return rows[i].Order < rows[j].Order
		}
		return rows[i].Text < rows[j].Text
	})
}
