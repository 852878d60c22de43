// Package storage provides persistence for synced videos, link-tree rows and
// pipeline sync state.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common storage conditions.
var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("storage: not found")
	// ErrAlreadyExists indicates the entity already exists in storage.
	ErrAlreadyExists = errors.New("storage: already exists")
	// ErrInvalidInput indicates invalid or malformed input was provided.
	ErrInvalidInput = errors.New("storage: invalid input")
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
)

// StorageError wraps storage errors with operation and entity context.
// Use errors.As() to extract this error type and get operation details:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s %s: %v\n", storErr.Op, storErr.Entity, storErr.ID, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("create", "read", "update", "delete", "replace").
	Op string
	// Entity is the entity type ("video", "linkrow", "sync_state", "store").
	Entity string
	// ID is the entity ID if applicable.
	ID string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the storage error.
func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }

// Store is the main storage interface for all storefeed data.
// Implementations must be safe for concurrent use.
type Store interface {
	VideoStore
	LinkRowStore
	SyncStateStore

	// Close releases any resources held by the store.
	Close() error
}

// VideoStore holds the mirrored channel videos.
type VideoStore interface {
	// ListVideos returns every live video, ordered by type then order.
	ListVideos(ctx context.Context) ([]*Video, error)
	// DeleteVideos removes the videos with the given internal IDs. Unknown IDs are ignored.
	DeleteVideos(ctx context.Context, ids []string) error
	// CreateVideos inserts the videos, assigning IDs and timestamps.
	CreateVideos(ctx context.Context, videos []*Video) error
	// ReplaceVideos removes every live video and inserts videos as one atomic step.
	// On error the previously stored set is left in place.
	ReplaceVideos(ctx context.Context, videos []*Video) error
}

// LinkRowStore handles link-tree rows.
type LinkRowStore interface {
	// ListLinkRows returns all live rows ordered by order, then text.
	ListLinkRows(ctx context.Context) ([]*LinkRow, error)
	// GetLinkRow retrieves a row by ID.
	GetLinkRow(ctx context.Context, id string) (*LinkRow, error)
	// CreateLinkRow saves a new row, assigning its ID.
	CreateLinkRow(ctx context.Context, row *LinkRow) error
	// UpdateLinkRow overwrites an existing row.
	UpdateLinkRow(ctx context.Context, row *LinkRow) error
	// DeleteLinkRow removes a row.
	DeleteLinkRow(ctx context.Context, id string) error
}

// SyncStateStore persists the outcome of pipeline runs.
type SyncStateStore interface {
	// GetSyncState retrieves the state of the named pipeline.
	GetSyncState(ctx context.Context, name string) (*SyncState, error)
	// UpdateSyncState creates or overwrites the state of a pipeline.
	UpdateSyncState(ctx context.Context, state *SyncState) error
}
