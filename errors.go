package storefeed

import (
	"storefeed/internal/retry"
	"storefeed/linktree"
	"storefeed/storage"
	"storefeed/youtube"
)

// Error types exported for library users.
//
// From youtube:
//   - FetchError: an upstream Data API step failed
//   - SyncError: a sync run failed at a named stage
//
// From storage:
//   - StorageError: a storage operation failed
//
// From linktree:
//   - ValidationError: a link row field is invalid (matches ErrInvalidInput)
type (
	// FetchError wraps a failed upstream step ("channel", "playlist", "details").
	FetchError = youtube.FetchError
	// SyncError wraps a failed sync stage ("lease", "fetch", "store").
	SyncError = youtube.SyncError
	// StorageError wraps errors during storage operations.
	StorageError = storage.StorageError
	// ValidationError reports an invalid link row field.
	ValidationError = linktree.ValidationError
	// ExhaustedError wraps the last error after retries ran out.
	ExhaustedError = retry.ExhaustedError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrSourceUnavailable indicates the channel had nothing to sync.
	ErrSourceUnavailable = youtube.ErrSourceUnavailable
	// ErrSourceFetchFailed indicates an upstream request failed.
	ErrSourceFetchFailed = youtube.ErrSourceFetchFailed
	// ErrStorageWriteFailed indicates the stored set could not be replaced.
	ErrStorageWriteFailed = youtube.ErrStorageWriteFailed
	// ErrSyncInProgress indicates another run holds the sync lease.
	ErrSyncInProgress = youtube.ErrSyncInProgress

	// Storage errors
	// ErrNotFound indicates an entity was not found in storage.
	ErrNotFound = storage.ErrNotFound
	// ErrAlreadyExists indicates an entity already exists in storage.
	ErrAlreadyExists = storage.ErrAlreadyExists
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = storage.ErrInvalidInput
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsRetryable determines if an error should be retried.
// Context errors and permanent errors are not.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
