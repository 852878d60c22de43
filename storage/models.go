package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VideoType partitions stored videos into regular uploads and shorts.
type VideoType string

const (
	// VideoTypeVideo is a regular upload (three minutes or longer).
	VideoTypeVideo VideoType = "video"
	// VideoTypeShort is a short upload (under three minutes).
	VideoTypeShort VideoType = "short"
)

// Valid reports whether t is one of the known video types.
func (t VideoType) Valid() bool {
	return t == VideoTypeVideo || t == VideoTypeShort
}

// Video is a channel upload mirrored for display.
type Video struct {
	// ID is the storage-assigned identifier (UUID).
	ID string `json:"id" gorm:"primaryKey;type:text"`
	// VideoID is the YouTube video ID.
	VideoID string `json:"videoid" gorm:"column:videoid;not null"`
	// Type is the bucket the video was classified into.
	Type VideoType `json:"type" gorm:"column:type;type:text;not null"`
	// Title is the video title.
	Title string `json:"title" gorm:"not null"`
	// Thumbnail is the URL of the high resolution thumbnail.
	Thumbnail string `json:"thumbnail" gorm:"not null"`
	// Order is the 1-indexed recency rank within Type.
	Order int `json:"order" gorm:"column:order;not null"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName keeps the table name used by the admin plugin.
func (Video) TableName() string { return "video" }

// BeforeCreate assigns an ID when none was set.
func (v *Video) BeforeCreate(*gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// LinkRow is one entry of the promotional link tree.
type LinkRow struct {
	ID          string   `json:"id" gorm:"primaryKey;type:text"`
	Text        string   `json:"text" gorm:"not null"`
	Href        string   `json:"href" gorm:"not null"`
	Description string   `json:"description" gorm:"not null"`
	Order       int      `json:"order" gorm:"column:order;not null"`
	Active      bool     `json:"active" gorm:"not null"`
	Category    string   `json:"category" gorm:"not null"`
	Tags        []string `json:"tags,omitempty" gorm:"serializer:json"`
	Photo       *string  `json:"photo,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName keeps the table name used by the admin plugin.
func (LinkRow) TableName() string { return "linkrow" }

// BeforeCreate assigns an ID when none was set.
func (r *LinkRow) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Sync status constants for the SyncState.Status field.
const (
	// SyncStatusIdle indicates no sync is running.
	SyncStatusIdle = "idle"
	// SyncStatusSyncing indicates a sync operation is in progress.
	SyncStatusSyncing = "syncing"
	// SyncStatusError indicates the last sync operation failed.
	SyncStatusError = "error"
)

// SyncState records the progress and outcome of a named sync pipeline.
type SyncState struct {
	// Name identifies the pipeline (e.g. "youtube").
	Name string `json:"name" gorm:"primaryKey;type:text"`
	// Status is one of the SyncStatus constants.
	Status string `json:"status" gorm:"not null"`
	// LastSyncAt is when the last successful sync finished.
	LastSyncAt time.Time `json:"last_sync_at"`
	// SyncStartedAt is when the current or most recent sync began.
	SyncStartedAt time.Time `json:"sync_started_at"`
	// LastError contains the error message if the last sync failed.
	LastError string `json:"last_error,omitempty"`
	// CandidatesSeen is the number of eligible candidates in the last successful sync.
	CandidatesSeen int `json:"candidates_seen"`
	// VideosStored and ShortsStored count the rows written per type.
	VideosStored int `json:"videos_stored"`
	ShortsStored int `json:"shorts_stored"`
	// Skipped is true when the last sync found nothing to sync.
	Skipped bool `json:"skipped"`

	UpdatedAt time.Time `json:"updated_at"`
}

// TableName names the table holding pipeline state.
func (SyncState) TableName() string { return "sync_state" }

// NewSyncState creates an idle SyncState for a pipeline.
func NewSyncState(name string) *SyncState {
	return &SyncState{
		Name:   name,
		Status: SyncStatusIdle,
	}
}

// StartSync marks the beginning of a sync run.
func (s *SyncState) StartSync() {
	if s == nil {
		return
	}

	s.Status = SyncStatusSyncing
	s.SyncStartedAt = time.Now()
	s.LastError = ""
}

// CompleteSync marks the sync as successfully completed with the given counts.
func (s *SyncState) CompleteSync(candidates, videos, shorts int) {
	if s == nil {
		return
	}

	s.Status = SyncStatusIdle
	s.LastSyncAt = time.Now()
	s.CandidatesSeen = candidates
	s.VideosStored = videos
	s.ShortsStored = shorts
	s.Skipped = false
}

// SkipSync marks a run that found nothing to sync. Stored counts are kept
// because storage was not touched.
func (s *SyncState) SkipSync() {
	if s == nil {
		return
	}

	s.Status = SyncStatusIdle
	s.Skipped = true
}

// FailSync marks the sync as failed with an error message.
func (s *SyncState) FailSync(errMsg string) {
	if s == nil {
		return
	}

	s.Status = SyncStatusError
	s.LastError = errMsg
}
