// Package youtube pulls a channel's recent uploads from the YouTube Data
// API, classifies them into videos and shorts, and mirrors the result into
// storage.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the sync pipeline.
var (
	// ErrSourceUnavailable means the channel has nothing to sync (no uploads
	// playlist, or an empty one). Runs that hit it are skipped, not failed.
	ErrSourceUnavailable = errors.New("youtube: source unavailable")
	// ErrSourceFetchFailed means an upstream request failed.
	ErrSourceFetchFailed = errors.New("youtube: source fetch failed")
	// ErrStorageWriteFailed means replacing the stored video set failed.
	ErrStorageWriteFailed = errors.New("youtube: storage write failed")
	// ErrSyncInProgress means another run holds the sync lease.
	ErrSyncInProgress = errors.New("youtube: sync already in progress")
)

// FetchError records which upstream step failed.
type FetchError struct {
	// Step is "channel", "playlist" or "details".
	Step string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("youtube: fetch %s: %v", e.Step, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is makes every FetchError match ErrSourceFetchFailed.
func (e *FetchError) Is(target error) bool {
	return target == ErrSourceFetchFailed
}

// Limits caps how many items of each type a sync keeps.
type Limits struct {
	MaxVideos int
	MaxShorts int
}

// DefaultLimits are the capacities the admin trigger uses.
func DefaultLimits() Limits {
	return Limits{MaxVideos: 4, MaxShorts: 8}
}

// fetchBudget is how many playlist entries to request: one page of slack
// beyond capacity absorbs uploads that get dropped as invalid.
func (l Limits) fetchBudget() int {
	return l.MaxVideos + l.MaxShorts + 10
}

// Candidate is an upload as seen by the classifier.
type Candidate struct {
	ID              string
	Title           string
	ThumbnailURL    string
	PublishedAt     time.Time
	DurationSeconds int
	// HasDuration is true when the source carried a duration string, even
	// one that parsed to zero.
	HasDuration bool
}

// Valid reports whether every field the classifier needs is present.
func (c Candidate) Valid() bool {
	return c.ID != "" &&
		c.Title != "" &&
		c.ThumbnailURL != "" &&
		!c.PublishedAt.IsZero() &&
		c.HasDuration
}

// PlaylistEntry is one item of the uploads playlist.
type PlaylistEntry struct {
	VideoID      string
	Title        string
	ThumbnailURL string
	PublishedAt  time.Time
}

// VideoDetails is the videos.list view of an upload. Duration is the raw
// ISO 8601 string; empty when the API omitted it.
type VideoDetails struct {
	ID           string
	Title        string
	ThumbnailURL string
	PublishedAt  time.Time
	Duration     string
}

// Catalog is the upstream API surface the fetcher needs.
type Catalog interface {
	// UploadsPlaylist returns the channel's uploads playlist ID, or "" when
	// the channel does not exist or has none.
	UploadsPlaylist(ctx context.Context, channelID string) (string, error)
	// PlaylistEntries returns up to limit entries, newest first as the API orders them.
	PlaylistEntries(ctx context.Context, playlistID string, limit int) ([]PlaylistEntry, error)
	// VideoDetails looks up the given video IDs. Unknown IDs are omitted.
	VideoDetails(ctx context.Context, ids []string) ([]VideoDetails, error)
}

// Fetcher turns a channel's uploads into classifier candidates.
type Fetcher struct {
	catalog   Catalog
	channelID string

	// OnDrop, if set, is called for every entry that does not become a
	// candidate, with reason "no_details" or "invalid".
	OnDrop func(videoID, reason string)
}

// NewFetcher creates a Fetcher for one channel.
func NewFetcher(catalog Catalog, channelID string) *Fetcher {
	return &Fetcher{catalog: catalog, channelID: channelID}
}

// Fetch resolves the uploads playlist, lists recent entries, looks up their
// details and returns the valid candidates in playlist order. It returns
// ErrSourceUnavailable when there is nothing to sync and a *FetchError when
// an upstream call fails.
func (f *Fetcher) Fetch(ctx context.Context, limits Limits) ([]Candidate, error) {
	playlistID, err := f.catalog.UploadsPlaylist(ctx, f.channelID)
	if err != nil {
		return nil, &FetchError{Step: "channel", Err: err}
	}
	if playlistID == "" {
		return nil, fmt.Errorf("channel %s has no uploads playlist: %w", f.channelID, ErrSourceUnavailable)
	}

	entries, err := f.catalog.PlaylistEntries(ctx, playlistID, limits.fetchBudget())
	if err != nil {
		return nil, &FetchError{Step: "playlist", Err: err}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("playlist %s is empty: %w", playlistID, ErrSourceUnavailable)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.VideoID != "" {
			ids = append(ids, e.VideoID)
		}
	}

	details, err := f.catalog.VideoDetails(ctx, ids)
	if err != nil {
		return nil, &FetchError{Step: "details", Err: err}
	}
	byID := make(map[string]VideoDetails, len(details))
	for _, d := range details {
		byID[d.ID] = d
	}

	candidates := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		d, ok := byID[e.VideoID]
		if !ok {
			f.drop(e.VideoID, "no_details")
			continue
		}
		c := mergeCandidate(e, d)
		if !c.Valid() {
			f.drop(e.VideoID, "invalid")
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (f *Fetcher) drop(videoID, reason string) {
	if f.OnDrop != nil {
		f.OnDrop(videoID, reason)
	}
}

// mergeCandidate prefers details fields and falls back to the playlist entry.
// Duration only exists on details.
func mergeCandidate(e PlaylistEntry, d VideoDetails) Candidate {
	c := Candidate{
		ID:           e.VideoID,
		Title:        firstNonEmpty(d.Title, e.Title),
		ThumbnailURL: firstNonEmpty(d.ThumbnailURL, e.ThumbnailURL),
		PublishedAt:  d.PublishedAt,
	}
	if c.PublishedAt.IsZero() {
		c.PublishedAt = e.PublishedAt
	}
	if d.Duration != "" {
		c.HasDuration = true
		c.DurationSeconds = ParseDuration(d.Duration)
	}
	return c
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
