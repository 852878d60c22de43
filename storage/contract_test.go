package storage

import (
	"context"
	"errors"
	"testing"
)

// runStoreContract exercises behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("ReplaceVideos", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		first := []*Video{
			{VideoID: "a", Type: VideoTypeVideo, Title: "A", Thumbnail: "ta", Order: 1},
			{VideoID: "b", Type: VideoTypeVideo, Title: "B", Thumbnail: "tb", Order: 2},
			{VideoID: "c", Type: VideoTypeShort, Title: "C", Thumbnail: "tc", Order: 1},
		}
		if err := store.ReplaceVideos(ctx, first); err != nil {
			t.Fatalf("ReplaceVideos() error = %v", err)
		}
		for _, v := range first {
			if v.ID == "" {
				t.Errorf("video %s was not assigned an ID", v.VideoID)
			}
		}

		second := []*Video{
			{VideoID: "d", Type: VideoTypeVideo, Title: "D", Thumbnail: "td", Order: 1},
		}
		if err := store.ReplaceVideos(ctx, second); err != nil {
			t.Fatalf("second ReplaceVideos() error = %v", err)
		}

		videos, err := store.ListVideos(ctx)
		if err != nil {
			t.Fatalf("ListVideos() error = %v", err)
		}
		if got := videoIDs(videos); len(got) != 1 || got[0] != "d" {
			t.Errorf("ListVideos() = %v, want [d]", got)
		}
	})

	t.Run("ReplaceVideosEmpty", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		if err := store.ReplaceVideos(ctx, []*Video{
			{VideoID: "a", Type: VideoTypeShort, Title: "A", Thumbnail: "ta", Order: 1},
		}); err != nil {
			t.Fatalf("ReplaceVideos() error = %v", err)
		}
		if err := store.ReplaceVideos(ctx, nil); err != nil {
			t.Fatalf("ReplaceVideos(nil) error = %v", err)
		}
		videos, _ := store.ListVideos(ctx)
		if len(videos) != 0 {
			t.Errorf("ListVideos() after empty replace = %v, want none", videoIDs(videos))
		}
	})

	t.Run("ListVideosOrder", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		if err := store.CreateVideos(ctx, []*Video{
			{VideoID: "v2", Type: VideoTypeVideo, Title: "V2", Thumbnail: "t", Order: 2},
			{VideoID: "s1", Type: VideoTypeShort, Title: "S1", Thumbnail: "t", Order: 1},
			{VideoID: "v1", Type: VideoTypeVideo, Title: "V1", Thumbnail: "t", Order: 1},
		}); err != nil {
			t.Fatalf("CreateVideos() error = %v", err)
		}

		videos, _ := store.ListVideos(ctx)
		want := []string{"s1", "v1", "v2"}
		got := videoIDs(videos)
		if len(got) != len(want) {
			t.Fatalf("ListVideos() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("ListVideos()[%d] = %s, want %s", i, got[i], want[i])
			}
		}
	})

	t.Run("CreateVideosInvalid", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		tests := []struct {
			name  string
			video *Video
		}{
			{"missing video id", &Video{Type: VideoTypeVideo, Title: "x", Thumbnail: "t"}},
			{"unknown type", &Video{VideoID: "x", Type: "live", Title: "x", Thumbnail: "t"}},
		}
		for _, tt := range tests {
			err := store.CreateVideos(context.Background(), []*Video{tt.video})
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("%s: CreateVideos() error = %v, want ErrInvalidInput", tt.name, err)
			}
		}

		batch := []*Video{
			{VideoID: "good", Type: VideoTypeVideo, Title: "Good", Thumbnail: "t", Order: 1},
			{Type: VideoTypeShort, Title: "Bad", Thumbnail: "t", Order: 1},
		}
		if err := store.CreateVideos(context.Background(), batch); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("CreateVideos(mixed batch) error = %v, want ErrInvalidInput", err)
		}
		videos, err := store.ListVideos(context.Background())
		if err != nil {
			t.Fatalf("ListVideos() error = %v", err)
		}
		if len(videos) != 0 {
			t.Errorf("ListVideos() after failed batch = %v, want none", videoIDs(videos))
		}
	})

	t.Run("DeleteVideos", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		videos := []*Video{
			{VideoID: "a", Type: VideoTypeVideo, Title: "A", Thumbnail: "t", Order: 1},
			{VideoID: "b", Type: VideoTypeVideo, Title: "B", Thumbnail: "t", Order: 2},
		}
		if err := store.CreateVideos(ctx, videos); err != nil {
			t.Fatalf("CreateVideos() error = %v", err)
		}
		if err := store.DeleteVideos(ctx, []string{videos[0].ID, "unknown"}); err != nil {
			t.Fatalf("DeleteVideos() error = %v", err)
		}

		left, _ := store.ListVideos(ctx)
		if got := videoIDs(left); len(got) != 1 || got[0] != "b" {
			t.Errorf("ListVideos() after delete = %v, want [b]", got)
		}
	})

	t.Run("LinkRowCRUD", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		photo := "https://cdn.example.com/p.png"
		row := &LinkRow{
			Text:        "Discord",
			Href:        "https://discord.gg/x",
			Description: "Join us",
			Order:       2,
			Active:      true,
			Category:    "social",
			Tags:        []string{"chat", "community"},
			Photo:       &photo,
		}
		if err := store.CreateLinkRow(ctx, row); err != nil {
			t.Fatalf("CreateLinkRow() error = %v", err)
		}
		if row.ID == "" {
			t.Fatal("CreateLinkRow() did not assign ID")
		}

		got, err := store.GetLinkRow(ctx, row.ID)
		if err != nil {
			t.Fatalf("GetLinkRow() error = %v", err)
		}
		if got.Text != "Discord" || got.Category != "social" || !got.Active {
			t.Errorf("GetLinkRow() = %+v, want stored fields", got)
		}
		if len(got.Tags) != 2 || got.Tags[1] != "community" {
			t.Errorf("GetLinkRow().Tags = %v, want [chat community]", got.Tags)
		}
		if got.Photo == nil || *got.Photo != photo {
			t.Errorf("GetLinkRow().Photo = %v, want %q", got.Photo, photo)
		}

		got.Text = "Discord server"
		got.Active = false
		if err := store.UpdateLinkRow(ctx, got); err != nil {
			t.Fatalf("UpdateLinkRow() error = %v", err)
		}
		updated, _ := store.GetLinkRow(ctx, row.ID)
		if updated.Text != "Discord server" || updated.Active {
			t.Errorf("after update = %+v", updated)
		}

		if err := store.DeleteLinkRow(ctx, row.ID); err != nil {
			t.Fatalf("DeleteLinkRow() error = %v", err)
		}
		if _, err := store.GetLinkRow(ctx, row.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetLinkRow() after delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("LinkRowNotFound", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		if err := store.UpdateLinkRow(ctx, &LinkRow{ID: "missing", Text: "x", Href: "y"}); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateLinkRow() error = %v, want ErrNotFound", err)
		}
		if err := store.DeleteLinkRow(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("DeleteLinkRow() error = %v, want ErrNotFound", err)
		}

		var storErr *StorageError
		err := store.DeleteLinkRow(ctx, "missing")
		if !errors.As(err, &storErr) || storErr.Entity != "linkrow" {
			t.Errorf("DeleteLinkRow() error = %v, want *StorageError for linkrow", err)
		}
	})

	t.Run("ListLinkRowsOrder", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		for _, r := range []*LinkRow{
			{Text: "b", Href: "h", Order: 2},
			{Text: "z", Href: "h", Order: 1},
			{Text: "a", Href: "h", Order: 2},
		} {
			if err := store.CreateLinkRow(ctx, r); err != nil {
				t.Fatalf("CreateLinkRow() error = %v", err)
			}
		}

		rows, _ := store.ListLinkRows(ctx)
		want := []string{"z", "a", "b"}
		if len(rows) != len(want) {
			t.Fatalf("ListLinkRows() returned %d rows, want %d", len(rows), len(want))
		}
		for i, r := range rows {
			if r.Text != want[i] {
				t.Errorf("ListLinkRows()[%d].Text = %q, want %q", i, r.Text, want[i])
			}
		}
	})

	t.Run("SyncState", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		if _, err := store.GetSyncState(ctx, "youtube"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSyncState() error = %v, want ErrNotFound", err)
		}

		state := NewSyncState("youtube")
		state.StartSync()
		state.CompleteSync(12, 4, 8)
		if err := store.UpdateSyncState(ctx, state); err != nil {
			t.Fatalf("UpdateSyncState() error = %v", err)
		}

		got, err := store.GetSyncState(ctx, "youtube")
		if err != nil {
			t.Fatalf("GetSyncState() error = %v", err)
		}
		if got.Status != SyncStatusIdle || got.VideosStored != 4 || got.ShortsStored != 8 || got.CandidatesSeen != 12 {
			t.Errorf("GetSyncState() = %+v", got)
		}

		if err := store.UpdateSyncState(ctx, &SyncState{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("UpdateSyncState(no name) error = %v, want ErrInvalidInput", err)
		}
	})
}
