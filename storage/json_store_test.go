package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *JSONStore {
	t.Helper()
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	return store
}

func TestNewJSONStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.json")

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	defer store.Close()

	// File should exist after creation
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("store file was not created")
	}
}

func TestJSONStore_LoadExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.json")
	ctx := context.Background()

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	videos := []*Video{
		{VideoID: "vid1", Type: VideoTypeVideo, Title: "Long one", Thumbnail: "https://i.ytimg.com/vi/vid1/hqdefault.jpg", Order: 1},
		{VideoID: "sh1", Type: VideoTypeShort, Title: "Short one", Thumbnail: "https://i.ytimg.com/vi/sh1/hqdefault.jpg", Order: 1},
	}
	if err := store.ReplaceVideos(ctx, videos); err != nil {
		t.Fatalf("ReplaceVideos() error = %v", err)
	}
	store.Close()

	store2, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore() reopen error = %v", err)
	}
	defer store2.Close()

	loaded, err := store2.ListVideos(ctx)
	if err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("ListVideos() returned %d videos, want 2", len(loaded))
	}
	// shorts sort before videos ("short" < "video")
	if loaded[0].VideoID != "sh1" || loaded[1].VideoID != "vid1" {
		t.Errorf("ListVideos() order = [%s %s], want [sh1 vid1]", loaded[0].VideoID, loaded[1].VideoID)
	}
}

func TestJSONStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewJSONStore(path)
	if !errors.Is(err, ErrStorageCorrupt) {
		t.Errorf("NewJSONStore() error = %v, want ErrStorageCorrupt", err)
	}
}

func TestJSONStore_LockHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.json")

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	defer store.Close()

	lock := NewFileLock(path)
	if err := lock.Lock(50 * time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		lock.Unlock()
		t.Errorf("second Lock() error = %v, want ErrLockTimeout", err)
	}
}

func TestJSONStore_ReplaceVideosInvalidKeepsPrevious(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.ReplaceVideos(ctx, []*Video{
		{VideoID: "keep", Type: VideoTypeVideo, Title: "Keep", Thumbnail: "t", Order: 1},
	}); err != nil {
		t.Fatalf("ReplaceVideos() error = %v", err)
	}

	err := store.ReplaceVideos(ctx, []*Video{
		{VideoID: "new", Type: VideoTypeVideo, Title: "New", Thumbnail: "t", Order: 1},
		{VideoID: "bad", Type: "clip", Title: "Bad", Thumbnail: "t", Order: 1},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ReplaceVideos() error = %v, want ErrInvalidInput", err)
	}

	videos, _ := store.ListVideos(ctx)
	if len(videos) != 1 || videos[0].VideoID != "keep" {
		t.Errorf("after failed replace videos = %v, want only keep", videoIDs(videos))
	}
}

func TestJSONStore_ReplaceVideosWriteFailure(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	dir := t.TempDir()
	store, err := NewJSONStore(filepath.Join(dir, "store.json"))
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.ReplaceVideos(ctx, []*Video{
		{VideoID: "old", Type: VideoTypeShort, Title: "Old", Thumbnail: "t", Order: 1},
	}); err != nil {
		t.Fatalf("ReplaceVideos() error = %v", err)
	}

	// A read-only directory makes the temp file creation fail.
	if err := os.Chmod(dir, 0500); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0700)

	err = store.ReplaceVideos(ctx, []*Video{
		{VideoID: "new", Type: VideoTypeShort, Title: "New", Thumbnail: "t", Order: 1},
	})
	if err == nil {
		t.Fatal("ReplaceVideos() expected error on read-only directory")
	}

	videos, _ := store.ListVideos(ctx)
	if got := videoIDs(videos); len(got) != 1 || got[0] != "old" {
		t.Errorf("after write failure videos = %v, want [old]", got)
	}
}

func TestJSONStore_ReturnsCopies(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	row := &LinkRow{Text: "Shop", Href: "https://example.com", Active: true}
	if err := store.CreateLinkRow(ctx, row); err != nil {
		t.Fatalf("CreateLinkRow() error = %v", err)
	}

	got, _ := store.GetLinkRow(ctx, row.ID)
	got.Text = "mutated"

	again, _ := store.GetLinkRow(ctx, row.ID)
	if again.Text != "Shop" {
		t.Errorf("stored row mutated through returned pointer: Text = %q", again.Text)
	}
}

func TestJSONStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return newTestStore(t) })
}

func videoIDs(videos []*Video) []string {
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.VideoID
	}
	return ids
}
