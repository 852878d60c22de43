// Package storefeed is the backend of a storefront admin plugin. It mirrors a
// YouTube channel's most recent uploads into local storage, split into
// regular videos and shorts, and manages a curated link tree.
//
// Overview
//
// A sync run has three stages:
//
//   - Fetch: resolve the channel's uploads playlist, page through recent
//     entries and batch-fetch their details from the YouTube Data API.
//   - Classify: sort by publish time, bucket uploads shorter than three
//     minutes as shorts and cap each bucket.
//   - Replace: swap the stored set for the new one in a single transaction.
//
// A failed run never changes what is stored. At most one run is in flight,
// guarded by an in-process or Redis lease.
//
// Quick Start
//
// Run the server with a key and a channel:
//
//	YOUTUBE_API_KEY=... YOUTUBE_CHANNEL_ID=UCxxxx storefeed serve
//
// Trigger a sync and read the result:
//
//	curl -X POST localhost:9000/youtube
//	curl localhost:9000/youtube
//
// Configuration
//
// Settings load from several sources:
//
//   1. Environment variables (highest priority)
//   2. A .env file in the working directory
//   3. Config file (storefeed.yaml or storefeed.json, in the working
//      directory or ~/.config/storefeed/)
//   4. Default values (lowest priority)
//
// Environment variables use the STOREFEED_ prefix, for example:
//
//   - STOREFEED_YOUTUBE_API_KEY (or YOUTUBE_API_KEY)
//   - STOREFEED_YOUTUBE_CHANNEL_ID (or YOUTUBE_CHANNEL_ID)
//   - STOREFEED_MAX_VIDEOS, STOREFEED_MAX_SHORTS
//   - STOREFEED_SYNC_SCHEDULE: cron spec, default "0 */12 * * *"
//   - STOREFEED_STORAGE_DRIVER: json, sqlite or postgres
//   - STOREFEED_REDIS_URL: enables the Redis sync lease
//   - STOREFEED_NATS_URL: enables sync events
//
// Error Handling
//
// Checking for sentinel errors:
//
//	if errors.Is(err, storefeed.ErrSyncInProgress) {
//		fmt.Println("another sync is running")
//	}
//
// Extracting wrapped error details:
//
//	var syncErr *storefeed.SyncError
//	if errors.As(err, &syncErr) {
//		fmt.Printf("sync failed at %s: %v\n", syncErr.Stage, syncErr.Err)
//	}
//
// Packages
//
//   - youtube: fetch, classification and the sync manager
//   - storage: JSON file and GORM (sqlite, postgres) stores
//   - linktree: validated link-tree CRUD
//   - api: fiber HTTP server
//   - config: configuration loading
//   - http: rate-limited, circuit-broken transport for the Data API
package storefeed
