package youtube

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storefeed/internal/events"
	"storefeed/internal/lease"
	"storefeed/internal/metrics"
	"storefeed/storage"
)

// PipelineName keys the sync state row, the lease and the metrics.
const PipelineName = "youtube"

const (
	defaultFetchTimeout = 60 * time.Second
	defaultLeaseTTL     = 5 * time.Minute
	stateWriteTimeout   = 5 * time.Second
)

// Source yields the candidates for one run. *Fetcher implements it.
type Source interface {
	Fetch(ctx context.Context, limits Limits) ([]Candidate, error)
}

// SyncStore is the storage a sync run writes to.
type SyncStore interface {
	storage.VideoStore
	storage.SyncStateStore
}

// SyncError records which stage of a run failed.
type SyncError struct {
	// Stage is "lease", "fetch" or "store".
	Stage string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("youtube: sync %s: %v", e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Is maps the fetch and store stages onto their sentinels, so a fetch
// timeout matches ErrSourceFetchFailed even when the source returned a bare
// context error.
func (e *SyncError) Is(target error) bool {
	switch e.Stage {
	case "fetch":
		return target == ErrSourceFetchFailed
	case "store":
		return target == ErrStorageWriteFailed
	}
	return false
}

// SyncResult is the outcome of a run.
type SyncResult struct {
	// Videos and Shorts count the rows written per type.
	Videos int `json:"videos"`
	Shorts int `json:"shorts"`
	// Candidates is the number of valid uploads considered.
	Candidates int `json:"candidates"`
	// Skipped is true when the source had nothing to sync and storage was
	// left untouched.
	Skipped bool `json:"skipped"`
	// Stored is the new video set, videos first.
	Stored   []ClassifiedVideo `json:"stored,omitempty"`
	Duration time.Duration     `json:"duration_ns"`
}

// SyncManagerConfig wires a SyncManager. Store and Source are required.
type SyncManagerConfig struct {
	Store  SyncStore
	Source Source
	// Lease defaults to an in-process lease.
	Lease lease.Manager
	// Metrics and Events are optional.
	Metrics *metrics.Metrics
	Events  events.Publisher
	Logger  *zap.Logger
	// FetchTimeout bounds the fetch stage. Zero means 60s.
	FetchTimeout time.Duration
	// LeaseTTL bounds how long a crashed run blocks others. Zero means 5m.
	LeaseTTL time.Duration
}

// SyncManager runs the fetch, classify and replace pipeline with at most
// one run in flight.
type SyncManager struct {
	store        SyncStore
	source       Source
	lease        lease.Manager
	metrics      *metrics.Metrics
	events       events.Publisher
	logger       *zap.Logger
	fetchTimeout time.Duration
	leaseTTL     time.Duration
}

// NewSyncManager creates a SyncManager.
func NewSyncManager(cfg SyncManagerConfig) (*SyncManager, error) {
	if cfg.Store == nil {
		return nil, errors.New("youtube: sync manager requires a store")
	}
	if cfg.Source == nil {
		return nil, errors.New("youtube: sync manager requires a source")
	}

	sm := &SyncManager{
		store:        cfg.Store,
		source:       cfg.Source,
		lease:        cfg.Lease,
		metrics:      cfg.Metrics,
		events:       cfg.Events,
		logger:       cfg.Logger,
		fetchTimeout: cfg.FetchTimeout,
		leaseTTL:     cfg.LeaseTTL,
	}
	if sm.lease == nil {
		sm.lease = lease.NewLocal()
	}
	if sm.events == nil {
		sm.events = events.Nop{}
	}
	if sm.logger == nil {
		sm.logger = zap.NewNop()
	}
	if sm.fetchTimeout <= 0 {
		sm.fetchTimeout = defaultFetchTimeout
	}
	if sm.leaseTTL <= 0 {
		sm.leaseTTL = defaultLeaseTTL
	}
	return sm, nil
}

// Run performs one sync. It returns ErrSyncInProgress when another run holds
// the lease, a skipped result with a nil error when the source has nothing
// to sync, and a *SyncError when fetching or storing fails. A failed run
// never changes the stored video set.
func (sm *SyncManager) Run(ctx context.Context, limits Limits) (*SyncResult, error) {
	start := time.Now()
	log := sm.logger.With(zap.String("pipeline", PipelineName))

	held, err := sm.lease.Acquire(ctx, "sync:"+PipelineName, sm.leaseTTL)
	if errors.Is(err, lease.ErrHeld) {
		sm.metrics.ObserveRun(PipelineName, metrics.OutcomeBusy, time.Since(start))
		return nil, ErrSyncInProgress
	}
	if err != nil {
		return nil, &SyncError{Stage: "lease", Err: err}
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateWriteTimeout)
		defer cancel()
		if err := held.Release(releaseCtx); err != nil {
			log.Warn("failed to release sync lease", zap.Error(err))
		}
	}()

	state := sm.loadState(ctx, log)
	state.StartSync()
	sm.saveState(ctx, log, state)

	fetchCtx, cancel := context.WithTimeout(ctx, sm.fetchTimeout)
	cands, err := sm.source.Fetch(fetchCtx, limits)
	cancel()

	if errors.Is(err, ErrSourceUnavailable) {
		log.Warn("nothing to sync", zap.Error(err))
		state.SkipSync()
		sm.saveState(ctx, log, state)
		sm.metrics.ObserveRun(PipelineName, metrics.OutcomeSkipped, time.Since(start))
		return &SyncResult{Skipped: true, Duration: time.Since(start)}, nil
	}
	if err != nil {
		return nil, sm.fail(ctx, log, state, start, metrics.OutcomeFetchError, &SyncError{Stage: "fetch", Err: err})
	}

	out := Classify(cands, limits)
	if err := sm.store.ReplaceVideos(ctx, toStorage(out)); err != nil {
		return nil, sm.fail(ctx, log, state, start, metrics.OutcomeStoreError, &SyncError{Stage: "store", Err: err})
	}

	result := &SyncResult{Candidates: len(cands), Stored: out}
	for _, v := range out {
		if v.Type == storage.VideoTypeShort {
			result.Shorts++
		} else {
			result.Videos++
		}
	}
	result.Duration = time.Since(start)

	state.CompleteSync(result.Candidates, result.Videos, result.Shorts)
	sm.saveState(ctx, log, state)
	sm.metrics.SetStored(result.Videos, result.Shorts)
	sm.metrics.ObserveRun(PipelineName, metrics.OutcomeSuccess, result.Duration)

	if err := sm.events.PublishSync(ctx, events.SyncEvent{
		Pipeline:   PipelineName,
		Videos:     result.Videos,
		Shorts:     result.Shorts,
		Candidates: result.Candidates,
		SyncedAt:   state.LastSyncAt,
	}); err != nil {
		log.Warn("failed to publish sync event", zap.Error(err))
	}

	log.Info("sync finished",
		zap.Int("candidates", result.Candidates),
		zap.Int("videos", result.Videos),
		zap.Int("shorts", result.Shorts),
		zap.Duration("elapsed", result.Duration))
	return result, nil
}

// Status returns the persisted state of the pipeline. A pipeline that never
// ran reports idle.
func (sm *SyncManager) Status(ctx context.Context) (*storage.SyncState, error) {
	state, err := sm.store.GetSyncState(ctx, PipelineName)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.NewSyncState(PipelineName), nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (sm *SyncManager) fail(ctx context.Context, log *zap.Logger, state *storage.SyncState, start time.Time, outcome string, err *SyncError) error {
	log.Error("sync failed", zap.String("stage", err.Stage), zap.Error(err.Err))
	state.FailSync(err.Error())
	sm.saveState(ctx, log, state)
	sm.metrics.ObserveRun(PipelineName, outcome, time.Since(start))
	return err
}

func (sm *SyncManager) loadState(ctx context.Context, log *zap.Logger) *storage.SyncState {
	state, err := sm.store.GetSyncState(ctx, PipelineName)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn("failed to load sync state", zap.Error(err))
		}
		return storage.NewSyncState(PipelineName)
	}
	return state
}

// saveState persists state on a context detached from ctx so a canceled run
// still records its outcome.
func (sm *SyncManager) saveState(ctx context.Context, log *zap.Logger, state *storage.SyncState) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateWriteTimeout)
	defer cancel()
	if err := sm.store.UpdateSyncState(saveCtx, state); err != nil {
		log.Warn("failed to persist sync state", zap.Error(err))
	}
}
