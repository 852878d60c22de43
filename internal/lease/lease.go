// Package lease provides named, TTL-bounded exclusive leases so that at most
// one sync run is in flight per pipeline.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrHeld is returned by Acquire when another holder owns the lease.
var ErrHeld = errors.New("lease: held by another holder")

// Manager hands out leases by name.
type Manager interface {
	// Acquire takes the named lease for ttl. It returns ErrHeld if the lease
	// is owned by someone else and has not expired.
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Lease is an acquired lease.
type Lease interface {
	// Release gives the lease up. Releasing a lease that already expired and
	// was taken by another holder is a no-op.
	Release(ctx context.Context) error
}

// Local is an in-process Manager.
type Local struct {
	mu    sync.Mutex
	held  map[string]localEntry
	nowFn func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

var _ Manager = (*Local)(nil)

// NewLocal creates an in-process lease manager.
func NewLocal() *Local {
	return &Local{
		held:  make(map[string]localEntry),
		nowFn: time.Now,
	}
}

// Acquire implements Manager.
func (l *Local) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if e, ok := l.held[name]; ok && now.Before(e.expires) {
		return nil, ErrHeld
	}

	token := uuid.NewString()
	l.held[name] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLease{owner: l, name: name, token: token}, nil
}

type localLease struct {
	owner *Local
	name  string
	token string
}

func (ll *localLease) Release(ctx context.Context) error {
	ll.owner.mu.Lock()
	defer ll.owner.mu.Unlock()

	if e, ok := ll.owner.held[ll.name]; ok && e.token == ll.token {
		delete(ll.owner.held, ll.name)
	}
	return nil
}
