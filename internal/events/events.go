// Package events announces completed syncs so storefront caches can be
// revalidated.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectYouTubeSynced is published after every successful YouTube sync.
const SubjectYouTubeSynced = "storefeed.youtube.synced"

// SyncEvent is the payload of SubjectYouTubeSynced.
type SyncEvent struct {
	Pipeline   string    `json:"pipeline"`
	Videos     int       `json:"videos"`
	Shorts     int       `json:"shorts"`
	Candidates int       `json:"candidates"`
	SyncedAt   time.Time `json:"synced_at"`
}

// Publisher sends sync events.
type Publisher interface {
	PublishSync(ctx context.Context, ev SyncEvent) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishSync(context.Context, SyncEvent) error { return nil }
func (Nop) Close() error                                 { return nil }

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSPublisher publishes events on a core NATS connection.
type NATSPublisher struct {
	nc      conn
	subject string
}

var _ Publisher = (*NATSPublisher)(nil)

// ConnectNATS dials url and returns a publisher for SubjectYouTubeSynced.
func ConnectNATS(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("storefeed"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect nats: %w", err)
	}
	return &NATSPublisher{nc: nc, subject: SubjectYouTubeSynced}, nil
}

// PublishSync marshals ev and publishes it, waiting for the server to
// acknowledge the flush or ctx to expire.
func (p *NATSPublisher) PublishSync(ctx context.Context, ev SyncEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("events: publish %s: %w", p.subject, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("events: flush: %w", err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
