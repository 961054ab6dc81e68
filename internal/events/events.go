// Package events announces index lifecycle changes on Kafka and applies
// them on the searcher side: a rebuilt index is reloaded and the query
// cache dropped, a deleted one is unloaded.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/kafka"
)

// Type names a lifecycle change.
type Type string

const (
	Built   Type = "build"
	Deleted Type = "delete"
)

// IndexEvent is the JSON payload published for every build and delete,
// keyed by index id.
type IndexEvent struct {
	Type       Type      `json:"type"`
	IndexID    string    `json:"index_id"`
	Generation int64     `json:"generation,omitempty"`
	Documents  int       `json:"documents,omitempty"`
	Terms      int       `json:"terms,omitempty"`
	At         time.Time `json:"at"`
}

// Sender is the part of kafka.Producer the publisher needs.
type Sender interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher emits IndexEvents.
type Publisher struct {
	sender Sender
	now    func() time.Time
	logger *slog.Logger
}

func NewPublisher(sender Sender) *Publisher {
	return &Publisher{
		sender: sender,
		now:    time.Now,
		logger: slog.Default().With("component", "event-publisher"),
	}
}

// Built announces a successful build of id described by meta.
func (p *Publisher) Built(ctx context.Context, id string, meta index.Meta) error {
	return p.publish(ctx, IndexEvent{
		Type:       Built,
		IndexID:    id,
		Generation: meta.Generation(),
		Documents:  meta.N,
		Terms:      meta.Terms,
	})
}

// Deleted announces that id is gone.
func (p *Publisher) Deleted(ctx context.Context, id string) error {
	return p.publish(ctx, IndexEvent{Type: Deleted, IndexID: id})
}

func (p *Publisher) publish(ctx context.Context, ev IndexEvent) error {
	ev.At = p.now().UTC()
	if err := p.sender.Publish(ctx, kafka.Event{Key: ev.IndexID, Value: ev}); err != nil {
		return fmt.Errorf("publishing %s event for %s: %w", ev.Type, ev.IndexID, err)
	}
	p.logger.Info("index event published",
		"type", ev.Type,
		"index", ev.IndexID,
		"generation", ev.Generation,
	)
	return nil
}
