package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/resilience"
)

// Target is the engine state an event may change.
type Target interface {
	Loaded() (string, index.Meta, bool)
	Load(id string) error
	Unload() error
}

// Invalidator drops cached query results.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Handle returns a kafka.MessageHandler that keeps target in step with
// the indexer. Events for indices other than the loaded one are ignored.
// Reloads retry with backoff; a missing index is not retried. inv may be
// nil.
func Handle(target Target, inv Invalidator, retry resilience.RetryConfig) kafka.MessageHandler {
	logger := slog.Default().With("component", "event-consumer")
	retry.Retryable = func(err error) bool {
		return !errors.Is(err, apperrors.ErrIndexNotFound)
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[IndexEvent](value)
		if err != nil {
			logger.Error("failed to decode index event", "error", err, "key", string(key))
			return nil
		}
		loadedID, meta, ok := target.Loaded()
		if !ok || loadedID != ev.IndexID {
			logger.Debug("ignoring event for unloaded index", "type", ev.Type, "index", ev.IndexID)
			return nil
		}

		switch ev.Type {
		case Built:
			if meta.Generation() == ev.Generation {
				logger.Debug("index already at event generation", "index", ev.IndexID)
				return nil
			}
			err := resilience.Retry(ctx, "reload-index", retry, func() error {
				return target.Load(ev.IndexID)
			})
			if err != nil {
				return fmt.Errorf("reloading index %s: %w", ev.IndexID, err)
			}
		case Deleted:
			if err := target.Unload(); err != nil {
				logger.Warn("unloading deleted index", "index", ev.IndexID, "error", err)
			}
		default:
			logger.Warn("unknown index event type", "type", ev.Type, "index", ev.IndexID)
			return nil
		}

		if inv != nil {
			if err := inv.Invalidate(ctx); err != nil {
				logger.Warn("cache invalidation after index event failed", "index", ev.IndexID, "error", err)
			}
		}
		logger.Info("index event applied", "type", ev.Type, "index", ev.IndexID, "generation", ev.Generation)
		return nil
	}
}
