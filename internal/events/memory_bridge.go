package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
)

// MemoryBridge emits post events for commits made to a MemoryStore, standing
// in for the change triggers a hosted document store provides.
type MemoryBridge struct {
	sink       Sink
	namespaces repositories.Namespaces
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewMemoryBridge creates a new MemoryBridge
func NewMemoryBridge(sink Sink, namespaces repositories.Namespaces, logger *slog.Logger) *MemoryBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBridge{
		sink:       sink,
		namespaces: namespaces,
		timeout:    30 * time.Second,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Attach subscribes the bridge to every commit of store.
func (b *MemoryBridge) Attach(store *repositories.MemoryStore) {
	store.OnChange(b.HandleChange)
}

// HandleChange converts one committed document change. Changes outside the
// posts namespaces and deletions are ignored.
func (b *MemoryBridge) HandleChange(c repositories.Change) {
	ev, ok := b.event(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.sink.Dispatch(ctx, "memory", ev); err != nil {
		b.logger.Warn("memory trigger not delivered", slog.String("post_id", c.ID), slog.String("error", err.Error()))
	}
}

func (b *MemoryBridge) event(c repositories.Change) (models.PostEvent, bool) {
	ns, ok := b.namespaces.NamespaceOf(c.Collection)
	if !ok || c.After == nil {
		return models.PostEvent{}, false
	}
	ev := models.PostEvent{
		Version:   models.PostEventVersion,
		Kind:      models.EventCreated,
		Namespace: ns,
		PostID:    c.ID,
		EmittedAt: b.now(),
	}
	var after models.Post
	if err := c.DecodeAfter(&after); err != nil {
		b.logger.Warn("undecodable post change", slog.String("post_id", c.ID), slog.String("error", err.Error()))
		return models.PostEvent{}, false
	}
	ev.After = &after
	if c.Before != nil {
		var before models.Post
		if err := c.DecodeBefore(&before); err != nil {
			b.logger.Warn("undecodable post change", slog.String("post_id", c.ID), slog.String("error", err.Error()))
			return models.PostEvent{}, false
		}
		ev.Kind = models.EventUpdated
		ev.Before = &before
	}
	return ev, true
}
