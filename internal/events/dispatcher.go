package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anonto42/nano-midea/engine/internal/metrics"
	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/services"
)

// Sink accepts post change events.
type Sink interface {
	Dispatch(ctx context.Context, source string, ev models.PostEvent) error
}

// Validator checks an event against its schema tags.
type Validator interface {
	Validate(i interface{}) error
}

// Dispatcher validates post events at the trigger boundary and runs the
// matching fan-out. Both namespaces run the same fan-out.
type Dispatcher struct {
	fanout    *services.FanoutService
	validator Validator
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(fanout *services.FanoutService, v Validator, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		fanout:    fanout,
		validator: v,
		logger:    logger.With(slog.String("component", "triggers")),
		metrics:   m,
	}
}

// Dispatch runs the fan-out for ev. Only a malformed event is an error; fan-out
// failures are handled inside the fan-out service.
func (d *Dispatcher) Dispatch(ctx context.Context, source string, ev models.PostEvent) error {
	if err := d.validator.Validate(ev); err != nil {
		d.metrics.Trigger(source, err)
		d.logger.Warn("rejected post event", slog.String("source", source), slog.String("post_id", ev.PostID), slog.String("error", err.Error()))
		return fmt.Errorf("post event %s: %w", ev.PostID, err)
	}
	d.metrics.Trigger(source, nil)

	after := *ev.After
	after.ID = ev.PostID
	d.logger.Info("post event received",
		slog.String("source", source),
		slog.String("kind", string(ev.Kind)),
		slog.String("namespace", string(ev.Namespace)),
		slog.String("post_id", ev.PostID),
	)

	switch ev.Kind {
	case models.EventCreated:
		d.fanout.OnPostCreated(ctx, &after)
	case models.EventUpdated:
		before := *ev.Before
		before.ID = ev.PostID
		d.fanout.OnPostUpdated(ctx, &before, &after)
	}
	return nil
}
