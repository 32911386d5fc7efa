package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
)

// QueueGroup spreads trigger deliveries across engine instances.
const QueueGroup = "engine-fanout"

const tracerName = "github.com/anonto42/nano-midea/engine/internal/events"

// Subject is the NATS subject for a change of kind in collection, e.g. "posts.created".
func Subject(collection string, kind models.EventKind) string {
	return collection + "." + string(kind)
}

// TriggerConsumer feeds post change events published on NATS to a Sink.
type TriggerConsumer struct {
	nc         *nats.Conn
	sink       Sink
	namespaces repositories.Namespaces
	timeout    time.Duration
	logger     *slog.Logger
	subs       []*nats.Subscription
}

// NewTriggerConsumer creates a new TriggerConsumer
func NewTriggerConsumer(nc *nats.Conn, sink Sink, namespaces repositories.Namespaces, logger *slog.Logger) *TriggerConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerConsumer{
		nc:         nc,
		sink:       sink,
		namespaces: namespaces,
		timeout:    30 * time.Second,
		logger:     logger.With(slog.String("component", "nats")),
	}
}

// Subjects lists the subjects the consumer listens on: created and updated
// for both the current and the legacy namespace.
func (c *TriggerConsumer) Subjects() []string {
	var out []string
	for _, coll := range []string{c.namespaces.Current, c.namespaces.Legacy} {
		out = append(out, Subject(coll, models.EventCreated), Subject(coll, models.EventUpdated))
	}
	return out
}

// Start subscribes to every trigger subject in the engine's queue group.
func (c *TriggerConsumer) Start() error {
	for _, subject := range c.Subjects() {
		sub, err := c.nc.QueueSubscribe(subject, QueueGroup, c.HandleMsg)
		if err != nil {
			c.Close()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		c.subs = append(c.subs, sub)
	}
	c.logger.Info("listening for post events", slog.Any("subjects", c.Subjects()))
	return nil
}

// HandleMsg decodes one event and dispatches it under the producer's trace.
// The namespace and kind come from the subject when the payload omits them.
func (c *TriggerConsumer) HandleMsg(msg *nats.Msg) {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "process_post_event",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination", msg.Subject)),
	)
	defer span.End()

	var ev models.PostEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid payload")
		c.logger.Error("invalid event format", slog.String("subject", msg.Subject), slog.String("error", err.Error()))
		return
	}
	c.fillFromSubject(msg.Subject, &ev)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.sink.Dispatch(ctx, "nats", ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
	}
}

func (c *TriggerConsumer) fillFromSubject(subject string, ev *models.PostEvent) {
	coll, kind, ok := strings.Cut(subject, ".")
	if !ok {
		return
	}
	if ev.Namespace == "" {
		if ns, known := c.namespaces.NamespaceOf(coll); known {
			ev.Namespace = ns
		}
	}
	if ev.Kind == "" {
		ev.Kind = models.EventKind(kind)
	}
}

// Close drops every subscription.
func (c *TriggerConsumer) Close() {
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("unsubscribe failed", slog.String("subject", sub.Subject), slog.String("error", err.Error()))
		}
	}
	c.subs = nil
}

// NATSPublisher is a Sink that publishes events for the TriggerConsumers of
// every engine instance instead of dispatching them locally.
type NATSPublisher struct {
	nc         *nats.Conn
	namespaces repositories.Namespaces
}

// NewNATSPublisher creates a new NATSPublisher
func NewNATSPublisher(nc *nats.Conn, namespaces repositories.Namespaces) *NATSPublisher {
	return &NATSPublisher{nc: nc, namespaces: namespaces}
}

func (p *NATSPublisher) Dispatch(ctx context.Context, _ string, ev models.PostEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}
	msg := &nats.Msg{
		Subject: Subject(p.namespaces.Collection(ev.Namespace), ev.Kind),
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))
	return p.nc.PublishMsg(msg)
}
