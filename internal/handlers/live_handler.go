package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/engine/internal/events"
	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/services"
)

const liveWriteTimeout = 10 * time.Second

// LiveHandler streams subscription snapshots over websockets. Every message
// is a {data, loading, error} snapshot.
type LiveHandler struct {
	reader   *services.ReaderService
	push     *events.RedisPublisher
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewLiveHandler creates a new LiveHandler. push may be nil when Redis is not configured.
func NewLiveHandler(reader *services.ReaderService, push *events.RedisPublisher, logger *slog.Logger) *LiveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveHandler{
		reader: reader,
		push:   push,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With(slog.String("component", "live")),
	}
}

// RegisterLiveRoutes registers the websocket routes
func (h *LiveHandler) RegisterLiveRoutes(g *echo.Group) {
	g.GET("/live/notifications", h.Notifications)
	g.GET("/live/posts/:id", h.Post)
	if h.push != nil {
		g.GET("/live/push", h.Push)
	}
}

type startFunc func(ctx context.Context, send func(v interface{})) (stop func(), err error)

func subscribeOptions(c echo.Context) services.SubscribeOptions {
	allow, _ := strconv.ParseBool(c.QueryParam("allowNull"))
	return services.SubscribeOptions{AllowNull: allow}
}

// Notifications streams the caller's inbox
func (h *LiveHandler) Notifications(c echo.Context) error {
	uid, err := actor(c)
	if err != nil {
		return err
	}
	opts, limit := subscribeOptions(c), pageSize(c)
	return h.serve(c, func(ctx context.Context, send func(interface{})) (func(), error) {
		return h.reader.SubscribeNotifications(ctx, uid, limit, opts, func(s services.Snapshot[[]services.EnrichedNotification]) {
			send(s)
		})
	})
}

// Post streams one post
func (h *LiveHandler) Post(c echo.Context) error {
	id, ns, opts := c.Param("id"), namespaceParam(c), subscribeOptions(c)
	return h.serve(c, func(ctx context.Context, send func(interface{})) (func(), error) {
		return h.reader.SubscribePost(ctx, ns, id, opts, func(s services.Snapshot[*services.EnrichedPost]) {
			send(s)
		}), nil
	})
}

// Push relays the caller's realtime notification channel as it is published
func (h *LiveHandler) Push(c echo.Context) error {
	uid, err := actor(c)
	if err != nil {
		return err
	}
	return h.serve(c, func(ctx context.Context, send func(interface{})) (func(), error) {
		pubsub, err := h.push.Subscribe(ctx, uid)
		if err != nil {
			return nil, err
		}
		go func() {
			for msg := range pubsub.Channel() {
				var n models.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					h.logger.Warn("dropping malformed push payload", slog.String("target_id", uid), slog.String("error", err.Error()))
					continue
				}
				send(services.Snapshot[models.Notification]{Data: n})
			}
		}()
		return func() { pubsub.Close() }, nil
	})
}

// serve upgrades the connection and writes whatever start sends until the
// client goes away.
func (h *LiveHandler) serve(c echo.Context, start startFunc) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", slog.String("error", err.Error()))
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	out := make(chan interface{}, 16)
	send := func(v interface{}) {
		select {
		case out <- v:
		case <-ctx.Done():
		}
	}
	stop, err := start(ctx, send)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(liveWriteTimeout))
		return nil
	}
	defer stop()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case v := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(v); err != nil {
				h.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
