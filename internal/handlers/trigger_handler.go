package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/engine/internal/events"
	"github.com/anonto42/nano-midea/engine/internal/models"
)

// TriggerSecretHeader carries the shared secret of push-style trigger bridges.
const TriggerSecretHeader = "X-Trigger-Secret"

// TriggerHandler accepts post change events pushed over HTTP
type TriggerHandler struct {
	sink   events.Sink
	secret string
}

// NewTriggerHandler creates a new TriggerHandler
func NewTriggerHandler(sink events.Sink, secret string) *TriggerHandler {
	return &TriggerHandler{sink: sink, secret: secret}
}

// RegisterTriggerRoutes registers the trigger webhook
func (h *TriggerHandler) RegisterTriggerRoutes(g *echo.Group) {
	g.POST("/triggers/:namespace/:kind", h.Receive)
}

// Receive dispatches one event. Namespace and kind come from the path.
func (h *TriggerHandler) Receive(c echo.Context) error {
	if !secretMatches(c.Request().Header.Get(TriggerSecretHeader), h.secret) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid trigger secret")
	}
	var ev models.PostEvent
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid event payload")
	}
	ev.Namespace = models.Namespace(c.Param("namespace"))
	ev.Kind = models.EventKind(c.Param("kind"))

	if err := h.sink.Dispatch(c.Request().Context(), "webhook", ev); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]bool{"ok": true})
}

// secretMatches compares in constant time; an unset secret never matches.
func secretMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
