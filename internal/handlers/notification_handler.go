package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/engine/internal/services"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	reader *services.ReaderService
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(reader *services.ReaderService) *NotificationHandler {
	return &NotificationHandler{reader: reader}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.PUT("/notifications/:id/checked", h.MarkChecked)
}

// GetNotifications lists the caller's notifications with actor profiles, newest first
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	uid, err := actor(c)
	if err != nil {
		return err
	}
	list, err := h.reader.ListNotifications(c.Request().Context(), uid, pageSize(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"notifications": list})
}

// MarkChecked acknowledges one notification of the caller
func (h *NotificationHandler) MarkChecked(c echo.Context) error {
	uid, err := actor(c)
	if err != nil {
		return err
	}
	if err := h.reader.MarkChecked(c.Request().Context(), uid, c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
