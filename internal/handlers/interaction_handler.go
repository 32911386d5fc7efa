package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/engine/internal/services"
)

// InteractionHandler exposes the graph mutations over HTTP
type InteractionHandler struct {
	interactions *services.InteractionService
}

// NewInteractionHandler creates a new InteractionHandler
func NewInteractionHandler(interactions *services.InteractionService) *InteractionHandler {
	return &InteractionHandler{interactions: interactions}
}

// RegisterInteractionRoutes registers follow, engagement, bookmark and pin routes
func (h *InteractionHandler) RegisterInteractionRoutes(g *echo.Group) {
	g.POST("/users/:uid/follow", h.mutate(h.interactions.Follow, "uid"))
	g.DELETE("/users/:uid/follow", h.mutate(h.interactions.Unfollow, "uid"))

	g.POST("/posts/:post_id/likes", h.mutate(h.interactions.Like, "post_id"))
	g.DELETE("/posts/:post_id/likes", h.mutate(h.interactions.Unlike, "post_id"))
	g.POST("/posts/:post_id/reshares", h.mutate(h.interactions.Reshare, "post_id"))
	g.DELETE("/posts/:post_id/reshares", h.mutate(h.interactions.Unreshare, "post_id"))

	g.POST("/posts/:post_id/bookmark", h.mutate(h.interactions.Bookmark, "post_id"))
	g.DELETE("/posts/:post_id/bookmark", h.mutate(h.interactions.Unbookmark, "post_id"))
	g.DELETE("/bookmarks", h.ClearBookmarks)

	g.PUT("/profile/pin/:post_id", h.mutate(h.interactions.Pin, "post_id"))
	g.DELETE("/profile/pin", h.Unpin)
}

type mutation func(ctx context.Context, actorID, id string) (services.Result, error)

// mutate adapts a mutation taking the id from path parameter param. A skipped
// mutation still answers 200 with applied=false.
func (h *InteractionHandler) mutate(fn mutation, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, err := actor(c)
		if err != nil {
			return err
		}
		res, err := fn(c.Request().Context(), uid, c.Param(param))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

// Unpin clears the pinned post of the caller
func (h *InteractionHandler) Unpin(c echo.Context) error {
	uid, err := actor(c)
	if err != nil {
		return err
	}
	res, err := h.interactions.Unpin(c.Request().Context(), uid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// ClearBookmarks deletes every bookmark of the caller
func (h *InteractionHandler) ClearBookmarks(c echo.Context) error {
	uid, err := actor(c)
	if err != nil {
		return err
	}
	n, err := h.interactions.ClearBookmarks(c.Request().Context(), uid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}
