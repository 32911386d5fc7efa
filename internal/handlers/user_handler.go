package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/engine/internal/services"
)

// UserHandler serves profile reads
type UserHandler struct {
	reader *services.ReaderService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(reader *services.ReaderService) *UserHandler {
	return &UserHandler{reader: reader}
}

// RegisterUserRoutes registers user routes
func (h *UserHandler) RegisterUserRoutes(g *echo.Group) {
	g.GET("/users/:uid", h.GetProfile)
	g.GET("/usernames/:username/available", h.CheckUsername)
}

// GetProfile returns a user with their engagement stats
func (h *UserHandler) GetProfile(c echo.Context) error {
	profile, err := h.reader.GetProfile(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *UserHandler) CheckUsername(c echo.Context) error {
	ok, err := h.reader.UsernameAvailable(c.Request().Context(), c.Param("username"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"available": ok})
}
