package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/engine/internal/middleware"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
	"github.com/anonto42/nano-midea/engine/pkg/apperror"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// httpError converts a service error into an echo HTTP error.
func httpError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	status := apperror.MapErrorToStatus(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, err.Error())
}

// bindAndValidate binds the request body into req and validates it.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return httpError(err)
	}
	return nil
}

// actor returns the authenticated uid or a 401.
func actor(c echo.Context) (string, error) {
	uid := middleware.ActorID(c)
	if uid == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, apperror.ErrUnauthorized.Error())
	}
	return uid, nil
}

func pageSize(c echo.Context) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || n <= 0 {
		return defaultPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
