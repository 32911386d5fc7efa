package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
	"github.com/anonto42/nano-midea/engine/internal/services"
)

// NewsSecretHeader guards the admin routes.
const NewsSecretHeader = "x-news-secret"

// AdminHandler serves automated ingestion and operator views
type AdminHandler struct {
	ingest  *services.IngestService
	journal repositories.FailureJournal
	secret  string
}

// NewAdminHandler creates a new AdminHandler. journal may be nil.
func NewAdminHandler(ingest *services.IngestService, journal repositories.FailureJournal, secret string) *AdminHandler {
	return &AdminHandler{ingest: ingest, journal: journal, secret: secret}
}

// RegisterAdminRoutes registers the admin routes
func (h *AdminHandler) RegisterAdminRoutes(g *echo.Group) {
	g.Use(h.requireSecret)
	g.POST("/news-posts", h.CreateNewsPosts)
	g.GET("/fanout-failures", h.ListFanoutFailures)
}

func (h *AdminHandler) requireSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !secretMatches(c.Request().Header.Get(NewsSecretHeader), h.secret) {
			return c.JSON(http.StatusUnauthorized, map[string]interface{}{"ok": false, "error": "unauthorized"})
		}
		return next(c)
	}
}

// CreateNewsPosts turns the submitted articles into automated posts
func (h *AdminHandler) CreateNewsPosts(c echo.Context) error {
	var req models.NewsPostsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"ok": false, "error": "invalid request body"})
	}
	if len(req.Articles) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"ok": false, "error": "no articles provided"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"ok": false, "error": err.Error()})
	}

	created, err := h.ingest.IngestNews(c.Request().Context(), req.Articles)
	if err != nil {
		c.Logger().Errorf("news ingestion stopped after %d posts: %v", created, err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"ok": false, "created": created, "error": "ingestion failed"})
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"ok": true, "created": created})
}

// ListFanoutFailures returns the newest journaled fan-out failures
func (h *AdminHandler) ListFanoutFailures(c echo.Context) error {
	if h.journal == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"failures": []models.FanoutFailure{}})
	}
	rows, err := h.journal.Recent(c.Request().Context(), pageSize(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"failures": rows})
}
