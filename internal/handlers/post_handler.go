package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/services"
)

// PostHandler handles HTTP requests related to posts
type PostHandler struct {
	posts  *services.PostService
	reader *services.ReaderService
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(posts *services.PostService, reader *services.ReaderService) *PostHandler {
	return &PostHandler{posts: posts, reader: reader}
}

// RegisterPostRoutes registers post-related routes
func (h *PostHandler) RegisterPostRoutes(g *echo.Group) {
	g.POST("/posts", h.CreatePost)
	g.POST("/posts/batch", h.GetPostsBatch)
	g.GET("/posts/:id", h.GetPost)
	g.GET("/posts/:id/replies", h.GetReplies)
	g.DELETE("/posts/:id", h.DeletePost)
	g.GET("/users/:uid/posts", h.GetUserPosts)
}

// namespaceParam reads ?namespace=, defaulting to the current namespace.
func namespaceParam(c echo.Context) models.Namespace {
	if models.Namespace(c.QueryParam("namespace")) == models.NamespaceLegacy {
		return models.NamespaceLegacy
	}
	return models.NamespaceCurrent
}

// CreatePost creates a new post
func (h *PostHandler) CreatePost(c echo.Context) error {
	uid, err := actor(c)
	if err != nil {
		return err
	}
	var req models.CreatePostRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	post, err := h.posts.Create(c.Request().Context(), uid, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, post)
}

// DeletePost deletes a post of the caller
func (h *PostHandler) DeletePost(c echo.Context) error {
	uid, err := actor(c)
	if err != nil {
		return err
	}
	res, err := h.posts.Delete(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// GetPost retrieves a single post, falling back to the other namespace
func (h *PostHandler) GetPost(c echo.Context) error {
	post, err := h.reader.GetPost(c.Request().Context(), namespaceParam(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, post)
}

// GetPostsBatch retrieves several posts in request order; missing ids are omitted
func (h *PostHandler) GetPostsBatch(c echo.Context) error {
	var req models.PostIDsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ns := models.NamespaceCurrent
	if models.Namespace(req.Namespace) == models.NamespaceLegacy {
		ns = models.NamespaceLegacy
	}
	posts, err := h.reader.GetPosts(c.Request().Context(), ns, req.IDs)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"posts": posts})
}

// GetUserPosts lists the newest posts of one author
func (h *PostHandler) GetUserPosts(c echo.Context) error {
	posts, err := h.reader.ListAuthorPosts(c.Request().Context(), namespaceParam(c), c.Param("uid"), pageSize(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"posts": posts})
}

// GetReplies lists the direct replies to a post
func (h *PostHandler) GetReplies(c echo.Context) error {
	replies, err := h.reader.ListReplies(c.Request().Context(), namespaceParam(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"posts": replies})
}
