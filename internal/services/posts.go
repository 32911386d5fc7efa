package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anonto42/nano-midea/engine/internal/metrics"
	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
	"github.com/anonto42/nano-midea/engine/pkg/apperror"
)

// MaxPostLength is the longest post text, in runes.
const MaxPostLength = 280

// PostService creates and deletes posts together with the author's counters.
// Notification fan-out for new posts is driven by the store's change triggers,
// not by this service.
type PostService struct {
	store        repositories.DocumentStore
	posts        repositories.PostRepository
	users        repositories.UserRepository
	interactions *InteractionService
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewPostService creates a new PostService
func NewPostService(
	store repositories.DocumentStore,
	posts repositories.PostRepository,
	users repositories.UserRepository,
	interactions *InteractionService,
	logger *slog.Logger,
	m *metrics.Metrics,
) *PostService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostService{
		store:        store,
		posts:        posts,
		users:        users,
		interactions: interactions,
		logger:       logger.With(slog.String("component", "posts")),
		metrics:      m,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Create writes a new post in the current namespace and bumps the author's
// totalPosts (and totalMedia for posts with media) in the same batch. For a
// reply the parent's reply counter is bumped afterwards, best-effort.
func (s *PostService) Create(ctx context.Context, actorID string, req models.CreatePostRequest) (*models.Post, error) {
	const op = "create_post"
	if err := requireActor(actorID); err != nil {
		s.metrics.Mutation(op, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if req.Text == "" && len(req.Images) == 0 {
		err := invalid("post needs text or media")
		s.metrics.Mutation(op, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if n := len([]rune(req.Text)); n > MaxPostLength {
		err := invalid("post text is %d characters, limit is %d", n, MaxPostLength)
		s.metrics.Mutation(op, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var parent *models.ParentRef
	if req.ParentID != "" {
		parent = &models.ParentRef{ID: req.ParentID}
		p, _, err := repositories.PostResolver(s.posts, req.ParentID,
			models.NamespaceCurrent, models.NamespaceLegacy).Resolve(ctx)
		switch {
		case err == nil:
			if author, aerr := s.users.GetUser(ctx, p.CreatedBy); aerr == nil {
				parent.Username = author.Username
			}
		case errors.Is(err, repositories.ErrNotFound):
			s.logger.Warn("replying to a missing post", slog.String("parent_id", req.ParentID), slog.String("actor_id", actorID))
		default:
			s.metrics.Mutation(op, err)
			return nil, fmt.Errorf("%s: resolve parent: %w", op, err)
		}
	}

	path := s.posts.NewPath()
	_, id, _ := repositories.SplitPath(path)
	post := &models.Post{
		ID:         id,
		Text:       req.Text,
		Images:     req.Images,
		CreatedBy:  actorID,
		Parent:     parent,
		LikedBy:    []string{},
		ResharedBy: []string{},
		CreatedAt:  s.now(),
	}

	fields := map[string]interface{}{
		"text":       post.Text,
		"createdBy":  actorID,
		"likedBy":    []string{},
		"resharedBy": []string{},
		"replyCount": int64(0),
		"createdAt":  repositories.ServerTimestamp,
		"updatedAt":  nil,
	}
	if len(post.Images) > 0 {
		fields["images"] = post.Images
	}
	if parent != nil {
		fields["parent"] = parentFields(parent)
	}
	writes := []repositories.Write{repositories.Set(path, fields), counterWrite(actorID, "totalPosts", 1)}
	if post.HasMedia() {
		writes = append(writes, counterWrite(actorID, "totalMedia", 1))
	}
	if err := s.store.Commit(ctx, writes); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			err = fmt.Errorf("%w: author profile %s", apperror.ErrNotFound, actorID)
		}
		s.metrics.Mutation(op, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.Mutation(op, nil)
	s.logger.Info("post created", slog.String("post_id", id), slog.String("actor_id", actorID))

	if parent != nil {
		if _, err := s.interactions.AdjustReplyCount(ctx, parent.ID, 1); err != nil {
			s.logger.Warn("failed to bump reply count", slog.String("parent_id", parent.ID), slog.String("error", err.Error()))
		}
	}
	return post, nil
}

// Delete removes a post owned by actor from the current namespace and
// decrements the counters Create incremented. Notifications about the post
// are left in place.
func (s *PostService) Delete(ctx context.Context, actorID, postID string) (Result, error) {
	const op = "delete_post"
	record := func(res Result, err error) (Result, error) {
		s.metrics.Mutation(op, err)
		if err != nil {
			return Result{Op: op}, fmt.Errorf("%s: %w", op, err)
		}
		return res, nil
	}
	if err := requireActor(actorID); err != nil {
		return record(Result{}, err)
	}
	post, err := s.posts.GetPost(ctx, models.NamespaceCurrent, postID)
	if errors.Is(err, repositories.ErrNotFound) {
		s.logger.Warn("post not found, skipping", slog.String("op", op), slog.String("post_id", postID))
		res := skipped(op, "post not found")
		res.PostID = postID
		return record(res, nil)
	}
	if err != nil {
		return record(Result{}, err)
	}
	if post.CreatedBy != actorID {
		return record(Result{}, fmt.Errorf("%w: post %s belongs to another user", apperror.ErrForbidden, postID))
	}

	writes := []repositories.Write{
		repositories.Delete(s.posts.Path(models.NamespaceCurrent, postID)),
		counterWrite(actorID, "totalPosts", -1),
	}
	if post.HasMedia() {
		writes = append(writes, counterWrite(actorID, "totalMedia", -1))
	}
	if err := s.store.Commit(ctx, writes); err != nil {
		return record(Result{}, err)
	}

	if parentID := post.ParentID(); parentID != "" {
		if _, err := s.interactions.AdjustReplyCount(ctx, parentID, -1); err != nil {
			s.logger.Warn("failed to decrement reply count", slog.String("parent_id", parentID), slog.String("error", err.Error()))
		}
	}
	res := applied(op)
	res.PostID = postID
	return record(res, nil)
}

func parentFields(p *models.ParentRef) map[string]interface{} {
	out := map[string]interface{}{"id": p.ID}
	if p.Username != "" {
		out["username"] = p.Username
	}
	return out
}
