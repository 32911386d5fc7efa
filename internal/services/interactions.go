package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anonto42/nano-midea/engine/internal/metrics"
	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
	"github.com/anonto42/nano-midea/engine/pkg/apperror"
)

// InteractionService implements the graph mutations users invoke directly.
// Each one commits its own atomic batch; notifications are sent only after
// that batch is durable and never undo it.
type InteractionService struct {
	store     repositories.DocumentStore
	posts     repositories.PostRepository
	bookmarks repositories.BookmarkRepository
	fanout    *FanoutService
	writer    *BatchWriter
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewInteractionService creates a new InteractionService
func NewInteractionService(
	store repositories.DocumentStore,
	posts repositories.PostRepository,
	bookmarks repositories.BookmarkRepository,
	fanout *FanoutService,
	writer *BatchWriter,
	logger *slog.Logger,
	m *metrics.Metrics,
) *InteractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InteractionService{
		store:     store,
		posts:     posts,
		bookmarks: bookmarks,
		fanout:    fanout,
		writer:    writer,
		logger:    logger.With(slog.String("component", "interactions")),
		metrics:   m,
	}
}

func (s *InteractionService) record(op string, res Result, err error) (Result, error) {
	s.metrics.Mutation(op, err)
	if err != nil {
		return Result{Op: op}, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// Follow adds target to actor's following set and actor to target's followers
// in one batch, then notifies target.
func (s *InteractionService) Follow(ctx context.Context, actorID, targetID string) (Result, error) {
	return s.manageFollow(ctx, "follow", actorID, targetID, true)
}

// Unfollow reverts Follow. No notification is removed or sent.
func (s *InteractionService) Unfollow(ctx context.Context, actorID, targetID string) (Result, error) {
	return s.manageFollow(ctx, "unfollow", actorID, targetID, false)
}

func (s *InteractionService) manageFollow(ctx context.Context, op, actorID, targetID string, follow bool) (Result, error) {
	if err := requireActor(actorID); err != nil {
		return s.record(op, Result{}, err)
	}
	if targetID == "" {
		return s.record(op, Result{}, invalid("target user is required"))
	}
	if targetID == actorID {
		return s.record(op, Result{}, invalid("users cannot follow themselves"))
	}

	change := repositories.ArrayRemove
	if follow {
		change = repositories.ArrayUnion
	}
	err := s.store.Commit(ctx, []repositories.Write{
		repositories.Update(repositories.UserPath(actorID), map[string]interface{}{
			"following": change(targetID),
			"updatedAt": repositories.ServerTimestamp,
		}),
		repositories.Update(repositories.UserPath(targetID), map[string]interface{}{
			"followers": change(actorID),
			"updatedAt": repositories.ServerTimestamp,
		}),
	})
	if errors.Is(err, repositories.ErrNotFound) {
		err = fmt.Errorf("%w: user %s", apperror.ErrNotFound, s.missingUser(ctx, actorID, targetID))
	}
	if err != nil {
		return s.record(op, Result{}, err)
	}

	res := applied(op)
	if follow {
		out := s.fanout.NotifyFollowed(ctx, actorID, targetID)
		res.Notified = out.Written > 0
	}
	s.logger.Info("follow graph updated", slog.String("op", op), slog.String("actor_id", actorID), slog.String("target_id", targetID))
	return s.record(op, res, nil)
}

// missingUser names whichever of the two profiles does not exist, falling
// back to both when the lookup cannot tell.
func (s *InteractionService) missingUser(ctx context.Context, actorID, targetID string) string {
	var missing []string
	for _, uid := range []string{actorID, targetID} {
		var u models.User
		if err := s.store.Get(ctx, repositories.UserPath(uid), &u); errors.Is(err, repositories.ErrNotFound) {
			missing = append(missing, uid)
		}
	}
	if len(missing) == 0 {
		missing = []string{actorID, targetID}
	}
	return strings.Join(missing, ", ")
}

// Like adds actor to the post's likedBy set and the post to actor's stats,
// then notifies the author unless actor is the author.
func (s *InteractionService) Like(ctx context.Context, actorID, postID string) (Result, error) {
	return s.manageEngagement(ctx, "like", actorID, postID, "likedBy", "likes", true)
}

// Unlike reverts Like. The earlier notification stays.
func (s *InteractionService) Unlike(ctx context.Context, actorID, postID string) (Result, error) {
	return s.manageEngagement(ctx, "unlike", actorID, postID, "likedBy", "likes", false)
}

// Reshare adds actor to the post's resharedBy set and the post to actor's
// stats. The mutation itself never notifies.
func (s *InteractionService) Reshare(ctx context.Context, actorID, postID string) (Result, error) {
	return s.manageEngagement(ctx, "reshare", actorID, postID, "resharedBy", "reshares", true)
}

func (s *InteractionService) Unreshare(ctx context.Context, actorID, postID string) (Result, error) {
	return s.manageEngagement(ctx, "unreshare", actorID, postID, "resharedBy", "reshares", false)
}

func (s *InteractionService) manageEngagement(ctx context.Context, op, actorID, postID, postField, statsField string, add bool) (Result, error) {
	if err := requireActor(actorID); err != nil {
		return s.record(op, Result{}, err)
	}
	if postID == "" {
		return s.record(op, Result{}, invalid("post id is required"))
	}

	post, err := s.posts.GetPost(ctx, models.NamespaceCurrent, postID)
	if errors.Is(err, repositories.ErrNotFound) {
		return s.skipMissing(op, actorID, postID)
	}
	if err != nil {
		return s.record(op, Result{}, err)
	}

	change := repositories.ArrayRemove
	if add {
		change = repositories.ArrayUnion
	}
	err = s.store.Commit(ctx, []repositories.Write{
		repositories.Update(s.posts.Path(models.NamespaceCurrent, postID), map[string]interface{}{
			postField: change(actorID),
		}),
		repositories.Merge(repositories.StatsPath(actorID), map[string]interface{}{
			statsField:  change(postID),
			"updatedAt": repositories.ServerTimestamp,
		}),
	})
	if errors.Is(err, repositories.ErrNotFound) {
		// Deleted between the existence check and the commit.
		return s.skipMissing(op, actorID, postID)
	}
	if err != nil {
		return s.record(op, Result{}, err)
	}

	res := applied(op)
	res.PostID = postID
	if op == "like" && post.CreatedBy != actorID {
		out := s.fanout.NotifyLiked(ctx, actorID, post)
		res.Notified = out.Written > 0
	}
	return s.record(op, res, nil)
}

func (s *InteractionService) skipMissing(op, actorID, postID string) (Result, error) {
	s.logger.Warn("post not found, skipping", slog.String("op", op), slog.String("actor_id", actorID), slog.String("post_id", postID))
	res := skipped(op, "post not found")
	res.PostID = postID
	return s.record(op, res, nil)
}

// Bookmark saves postID in the actor's private bookmark namespace.
func (s *InteractionService) Bookmark(ctx context.Context, actorID, postID string) (Result, error) {
	const op = "bookmark"
	if err := requireActor(actorID); err != nil {
		return s.record(op, Result{}, err)
	}
	if postID == "" {
		return s.record(op, Result{}, invalid("post id is required"))
	}
	err := s.store.Commit(ctx, []repositories.Write{
		repositories.Set(repositories.BookmarkPath(actorID, postID), map[string]interface{}{
			"id":        postID,
			"createdAt": repositories.ServerTimestamp,
		}),
	})
	res := applied(op)
	res.PostID = postID
	return s.record(op, res, err)
}

func (s *InteractionService) Unbookmark(ctx context.Context, actorID, postID string) (Result, error) {
	const op = "unbookmark"
	if err := requireActor(actorID); err != nil {
		return s.record(op, Result{}, err)
	}
	if postID == "" {
		return s.record(op, Result{}, invalid("post id is required"))
	}
	err := s.store.Commit(ctx, []repositories.Write{repositories.Delete(repositories.BookmarkPath(actorID, postID))})
	res := applied(op)
	res.PostID = postID
	return s.record(op, res, err)
}

// ClearBookmarks deletes every bookmark of actor through the batched writer.
// A failure part way leaves the earlier groups deleted.
func (s *InteractionService) ClearBookmarks(ctx context.Context, actorID string) (int, error) {
	const op = "clear_bookmarks"
	if err := requireActor(actorID); err != nil {
		_, err = s.record(op, Result{}, err)
		return 0, err
	}
	bookmarks, err := s.bookmarks.ListBookmarks(ctx, actorID)
	if err != nil {
		_, err = s.record(op, Result{}, err)
		return 0, err
	}
	writes := make([]repositories.Write, 0, len(bookmarks))
	for _, b := range bookmarks {
		writes = append(writes, repositories.Delete(repositories.BookmarkPath(actorID, b.ID)))
	}
	err = s.writer.Commit(ctx, writes)
	_, err = s.record(op, Result{}, err)
	return writtenBy(err, len(writes)), err
}

// Pin sets the actor's pinned post.
func (s *InteractionService) Pin(ctx context.Context, actorID, postID string) (Result, error) {
	return s.managePin(ctx, "pin", actorID, postID)
}

// Unpin clears the actor's pinned post.
func (s *InteractionService) Unpin(ctx context.Context, actorID string) (Result, error) {
	return s.managePin(ctx, "unpin", actorID, "")
}

func (s *InteractionService) managePin(ctx context.Context, op, actorID, postID string) (Result, error) {
	if err := requireActor(actorID); err != nil {
		return s.record(op, Result{}, err)
	}
	if op == "pin" && postID == "" {
		return s.record(op, Result{}, invalid("post id is required"))
	}
	var pinned interface{}
	if postID != "" {
		pinned = postID
	}
	err := s.store.Commit(ctx, []repositories.Write{
		repositories.Update(repositories.UserPath(actorID), map[string]interface{}{
			"pinnedPost": pinned,
			"updatedAt":  repositories.ServerTimestamp,
		}),
	})
	if errors.Is(err, repositories.ErrNotFound) {
		err = fmt.Errorf("%w: user %s", apperror.ErrNotFound, actorID)
	}
	res := applied(op)
	res.PostID = postID
	return s.record(op, res, err)
}

// AdjustReplyCount moves the reply counter of a current-namespace post by
// delta. A missing post is skipped.
func (s *InteractionService) AdjustReplyCount(ctx context.Context, postID string, delta int64) (Result, error) {
	const op = "reply_count"
	if postID == "" {
		return s.record(op, Result{}, invalid("post id is required"))
	}
	err := s.store.Commit(ctx, []repositories.Write{
		repositories.Update(s.posts.Path(models.NamespaceCurrent, postID), map[string]interface{}{
			"replyCount": repositories.Increment(delta),
		}),
	})
	if errors.Is(err, repositories.ErrNotFound) {
		return s.skipMissing(op, "", postID)
	}
	res := applied(op)
	res.PostID = postID
	return s.record(op, res, err)
}

// AdjustTotalPosts moves the actor's post counter by delta.
func (s *InteractionService) AdjustTotalPosts(ctx context.Context, actorID string, delta int64) (Result, error) {
	return s.adjustUserCounter(ctx, "total_posts", "totalPosts", actorID, delta)
}

// AdjustTotalMedia moves the actor's media counter by delta.
func (s *InteractionService) AdjustTotalMedia(ctx context.Context, actorID string, delta int64) (Result, error) {
	return s.adjustUserCounter(ctx, "total_media", "totalMedia", actorID, delta)
}

func (s *InteractionService) adjustUserCounter(ctx context.Context, op, field, actorID string, delta int64) (Result, error) {
	if err := requireActor(actorID); err != nil {
		return s.record(op, Result{}, err)
	}
	err := s.store.Commit(ctx, []repositories.Write{counterWrite(actorID, field, delta)})
	if errors.Is(err, repositories.ErrNotFound) {
		err = fmt.Errorf("%w: user %s", apperror.ErrNotFound, actorID)
	}
	return s.record(op, applied(op), err)
}

func counterWrite(uid, field string, delta int64) repositories.Write {
	return repositories.Update(repositories.UserPath(uid), map[string]interface{}{
		field:       repositories.Increment(delta),
		"updatedAt": repositories.ServerTimestamp,
	})
}
