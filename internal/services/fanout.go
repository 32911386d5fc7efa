package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anonto42/nano-midea/engine/internal/metrics"
	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
)

// Fan-out failure stages, used as metric labels and journal entries.
const (
	StageFollowers = "followers"
	StageParent    = "parent"
	StageCommit    = "commit"
	StagePublish   = "publish"
)

// NotificationPublisher pushes committed notifications to live listeners.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n models.Notification) error
}

// FanoutService is the only producer of notification records. Every entry
// point is best-effort: failures are logged, counted and journaled, and the
// returned Outcome never has to be checked.
type FanoutService struct {
	users         repositories.UserRepository
	posts         repositories.PostRepository
	notifications repositories.NotificationRepository
	writer        *BatchWriter
	journal       repositories.FailureJournal
	publisher     NotificationPublisher
	logger        *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

// FanoutOption configures optional collaborators of a FanoutService.
type FanoutOption func(*FanoutService)

// WithJournal records swallowed failures.
func WithJournal(j repositories.FailureJournal) FanoutOption {
	return func(s *FanoutService) { s.journal = j }
}

// WithPublisher pushes every committed notification.
func WithPublisher(p NotificationPublisher) FanoutOption {
	return func(s *FanoutService) { s.publisher = p }
}

// NewFanoutService creates a new FanoutService
func NewFanoutService(
	users repositories.UserRepository,
	posts repositories.PostRepository,
	notifications repositories.NotificationRepository,
	writer *BatchWriter,
	logger *slog.Logger,
	m *metrics.Metrics,
	opts ...FanoutOption,
) *FanoutService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FanoutService{
		users:         users,
		posts:         posts,
		notifications: notifications,
		writer:        writer,
		logger:        logger.With(slog.String("component", "fanout")),
		metrics:       m,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type draft struct {
	kind   models.NotificationType
	actor  string
	target string
	meta   models.NotificationMeta
}

// OnPostCreated notifies the author's followers and, for a reply, the parent's
// author. Follower and parent lookups run concurrently; a miss on either
// reduces the fan-out without failing it.
func (s *FanoutService) OnPostCreated(ctx context.Context, post *models.Post) Outcome {
	out := Outcome{Operation: "post_created"}
	plan, ok := PlanPostCreation(post)
	if !ok {
		if post != nil {
			out.PostID = post.ID
		}
		out.Skipped = append(out.Skipped, "no author")
		return out
	}
	out.PostID = plan.PostID
	log := s.logger.With(slog.String("post_id", plan.PostID), slog.String("actor_id", plan.AuthorID))

	var followers []string
	var parentAuthor string
	var followersErr, parentErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		followers, followersErr = s.users.GetFollowers(gctx, plan.AuthorID)
		return nil
	})
	if plan.IsReply() {
		g.Go(func() error {
			parent, ns, err := repositories.PostResolver(s.posts, plan.ParentID,
				models.NamespaceCurrent, models.NamespaceLegacy).Resolve(gctx)
			if err != nil {
				parentErr = err
				return nil
			}
			if ns == string(models.NamespaceLegacy) {
				log.Debug("parent resolved from legacy namespace", slog.String("parent_id", plan.ParentID))
			}
			parentAuthor = parent.CreatedBy
			return nil
		})
	}
	_ = g.Wait()

	var drafts []draft
	switch {
	case followersErr == nil:
		for _, f := range followers {
			drafts = append(drafts, draft{kind: models.NotificationPosted, actor: plan.AuthorID, target: f,
				meta: models.NotificationMeta{PostID: plan.PostID}})
		}
	case errors.Is(followersErr, repositories.ErrNotFound):
		log.Warn("author not found, skipping follower notifications")
		out.Skipped = append(out.Skipped, "author")
	default:
		s.fail(ctx, &out, StageFollowers, plan.AuthorID, followersErr, 0, 0)
	}

	if plan.IsReply() {
		switch {
		case parentErr == nil:
			if plan.ShouldNotifyParent(parentAuthor) {
				drafts = append(drafts, draft{kind: models.NotificationReplied, actor: plan.AuthorID, target: parentAuthor,
					meta: models.NotificationMeta{PostID: plan.PostID, ParentID: plan.ParentID}})
			}
		case errors.Is(parentErr, repositories.ErrNotFound):
			log.Warn("parent post not found, skipping reply notification", slog.String("parent_id", plan.ParentID))
			out.Skipped = append(out.Skipped, "parent")
		default:
			s.fail(ctx, &out, StageParent, plan.AuthorID, parentErr, 0, 0)
		}
	}

	s.deliver(ctx, &out, plan.AuthorID, drafts)
	return out
}

// OnPostUpdated notifies the post's author of new likers and new resharers.
func (s *FanoutService) OnPostUpdated(ctx context.Context, before, after *models.Post) Outcome {
	out := Outcome{Operation: "post_updated"}
	if after == nil {
		return out
	}
	out.PostID = after.ID
	delta := DetectPostUpdate(before, after)
	if delta.AuthorID == "" || delta.Empty() {
		return out
	}

	drafts := make([]draft, 0, len(delta.AddedLikers)+len(delta.AddedResharers))
	for _, id := range delta.AddedLikers {
		drafts = append(drafts, draft{kind: models.NotificationLiked, actor: id, target: delta.AuthorID,
			meta: models.NotificationMeta{PostID: delta.PostID}})
	}
	for _, id := range delta.AddedResharers {
		drafts = append(drafts, draft{kind: models.NotificationReshared, actor: id, target: delta.AuthorID,
			meta: models.NotificationMeta{PostID: delta.PostID}})
	}
	s.deliver(ctx, &out, delta.AuthorID, drafts)
	return out
}

// NotifyFollowed tells target that actor started following them.
func (s *FanoutService) NotifyFollowed(ctx context.Context, actorID, targetID string) Outcome {
	out := Outcome{Operation: "followed"}
	s.deliver(ctx, &out, actorID, []draft{{kind: models.NotificationFollowed, actor: actorID, target: targetID}})
	return out
}

// NotifyLiked tells the author of post that actor liked it.
func (s *FanoutService) NotifyLiked(ctx context.Context, actorID string, post *models.Post) Outcome {
	out := Outcome{Operation: "liked", PostID: post.ID}
	s.deliver(ctx, &out, actorID, []draft{{kind: models.NotificationLiked, actor: actorID, target: post.CreatedBy,
		meta: models.NotificationMeta{PostID: post.ID}}})
	return out
}

// deliver writes drafts through the batched writer and publishes each
// committed group. Self-targeted and targetless drafts are dropped here so no
// caller can produce them.
func (s *FanoutService) deliver(ctx context.Context, out *Outcome, actorID string, drafts []draft) {
	writes := make([]repositories.Write, 0, len(drafts))
	byPath := make(map[string]models.Notification, len(drafts))
	seen := make(map[draft]struct{}, len(drafts))
	for _, d := range drafts {
		if d.target == "" || d.actor == d.target {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		path := s.notifications.NewPath()
		writes = append(writes, repositories.Set(path, notificationFields(d)))
		_, id, _ := repositories.SplitPath(path)
		byPath[path] = models.Notification{
			ID:           id,
			Type:         d.kind,
			UserID:       d.actor,
			TargetUserID: d.target,
			CreatedAt:    s.now(),
			Meta:         d.meta,
		}
	}
	out.Planned += len(writes)
	if len(writes) == 0 {
		return
	}

	err := s.writer.CommitEach(ctx, writes, func(group []repositories.Write) {
		counts := make(map[models.NotificationType]int)
		for _, w := range group {
			n := byPath[w.Path]
			counts[n.Type]++
			s.publish(ctx, n)
		}
		for t, c := range counts {
			s.metrics.NotificationsWritten(string(t), c)
		}
	})
	written := writtenBy(err, len(writes))
	out.Written += written
	if err != nil {
		var pw *PartialWriteError
		committed, total := 0, len(Chunk(writes, s.writer.ChunkSize()))
		if errors.As(err, &pw) {
			committed, total = pw.Committed, pw.Total
		}
		s.fail(ctx, out, StageCommit, actorID, err, committed, total)
		return
	}
	s.logger.Info("notifications written", slog.Any("outcome", *out))
}

func (s *FanoutService) publish(ctx context.Context, n models.Notification) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishNotification(ctx, n); err != nil {
		s.metrics.FanoutFailure(StagePublish)
		s.logger.Warn("failed to publish notification",
			slog.String("target_id", n.TargetUserID),
			slog.String("type", string(n.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// fail records a swallowed failure. The journal write uses a fresh context so
// a cancelled trigger still leaves a trace.
func (s *FanoutService) fail(ctx context.Context, out *Outcome, stage, actorID string, err error, committed, total int) {
	if out.Err == nil {
		out.Err = err
	} else {
		out.Err = errors.Join(out.Err, err)
	}
	s.metrics.FanoutFailure(stage)
	s.logger.Error("notification fan-out failed",
		slog.String("operation", out.Operation),
		slog.String("stage", stage),
		slog.String("post_id", out.PostID),
		slog.String("actor_id", actorID),
		slog.Int("committed_groups", committed),
		slog.Int("total_groups", total),
		slog.String("error", err.Error()),
	)
	if s.journal == nil {
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if jerr := s.journal.Record(jctx, &models.FanoutFailure{
		Operation:       out.Operation,
		Stage:           stage,
		PostID:          out.PostID,
		ActorID:         actorID,
		CommittedGroups: committed,
		TotalGroups:     total,
		Error:           err.Error(),
		CreatedAt:       s.now(),
	}); jerr != nil {
		s.logger.Warn("failed to journal fan-out failure", slog.String("error", jerr.Error()))
	}
}

func notificationFields(d draft) map[string]interface{} {
	return map[string]interface{}{
		"type":         string(d.kind),
		"userId":       d.actor,
		"targetUserId": d.target,
		"createdAt":    repositories.ServerTimestamp,
		"updatedAt":    nil,
		"isChecked":    false,
		"meta":         d.meta.Map(),
	}
}
