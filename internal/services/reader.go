package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
	"github.com/anonto42/nano-midea/engine/pkg/apperror"
)

// EnrichedPost is a post joined with its author's profile. User is nil when
// the author could not be loaded.
type EnrichedPost struct {
	models.Post
	Namespace models.Namespace    `json:"namespace"`
	User      *models.UserCompact `json:"user"`
}

// EnrichedNotification is a notification joined with the acting user's profile.
type EnrichedNotification struct {
	models.Notification
	User *models.UserCompact `json:"user"`
}

// Snapshot is one state of a live subscription.
type Snapshot[T any] struct {
	Data    T      `json:"data"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// SubscribeOptions tune a live subscription.
type SubscribeOptions struct {
	// AllowNull yields a nil Data for empty results and after an error,
	// instead of an empty value or the last good data.
	AllowNull bool
}

// ReaderService serves reads and live subscriptions with author enrichment
// and legacy-namespace fallback.
type ReaderService struct {
	store         repositories.DocumentStore
	posts         repositories.PostRepository
	users         repositories.UserRepository
	notifications repositories.NotificationRepository
	logger        *slog.Logger
}

// NewReaderService creates a new ReaderService
func NewReaderService(
	store repositories.DocumentStore,
	posts repositories.PostRepository,
	users repositories.UserRepository,
	notifications repositories.NotificationRepository,
	logger *slog.Logger,
) *ReaderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReaderService{
		store:         store,
		posts:         posts,
		users:         users,
		notifications: notifications,
		logger:        logger.With(slog.String("component", "reader")),
	}
}

// lookupOrder puts the requested namespace first and the other one second.
func lookupOrder(ns models.Namespace) []models.Namespace {
	if ns == models.NamespaceLegacy {
		return []models.Namespace{models.NamespaceLegacy, models.NamespaceCurrent}
	}
	return []models.Namespace{models.NamespaceCurrent, models.NamespaceLegacy}
}

func (s *ReaderService) resolvePost(ctx context.Context, ns models.Namespace, id string) (*models.Post, models.Namespace, error) {
	post, found, err := repositories.PostResolver(s.posts, id, lookupOrder(ns)...).Resolve(ctx)
	if err != nil {
		return nil, "", err
	}
	if found != string(ns) {
		s.logger.Warn("post served from fallback namespace", slog.String("post_id", id), slog.String("namespace", found))
	}
	return post, models.Namespace(found), nil
}

// GetPost reads one post, falling back to the other namespace once.
func (s *ReaderService) GetPost(ctx context.Context, ns models.Namespace, id string) (*EnrichedPost, error) {
	post, found, err := s.resolvePost(ctx, ns, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &EnrichedPost{Post: *post, Namespace: found, User: s.author(ctx, post.CreatedBy)}, nil
}

// GetPosts reads several posts concurrently. Missing ids are dropped and the
// result keeps the order of ids.
func (s *ReaderService) GetPosts(ctx context.Context, ns models.Namespace, ids []string) ([]EnrichedPost, error) {
	results := make([]*EnrichedPost, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for i, id := range ids {
		g.Go(func() error {
			p, err := s.GetPost(gctx, ns, id)
			if errors.Is(err, apperror.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]EnrichedPost, 0, len(ids))
	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

// ListNotifications returns the newest notifications of uid with actor profiles.
func (s *ReaderService) ListNotifications(ctx context.Context, uid string, limit int) ([]EnrichedNotification, error) {
	if err := requireActor(uid); err != nil {
		return nil, err
	}
	list, err := s.notifications.ListForUser(ctx, uid, limit)
	if err != nil {
		return nil, err
	}
	return s.enrichNotifications(ctx, list), nil
}

// MarkChecked acknowledges one notification of uid.
func (s *ReaderService) MarkChecked(ctx context.Context, uid, id string) error {
	if err := requireActor(uid); err != nil {
		return err
	}
	err := s.notifications.MarkChecked(ctx, uid, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return apperror.ErrNotFound
	}
	return err
}

// Profile is a user document joined with its engagement stats.
type Profile struct {
	models.User
	Stats models.UserStats `json:"stats"`
}

// GetProfile loads a user and their stats concurrently.
func (s *ReaderService) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	var (
		user  *models.User
		stats *models.UserStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.users.GetUser(gctx, uid)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.users.GetStats(gctx, uid)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return &Profile{User: *user, Stats: *stats}, nil
}

// UsernameAvailable reports whether no profile has claimed username.
func (s *ReaderService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, apperror.ErrInvalidInput
	}
	return s.users.IsUsernameAvailable(ctx, username)
}

// author loads a compact profile; a failed lookup degrades to nil.
func (s *ReaderService) author(ctx context.Context, uid string) *models.UserCompact {
	if uid == "" {
		return nil
	}
	u, err := s.users.GetUser(ctx, uid)
	if err != nil {
		s.logger.Warn("failed to load author", slog.String("actor_id", uid), slog.String("error", err.Error()))
		return nil
	}
	c := u.ToCompact()
	return &c
}

func (s *ReaderService) enrichPosts(ctx context.Context, posts []models.Post, ns models.Namespace) []EnrichedPost {
	out := make([]EnrichedPost, len(posts))
	var wg sync.WaitGroup
	for i := range posts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i] = EnrichedPost{Post: posts[i], Namespace: ns, User: s.author(ctx, posts[i].CreatedBy)}
		}(i)
	}
	wg.Wait()
	return out
}

func (s *ReaderService) enrichNotifications(ctx context.Context, list []models.Notification) []EnrichedNotification {
	out := make([]EnrichedNotification, len(list))
	var wg sync.WaitGroup
	for i := range list {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i] = EnrichedNotification{Notification: list[i], User: s.author(ctx, list[i].UserID)}
		}(i)
	}
	wg.Wait()
	return out
}

// ListAuthorPosts returns the newest posts of an author in one namespace.
func (s *ReaderService) ListAuthorPosts(ctx context.Context, ns models.Namespace, authorID string, limit int) ([]EnrichedPost, error) {
	posts, err := s.posts.GetPostsByAuthor(ctx, ns, authorID, limit)
	if err != nil {
		return nil, err
	}
	return s.enrichPosts(ctx, posts, ns), nil
}

// ListReplies returns the direct replies to a post, oldest first.
func (s *ReaderService) ListReplies(ctx context.Context, ns models.Namespace, parentID string) ([]EnrichedPost, error) {
	replies, err := s.posts.GetReplies(ctx, ns, parentID)
	if err != nil {
		return nil, err
	}
	return s.enrichPosts(ctx, replies, ns), nil
}

// SubscribePost streams one post. fn first receives a loading snapshot, then
// every change. A post missing from the legacy namespace is looked up once
// in the current namespace.
func (s *ReaderService) SubscribePost(ctx context.Context, ns models.Namespace, id string, opts SubscribeOptions, fn func(Snapshot[*EnrichedPost])) (stop func()) {
	var last *EnrichedPost
	fn(Snapshot[*EnrichedPost]{Loading: true})
	return s.store.WatchDocument(ctx, s.posts.Path(ns, id), func(doc *repositories.Document, err error) {
		if err != nil {
			s.logger.Error("post subscription failed", slog.String("post_id", id), slog.String("error", err.Error()))
			if opts.AllowNull {
				last = nil
			}
			fn(Snapshot[*EnrichedPost]{Data: last, Error: err.Error()})
			return
		}

		var post *models.Post
		found := ns
		if doc != nil {
			var p models.Post
			if derr := doc.DataTo(&p); derr != nil {
				fn(Snapshot[*EnrichedPost]{Data: last, Error: derr.Error()})
				return
			}
			p.ID = doc.ID
			post = &p
		} else if ns == models.NamespaceLegacy {
			p, ferr := s.posts.GetPost(ctx, models.NamespaceCurrent, id)
			if ferr != nil && !errors.Is(ferr, repositories.ErrNotFound) {
				s.logger.Warn("fallback read from current namespace failed", slog.String("post_id", id), slog.String("error", ferr.Error()))
			}
			if ferr == nil {
				post, found = p, models.NamespaceCurrent
			}
		}

		if post == nil {
			last = nil
			fn(Snapshot[*EnrichedPost]{})
			return
		}
		last = &EnrichedPost{Post: *post, Namespace: found, User: s.author(ctx, post.CreatedBy)}
		fn(Snapshot[*EnrichedPost]{Data: last})
	})
}

// SubscribeNotifications streams the inbox of uid with actor profiles.
func (s *ReaderService) SubscribeNotifications(ctx context.Context, uid string, limit int, opts SubscribeOptions, fn func(Snapshot[[]EnrichedNotification])) (stop func(), err error) {
	if err := requireActor(uid); err != nil {
		return nil, err
	}
	var last []EnrichedNotification
	fn(Snapshot[[]EnrichedNotification]{Loading: true})
	return s.store.Watch(ctx, s.notifications.Query(uid, limit), func(docs []repositories.Document, err error) {
		if err != nil {
			s.logger.Error("notification subscription failed", slog.String("target_id", uid), slog.String("error", err.Error()))
			if opts.AllowNull {
				last = nil
			}
			fn(Snapshot[[]EnrichedNotification]{Data: last, Error: err.Error()})
			return
		}
		list, derr := repositories.DecodeNotifications(docs)
		if derr != nil {
			fn(Snapshot[[]EnrichedNotification]{Data: last, Error: derr.Error()})
			return
		}
		if len(list) == 0 && opts.AllowNull {
			last = nil
			fn(Snapshot[[]EnrichedNotification]{})
			return
		}
		last = s.enrichNotifications(ctx, list)
		fn(Snapshot[[]EnrichedNotification]{Data: last})
	}), nil
}
