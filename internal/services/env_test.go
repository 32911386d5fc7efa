package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
)

type testEnv struct {
	store         *repositories.MemoryStore
	posts         *repositories.StorePostRepository
	users         *repositories.StoreUserRepository
	notifications *repositories.StoreNotificationRepository
	bookmarks     *repositories.StoreBookmarkRepository
	writer        *BatchWriter
	fanout        *FanoutService
	interactions  *InteractionService
	postSvc       *PostService
	reader        *ReaderService
	journal       *fakeJournal
	publisher     *fakePublisher
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repositories.NewMemoryStore()
	store.SetClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) })
	logger := quietLogger()

	env := &testEnv{
		store:         store,
		posts:         repositories.NewStorePostRepository(store, repositories.DefaultNamespaces),
		users:         repositories.NewStoreUserRepository(store),
		notifications: repositories.NewStoreNotificationRepository(store),
		bookmarks:     repositories.NewStoreBookmarkRepository(store),
		journal:       &fakeJournal{},
		publisher:     &fakePublisher{},
	}
	env.writer = NewBatchWriter(store, DefaultChunkSize, logger, nil)
	env.fanout = NewFanoutService(env.users, env.posts, env.notifications, env.writer, logger, nil,
		WithJournal(env.journal), WithPublisher(env.publisher))
	env.interactions = NewInteractionService(store, env.posts, env.bookmarks, env.fanout, env.writer, logger, nil)
	env.postSvc = NewPostService(store, env.posts, env.users, env.interactions, logger, nil)
	env.reader = NewReaderService(store, env.posts, env.users, env.notifications, logger)
	return env
}

func (e *testEnv) seedUser(t *testing.T, uid string, followers ...string) {
	t.Helper()
	require.NoError(t, e.store.Seed(repositories.UserPath(uid), map[string]interface{}{
		"name":       "User " + uid,
		"username":   uid,
		"followers":  append([]string{}, followers...),
		"following":  []string{},
		"totalPosts": 0,
		"totalMedia": 0,
		"createdAt":  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
}

func (e *testEnv) seedPost(t *testing.T, collection, id, author, parentID string) {
	t.Helper()
	fields := map[string]interface{}{
		"text":       "post " + id,
		"createdBy":  author,
		"likedBy":    []string{},
		"resharedBy": []string{},
		"replyCount": 0,
		"createdAt":  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	if parentID != "" {
		fields["parent"] = map[string]interface{}{"id": parentID}
	}
	require.NoError(t, e.store.Seed(repositories.DocPath(collection, id), fields))
}

func (e *testEnv) allNotifications(t *testing.T) []models.Notification {
	t.Helper()
	docs, err := e.store.Find(context.Background(), repositories.Query{Collection: repositories.NotificationsCollection})
	require.NoError(t, err)
	list, err := repositories.DecodeNotifications(docs)
	require.NoError(t, err)
	return list
}

func (e *testEnv) getUser(t *testing.T, uid string) *models.User {
	t.Helper()
	u, err := e.users.GetUser(context.Background(), uid)
	require.NoError(t, err)
	return u
}

func (e *testEnv) getPost(t *testing.T, id string) *models.Post {
	t.Helper()
	p, err := e.posts.GetPost(context.Background(), models.NamespaceCurrent, id)
	require.NoError(t, err)
	return p
}

type fakeJournal struct {
	mu   sync.Mutex
	rows []models.FanoutFailure
}

func (j *fakeJournal) Record(_ context.Context, f *models.FanoutFailure) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rows = append(j.rows, *f)
	return nil
}

func (j *fakeJournal) Recent(_ context.Context, limit int) ([]models.FanoutFailure, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.FanoutFailure(nil), j.rows...), nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []models.Notification
}

func (p *fakePublisher) PublishNotification(_ context.Context, n models.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, n)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}
