package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
	"github.com/anonto42/nano-midea/engine/internal/services"
	"github.com/anonto42/nano-midea/engine/pkg/apperror"
	"github.com/anonto42/nano-midea/engine/validators"
)

type engine struct {
	store        *repositories.MemoryStore
	dispatcher   *Dispatcher
	posts        *services.PostService
	interactions *services.InteractionService
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	store := repositories.NewMemoryStore()
	store.SetClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) })
	logger := quietLogger()

	posts := repositories.NewStorePostRepository(store, repositories.DefaultNamespaces)
	users := repositories.NewStoreUserRepository(store)
	writer := services.NewBatchWriter(store, services.DefaultChunkSize, logger, nil)
	fanout := services.NewFanoutService(users, posts, repositories.NewStoreNotificationRepository(store), writer, logger, nil)
	interactions := services.NewInteractionService(store, posts, repositories.NewStoreBookmarkRepository(store), fanout, writer, logger, nil)

	return &engine{
		store:        store,
		dispatcher:   NewDispatcher(fanout, validators.NewValidator(), logger, nil),
		posts:        services.NewPostService(store, posts, users, interactions, logger, nil),
		interactions: interactions,
	}
}

func (e *engine) seedUser(t *testing.T, uid string, followers ...string) {
	t.Helper()
	require.NoError(t, e.store.Seed(repositories.UserPath(uid), map[string]interface{}{
		"username":  uid,
		"followers": append([]string{}, followers...),
		"following": []string{},
	}))
}

func (e *engine) notifications(t *testing.T, typ models.NotificationType) []models.Notification {
	t.Helper()
	docs, err := e.store.Find(context.Background(), repositories.Query{Collection: repositories.NotificationsCollection}.
		Where("type", repositories.OpEqual, string(typ)))
	require.NoError(t, err)
	list, err := repositories.DecodeNotifications(docs)
	require.NoError(t, err)
	return list
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.PostEvent
}

func (s *recordingSink) Dispatch(_ context.Context, _ string, ev models.PostEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func TestDispatcherRejectsMalformedEvents(t *testing.T) {
	e := newEngine(t)
	after := &models.Post{CreatedBy: "author"}

	tests := []struct {
		name string
		ev   models.PostEvent
	}{
		{"unknown version", models.PostEvent{Version: 2, Kind: models.EventCreated, Namespace: models.NamespaceCurrent, PostID: "p1", After: after}},
		{"unknown kind", models.PostEvent{Version: 1, Kind: "deleted", Namespace: models.NamespaceCurrent, PostID: "p1", After: after}},
		{"unknown namespace", models.PostEvent{Version: 1, Kind: models.EventCreated, Namespace: "archive", PostID: "p1", After: after}},
		{"missing post id", models.PostEvent{Version: 1, Kind: models.EventCreated, Namespace: models.NamespaceCurrent, After: after}},
		{"update without before", models.PostEvent{Version: 1, Kind: models.EventUpdated, Namespace: models.NamespaceLegacy, PostID: "p1", After: after}},
		{"missing after", models.PostEvent{Version: 1, Kind: models.EventCreated, Namespace: models.NamespaceCurrent, PostID: "p1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.dispatcher.Dispatch(context.Background(), "test", tt.ev)
			assert.ErrorIs(t, err, apperror.ErrInvalidInput)
		})
	}
	assert.Zero(t, e.store.Commits())
}

func TestDispatcherRunsFanoutForLegacyUpdates(t *testing.T) {
	e := newEngine(t)
	ev := models.PostEvent{
		Version:   models.PostEventVersion,
		Kind:      models.EventUpdated,
		Namespace: models.NamespaceLegacy,
		PostID:    "t1",
		Before:    &models.Post{CreatedBy: "author", LikedBy: []string{"a"}},
		After:     &models.Post{CreatedBy: "author", LikedBy: []string{"a", "b"}, ResharedBy: []string{"c"}},
	}

	require.NoError(t, e.dispatcher.Dispatch(context.Background(), "test", ev))

	liked := e.notifications(t, models.NotificationLiked)
	require.Len(t, liked, 1)
	assert.Equal(t, "b", liked[0].UserID)
	assert.Equal(t, "t1", liked[0].Meta.PostID)
	assert.Len(t, e.notifications(t, models.NotificationReshared), 1)
}

func TestMemoryBridgeDrivesFanout(t *testing.T) {
	e := newEngine(t)
	NewMemoryBridge(e.dispatcher, repositories.DefaultNamespaces, quietLogger()).Attach(e.store)
	ctx := context.Background()
	e.seedUser(t, "author", "x", "y")
	e.seedUser(t, "x")

	post, err := e.posts.Create(ctx, "author", models.CreatePostRequest{Text: "hello"})
	require.NoError(t, err)

	posted := e.notifications(t, models.NotificationPosted)
	require.Len(t, posted, 2)
	targets := []string{posted[0].TargetUserID, posted[1].TargetUserID}
	assert.ElementsMatch(t, []string{"x", "y"}, targets)

	_, err = e.interactions.Like(ctx, "x", post.ID)
	require.NoError(t, err)

	// The like mutation and the update trigger both notify the author.
	liked := e.notifications(t, models.NotificationLiked)
	require.Len(t, liked, 2)
	for _, n := range liked {
		assert.Equal(t, "author", n.TargetUserID)
		assert.Equal(t, "x", n.UserID)
	}

	_, err = e.interactions.Reshare(ctx, "author", post.ID)
	require.NoError(t, err)
	assert.Empty(t, e.notifications(t, models.NotificationReshared), "resharing your own post notifies nobody")
}

func TestMemoryBridgeIgnoresOtherCollectionsAndDeletes(t *testing.T) {
	sink := &recordingSink{}
	bridge := NewMemoryBridge(sink, repositories.DefaultNamespaces, quietLogger())

	bridge.HandleChange(repositories.Change{Collection: "users", ID: "u1", After: map[string]interface{}{"username": "u1"}})
	bridge.HandleChange(repositories.Change{Collection: "posts", ID: "p1", Before: map[string]interface{}{"createdBy": "a"}})
	assert.Empty(t, sink.events)

	bridge.HandleChange(repositories.Change{Collection: "tweets", ID: "t1", After: map[string]interface{}{"createdBy": "a"}})
	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, models.EventCreated, ev.Kind)
	assert.Equal(t, models.NamespaceLegacy, ev.Namespace)
	assert.Equal(t, "a", ev.After.CreatedBy)
	assert.Nil(t, ev.Before)
}

func TestTriggerConsumerFillsFromSubject(t *testing.T) {
	sink := &recordingSink{}
	c := NewTriggerConsumer(nil, sink, repositories.DefaultNamespaces, quietLogger())

	payload, err := json.Marshal(map[string]interface{}{
		"version": 1,
		"postId":  "t9",
		"after":   map[string]interface{}{"createdBy": "a"},
	})
	require.NoError(t, err)
	c.HandleMsg(&nats.Msg{Subject: "tweets.created", Data: payload})
	c.HandleMsg(&nats.Msg{Subject: "posts.updated", Data: []byte("{not json")})

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, models.NamespaceLegacy, ev.Namespace)
	assert.Equal(t, models.EventCreated, ev.Kind)
	assert.Equal(t, "t9", ev.PostID)
}

func TestTriggerConsumerSubjects(t *testing.T) {
	c := NewTriggerConsumer(nil, &recordingSink{}, repositories.DefaultNamespaces, nil)
	assert.Equal(t, []string{"posts.created", "posts.updated", "tweets.created", "tweets.updated"}, c.Subjects())
	assert.Equal(t, "posts.created", Subject("posts", models.EventCreated))
}

func TestNotificationChannel(t *testing.T) {
	assert.Equal(t, "user_notifications:u42", NotificationChannel("u42"))
}
