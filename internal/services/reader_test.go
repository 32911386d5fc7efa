package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
	"github.com/anonto42/nano-midea/engine/pkg/apperror"
)

func TestGetPostFallsBackAcrossNamespaces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "author")
	env.seedPost(t, "posts", "migrated", "author", "")
	env.seedPost(t, "tweets", "old", "author", "")

	p, err := env.reader.GetPost(ctx, models.NamespaceLegacy, "migrated")
	require.NoError(t, err)
	assert.Equal(t, models.NamespaceCurrent, p.Namespace)
	require.NotNil(t, p.User)
	assert.Equal(t, "author", p.User.Username)

	p, err = env.reader.GetPost(ctx, models.NamespaceCurrent, "old")
	require.NoError(t, err)
	assert.Equal(t, models.NamespaceLegacy, p.Namespace)

	_, err = env.reader.GetPost(ctx, models.NamespaceLegacy, "nowhere")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetPostWithoutAuthorProfile(t *testing.T) {
	env := newTestEnv(t)
	env.seedPost(t, "posts", "p1", "ghost", "")

	p, err := env.reader.GetPost(context.Background(), models.NamespaceCurrent, "p1")

	require.NoError(t, err)
	assert.Nil(t, p.User)
}

func TestGetPostsKeepsOrderAndDropsMissing(t *testing.T) {
	env := newTestEnv(t)
	env.seedPost(t, "posts", "a", "u", "")
	env.seedPost(t, "tweets", "b", "u", "")
	env.seedPost(t, "posts", "c", "u", "")

	posts, err := env.reader.GetPosts(context.Background(), models.NamespaceLegacy, []string{"c", "missing", "b", "a"})

	require.NoError(t, err)
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestListRepliesEnrichesAuthors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "fan")
	env.seedPost(t, "posts", "root", "author", "")
	env.seedPost(t, "posts", "r1", "fan", "root")
	env.seedPost(t, "posts", "r2", "ghost", "root")
	env.seedPost(t, "posts", "other", "fan", "elsewhere")

	replies, err := env.reader.ListReplies(ctx, models.NamespaceCurrent, "root")
	require.NoError(t, err)
	require.Len(t, replies, 2)
	users := map[string]*models.UserCompact{}
	for _, r := range replies {
		users[r.ID] = r.User
		assert.Equal(t, models.NamespaceCurrent, r.Namespace)
	}
	require.Contains(t, users, "r1")
	require.NotNil(t, users["r1"])
	assert.Equal(t, "fan", users["r1"].ID)
	assert.Nil(t, users["r2"])

	replies, err = env.reader.ListReplies(ctx, models.NamespaceLegacy, "root")
	require.NoError(t, err)
	assert.Empty(t, replies)
}

func TestListNotificationsEnrichesActor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "fan")
	env.seedPost(t, "posts", "p1", "author", "")
	_, err := env.interactions.Like(ctx, "fan", "p1")
	require.NoError(t, err)
	_, err = env.interactions.Like(ctx, "ghost", "p1")
	require.NoError(t, err)

	list, err := env.reader.ListNotifications(ctx, "author", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	users := map[string]*models.UserCompact{}
	for _, n := range list {
		users[n.UserID] = n.User
	}
	require.NotNil(t, users["fan"])
	assert.Equal(t, "fan", users["fan"].Username)
	assert.Nil(t, users["ghost"])

	require.NoError(t, env.reader.MarkChecked(ctx, "author", list[0].ID))
	assert.ErrorIs(t, env.reader.MarkChecked(ctx, "fan", list[1].ID), apperror.ErrNotFound)
	list, err = env.reader.ListNotifications(ctx, "author", 10)
	require.NoError(t, err)
	checked := 0
	for _, n := range list {
		if n.IsChecked {
			checked++
			assert.NotNil(t, n.UpdatedAt)
		}
	}
	assert.Equal(t, 1, checked)
}

func next[T any](t *testing.T, ch <-chan Snapshot[T]) Snapshot[T] {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
	var zero Snapshot[T]
	return zero
}

// waitFor drains ch until a snapshot satisfies ok.
func waitFor[T any](t *testing.T, ch <-chan Snapshot[T], ok func(Snapshot[T]) bool) Snapshot[T] {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatal("expected snapshot never arrived")
			var zero Snapshot[T]
			return zero
		}
	}
}

func TestSubscribePost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "author")
	env.seedPost(t, "posts", "p1", "author", "")

	ch := make(chan Snapshot[*EnrichedPost], 64)
	stop := env.reader.SubscribePost(ctx, models.NamespaceCurrent, "p1", SubscribeOptions{}, func(s Snapshot[*EnrichedPost]) { ch <- s })
	defer stop()

	assert.True(t, next(t, ch).Loading)
	first := next(t, ch)
	require.NotNil(t, first.Data)
	assert.False(t, first.Loading)
	assert.Equal(t, "author", first.Data.User.Username)

	_, err := env.interactions.Like(ctx, "fan", "p1")
	require.NoError(t, err)
	waitFor(t, ch, func(s Snapshot[*EnrichedPost]) bool {
		return s.Data != nil && len(s.Data.LikedBy) == 1
	})

	env.store.BreakWatches(errors.New("listener lost"))
	failed := waitFor(t, ch, func(s Snapshot[*EnrichedPost]) bool { return s.Error != "" })
	assert.False(t, failed.Loading)
	assert.Equal(t, "listener lost", failed.Error)
	assert.NotNil(t, failed.Data, "without AllowNull the last data is kept")
}

func TestSubscribePostLegacyFallbackAndAllowNull(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPost(t, "posts", "p1", "author", "")

	ch := make(chan Snapshot[*EnrichedPost], 64)
	stop := env.reader.SubscribePost(ctx, models.NamespaceLegacy, "p1", SubscribeOptions{AllowNull: true}, func(s Snapshot[*EnrichedPost]) { ch <- s })
	defer stop()

	assert.True(t, next(t, ch).Loading)
	got := next(t, ch)
	require.NotNil(t, got.Data)
	assert.Equal(t, models.NamespaceCurrent, got.Data.Namespace)

	env.store.BreakWatches(errors.New("permission denied"))
	failed := waitFor(t, ch, func(s Snapshot[*EnrichedPost]) bool { return s.Error != "" })
	assert.Nil(t, failed.Data)
	assert.NotEmpty(t, failed.Error)
}

func TestSubscribeNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPost(t, "posts", "p1", "author", "")

	_, err := env.reader.SubscribeNotifications(ctx, "", 10, SubscribeOptions{}, func(Snapshot[[]EnrichedNotification]) {})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	ch := make(chan Snapshot[[]EnrichedNotification], 64)
	stop, err := env.reader.SubscribeNotifications(ctx, "author", 10, SubscribeOptions{AllowNull: true}, func(s Snapshot[[]EnrichedNotification]) { ch <- s })
	require.NoError(t, err)
	defer stop()

	assert.True(t, next(t, ch).Loading)
	empty := next(t, ch)
	assert.Nil(t, empty.Data)
	assert.False(t, empty.Loading)

	_, err = env.interactions.Like(ctx, "fan", "p1")
	require.NoError(t, err)
	got := waitFor(t, ch, func(s Snapshot[[]EnrichedNotification]) bool { return len(s.Data) == 1 })
	assert.Equal(t, models.NotificationLiked, got.Data[0].Type)
}

func TestPostResolverOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seedPost(t, "tweets", "p1", "legacy-author", "")
	env.seedPost(t, "posts", "p1", "current-author", "")

	p, ns, err := repositories.PostResolver(env.posts, "p1", models.NamespaceLegacy, models.NamespaceCurrent).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "legacy", ns)
	assert.Equal(t, "legacy-author", p.CreatedBy)
}
