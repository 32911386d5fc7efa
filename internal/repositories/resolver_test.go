package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func found(v string) Strategy[string] {
	return Strategy[string]{Name: v, Find: func(context.Context) (string, error) { return v, nil }}
}

func missing(name string) Strategy[string] {
	return Strategy[string]{Name: name, Find: func(context.Context) (string, error) {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}}
}

func failing(name string, err error) Strategy[string] {
	return Strategy[string]{Name: name, Find: func(context.Context) (string, error) { return "", err }}
}

func TestResolver(t *testing.T) {
	boom := errors.New("deadline exceeded")

	tests := []struct {
		name       string
		strategies []Strategy[string]
		want       string
		wantErr    error
	}{
		{"first hit wins", []Strategy[string]{found("current"), found("legacy")}, "current", nil},
		{"falls through not found", []Strategy[string]{missing("current"), found("legacy")}, "legacy", nil},
		{"failure does not stop the walk", []Strategy[string]{failing("current", boom), found("legacy")}, "legacy", nil},
		{"nothing found", []Strategy[string]{missing("current"), missing("legacy")}, "", ErrNotFound},
		{"failure reported when nothing found", []Strategy[string]{missing("current"), failing("legacy", boom)}, "", boom},
		{"no strategies", nil, "", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, name, err := NewResolver(tt.strategies...).Resolve(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, name)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, name)
		})
	}
}

func TestResolverStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	r := NewResolver(Strategy[string]{Name: "current", Find: func(context.Context) (string, error) {
		called = true
		return "x", nil
	}})

	_, _, err := r.Resolve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRepositoriesOnMemoryStore(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(UserPath("u1"), map[string]interface{}{"username": "ada", "followers": []string{"f1", "f2"}}))
	require.NoError(t, s.Seed(BookmarkPath("u1", "p1"), map[string]interface{}{"id": "p1", "createdAt": fixedNow}))
	require.NoError(t, s.Seed(DocPath(NotificationsCollection, "n1"), map[string]interface{}{
		"type": "liked", "userId": "f1", "targetUserId": "u1", "createdAt": fixedNow, "isChecked": false,
	}))

	users := NewStoreUserRepository(s)
	followers, err := users.GetFollowers(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, followers)
	_, err = users.GetUser(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
	stats, err := users.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, stats.Likes)
	free, err := users.IsUsernameAvailable(ctx, "ada")
	require.NoError(t, err)
	assert.False(t, free)

	bookmarks := NewStoreBookmarkRepository(s)
	ok, err := bookmarks.IsBookmarked(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = bookmarks.IsBookmarked(ctx, "u1", "p2")
	require.NoError(t, err)
	assert.False(t, ok)

	notifications := NewStoreNotificationRepository(s)
	assert.ErrorIs(t, notifications.MarkChecked(ctx, "f1", "n1"), ErrNotFound)
	require.NoError(t, notifications.MarkChecked(ctx, "u1", "n1"))
	list, err := notifications.ListForUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "n1", list[0].ID)
	assert.True(t, list[0].IsChecked)
}
