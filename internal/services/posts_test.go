package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
	"github.com/anonto42/nano-midea/engine/pkg/apperror"
)

func TestCreatePostUpdatesCounters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u")

	post, err := env.postSvc.Create(ctx, "u", models.CreatePostRequest{Text: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, post.ID)

	stored := env.getPost(t, post.ID)
	assert.Equal(t, "hello", stored.Text)
	assert.Equal(t, "u", stored.CreatedBy)
	assert.Nil(t, stored.UpdatedAt)
	assert.EqualValues(t, 1, env.getUser(t, "u").TotalPosts)
	assert.EqualValues(t, 0, env.getUser(t, "u").TotalMedia)

	_, err = env.postSvc.Create(ctx, "u", models.CreatePostRequest{Images: []models.Media{{ID: "m1", Src: "https://cdn/x.png"}}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, env.getUser(t, "u").TotalPosts)
	assert.EqualValues(t, 1, env.getUser(t, "u").TotalMedia)
	assert.Equal(t, 2, env.store.Commits())
}

func TestCreateReplyBumpsParent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u")
	env.seedUser(t, "parent-author")
	env.seedPost(t, "posts", "p1", "parent-author", "")

	reply, err := env.postSvc.Create(ctx, "u", models.CreatePostRequest{Text: "re", ParentID: "p1"})
	require.NoError(t, err)

	require.NotNil(t, reply.Parent)
	assert.Equal(t, "parent-author", reply.Parent.Username)
	assert.Equal(t, "p1", env.getPost(t, reply.ID).ParentID())
	assert.EqualValues(t, 1, env.getPost(t, "p1").ReplyCount)
}

func TestCreateReplyToMissingParentIsAccepted(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u")

	reply, err := env.postSvc.Create(context.Background(), "u", models.CreatePostRequest{Text: "re", ParentID: "gone"})

	require.NoError(t, err)
	assert.Equal(t, "gone", reply.ParentID())
	assert.Empty(t, reply.Parent.Username)
}

func TestCreatePostValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u")

	_, err := env.postSvc.Create(ctx, "", models.CreatePostRequest{Text: "x"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = env.postSvc.Create(ctx, "u", models.CreatePostRequest{})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = env.postSvc.Create(ctx, "u", models.CreatePostRequest{Text: strings.Repeat("é", MaxPostLength+1)})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = env.postSvc.Create(ctx, "no-profile", models.CreatePostRequest{Text: "x"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, 0, env.store.Commits())
}

func TestDeletePost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u")
	env.seedPost(t, "posts", "p1", "other", "")

	post, err := env.postSvc.Create(ctx, "u", models.CreatePostRequest{Text: "re", ParentID: "p1",
		Images: []models.Media{{ID: "m1", Src: "https://cdn/x.png"}}})
	require.NoError(t, err)

	_, err = env.postSvc.Delete(ctx, "other", post.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	res, err := env.postSvc.Delete(ctx, "u", post.ID)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	_, err = env.posts.GetPost(ctx, models.NamespaceCurrent, post.ID)
	assert.True(t, errors.Is(err, repositories.ErrNotFound))
	u := env.getUser(t, "u")
	assert.EqualValues(t, 0, u.TotalPosts)
	assert.EqualValues(t, 0, u.TotalMedia)
	assert.EqualValues(t, 0, env.getPost(t, "p1").ReplyCount)

	res, err = env.postSvc.Delete(ctx, "u", post.ID)
	require.NoError(t, err)
	assert.False(t, res.Applied)
}
