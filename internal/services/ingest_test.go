package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
	"github.com/anonto42/nano-midea/engine/pkg/apperror"
)

func TestNewsPostText(t *testing.T) {
	assert.Equal(t, "Title", NewsPostText(models.NewsArticle{Title: " Title "}))
	assert.Equal(t, "Title"+newsSeparator+"Body", NewsPostText(models.NewsArticle{Title: "Title", Description: "Body"}))

	long := NewsPostText(models.NewsArticle{Title: strings.Repeat("a", 200), Description: strings.Repeat("b", 200)})
	assert.Len(t, []rune(long), MaxPostLength)
	assert.True(t, strings.HasPrefix(long, strings.Repeat("a", 200)+newsSeparator))

	multibyte := NewsPostText(models.NewsArticle{Title: strings.Repeat("é", MaxPostLength+20)})
	assert.Equal(t, MaxPostLength, utf8.RuneCountInString(multibyte))
}

func TestIngestNews(t *testing.T) {
	env := newTestEnv(t)
	ingest := NewIngestService(env.posts, env.writer, "news-bot", quietLogger())
	ctx := context.Background()

	_, err := ingest.IngestNews(ctx, nil)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	created, err := ingest.IngestNews(ctx, []models.NewsArticle{
		{Title: "Markets rally", Description: "Stocks up", URL: "https://news.example/1"},
		{Title: "Only a title"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	posts, err := env.posts.GetPostsByAuthor(ctx, models.NamespaceCurrent, "news-bot", 10)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	texts := []string{posts[0].Text, posts[1].Text}
	assert.ElementsMatch(t, []string{"Markets rally" + newsSeparator + "Stocks up", "Only a title"}, texts)
	for _, p := range posts {
		assert.True(t, p.IsAutomated)
		require.NotNil(t, p.Source)
	}
}

func TestIngestNewsPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	writer := NewBatchWriter(env.store, 2, quietLogger(), nil)
	ingest := NewIngestService(env.posts, writer, "news-bot", quietLogger())
	env.store.FailCommits(func(attempt int, _ []repositories.Write) error {
		if attempt == 2 {
			return errors.New("quota exceeded")
		}
		return nil
	})

	articles := make([]models.NewsArticle, 5)
	for i := range articles {
		articles[i] = models.NewsArticle{Title: "t"}
	}
	created, err := ingest.IngestNews(context.Background(), articles)

	var pw *PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, 2, created)
}

func TestIngestNewsCommitFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.FailCommits(func(int, []repositories.Write) error { return errors.New("unavailable") })
	ingest := NewIngestService(env.posts, env.writer, "news-bot", quietLogger())

	created, err := ingest.IngestNews(context.Background(), []models.NewsArticle{{Title: "x"}})
	require.Error(t, err)
	assert.Equal(t, 0, created)
}
