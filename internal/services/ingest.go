package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anonto42/nano-midea/engine/internal/models"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
)

const newsSeparator = " — "

// IngestService turns externally sourced articles into automated posts. They
// are ordinary posts in the current namespace, so the creation triggers fan
// them out like any other post.
type IngestService struct {
	posts  repositories.PostRepository
	writer *BatchWriter
	botUID string
	logger *slog.Logger
}

// NewIngestService creates a new IngestService
func NewIngestService(posts repositories.PostRepository, writer *BatchWriter, botUID string, logger *slog.Logger) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		posts:  posts,
		writer: writer,
		botUID: botUID,
		logger: logger.With(slog.String("component", "ingest")),
	}
}

// NewsPostText builds the post body for an article, capped at MaxPostLength runes.
func NewsPostText(a models.NewsArticle) string {
	text := strings.TrimSpace(a.Title)
	if d := strings.TrimSpace(a.Description); d != "" {
		text += newsSeparator + d
	}
	if r := []rune(text); len(r) > MaxPostLength {
		text = string(r[:MaxPostLength])
	}
	return text
}

// IngestNews writes one automated post per article and returns how many were
// committed. On a partial failure the count covers the groups that landed.
func (s *IngestService) IngestNews(ctx context.Context, articles []models.NewsArticle) (int, error) {
	if len(articles) == 0 {
		return 0, invalid("no articles provided")
	}
	writes := make([]repositories.Write, 0, len(articles))
	for _, a := range articles {
		writes = append(writes, repositories.Set(s.posts.NewPath(), map[string]interface{}{
			"text":        NewsPostText(a),
			"createdBy":   s.botUID,
			"createdAt":   repositories.ServerTimestamp,
			"updatedAt":   nil,
			"likedBy":     []string{},
			"resharedBy":  []string{},
			"replyCount":  int64(0),
			"source":      map[string]interface{}{"name": a.Source.Name, "url": a.URL},
			"externalUrl": a.URL,
			"isAutomated": true,
		}))
	}

	err := s.writer.Commit(ctx, writes)
	created := writtenBy(err, len(writes))
	if err != nil {
		return created, fmt.Errorf("ingest news: %w", err)
	}
	s.logger.Info("automated posts created", slog.Int("created", created), slog.String("actor_id", s.botUID))
	return created, nil
}
