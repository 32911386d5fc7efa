package repositories

import (
	"context"
	"fmt"

	"github.com/anonto42/nano-midea/engine/internal/models"
)

// BookmarkRepository defines the interface for the private bookmark namespace of a user
type BookmarkRepository interface {
	ListBookmarks(ctx context.Context, uid string) ([]models.Bookmark, error)
	IsBookmarked(ctx context.Context, uid, postID string) (bool, error)
}

// StoreBookmarkRepository implements BookmarkRepository on a DocumentStore
type StoreBookmarkRepository struct {
	store DocumentStore
}

// NewStoreBookmarkRepository creates a new StoreBookmarkRepository
func NewStoreBookmarkRepository(store DocumentStore) *StoreBookmarkRepository {
	return &StoreBookmarkRepository{store: store}
}

// ListBookmarks returns every bookmark of uid, newest first
func (r *StoreBookmarkRepository) ListBookmarks(ctx context.Context, uid string) ([]models.Bookmark, error) {
	docs, err := r.store.Find(ctx, Query{
		Collection: BookmarksCollection(uid),
		OrderBy:    "createdAt",
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Bookmark, 0, len(docs))
	for _, d := range docs {
		var b models.Bookmark
		if err := d.DataTo(&b); err != nil {
			return nil, fmt.Errorf("decode bookmark %s: %w", d.ID, err)
		}
		b.ID = d.ID
		out = append(out, b)
	}
	return out, nil
}

func (r *StoreBookmarkRepository) IsBookmarked(ctx context.Context, uid, postID string) (bool, error) {
	var b models.Bookmark
	err := r.store.Get(ctx, BookmarkPath(uid, postID), &b)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}
