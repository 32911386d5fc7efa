package repositories

import (
	"context"
	"fmt"

	"github.com/anonto42/nano-midea/engine/internal/models"
)

// PostRepository defines the interface for post lookups across both namespaces
type PostRepository interface {
	GetPost(ctx context.Context, ns models.Namespace, id string) (*models.Post, error)
	GetPostsByAuthor(ctx context.Context, ns models.Namespace, authorID string, limit int) ([]models.Post, error)
	GetReplies(ctx context.Context, ns models.Namespace, parentID string) ([]models.Post, error)
	Path(ns models.Namespace, id string) string
	NewPath() string
	Namespaces() Namespaces
}

// StorePostRepository implements PostRepository on a DocumentStore
type StorePostRepository struct {
	store      DocumentStore
	namespaces Namespaces
}

// NewStorePostRepository creates a new StorePostRepository
func NewStorePostRepository(store DocumentStore, namespaces Namespaces) *StorePostRepository {
	return &StorePostRepository{store: store, namespaces: namespaces}
}

func (r *StorePostRepository) Namespaces() Namespaces {
	return r.namespaces
}

// Path returns the document path of id inside ns.
func (r *StorePostRepository) Path(ns models.Namespace, id string) string {
	return DocPath(r.namespaces.Collection(ns), id)
}

// NewPath reserves a path for a new post. New posts always land in the current namespace.
func (r *StorePostRepository) NewPath() string {
	return r.store.NewDocPath(r.namespaces.Current)
}

// GetPost retrieves a post by ID from one namespace
func (r *StorePostRepository) GetPost(ctx context.Context, ns models.Namespace, id string) (*models.Post, error) {
	if id == "" {
		return nil, fmt.Errorf("post id is empty: %w", ErrNotFound)
	}
	var post models.Post
	if err := r.store.Get(ctx, r.Path(ns, id), &post); err != nil {
		return nil, err
	}
	post.ID = id
	return &post, nil
}

// GetPostsByAuthor lists the newest posts of one author
func (r *StorePostRepository) GetPostsByAuthor(ctx context.Context, ns models.Namespace, authorID string, limit int) ([]models.Post, error) {
	q := Query{
		Collection: r.namespaces.Collection(ns),
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      limit,
	}.Where("createdBy", OpEqual, authorID)
	return r.find(ctx, q)
}

// GetReplies lists the direct replies to a post
func (r *StorePostRepository) GetReplies(ctx context.Context, ns models.Namespace, parentID string) ([]models.Post, error) {
	q := Query{
		Collection: r.namespaces.Collection(ns),
		OrderBy:    "createdAt",
	}.Where("parent.id", OpEqual, parentID)
	return r.find(ctx, q)
}

func (r *StorePostRepository) find(ctx context.Context, q Query) ([]models.Post, error) {
	docs, err := r.store.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	return DecodePosts(docs)
}

// DecodePosts decodes query results into posts carrying their document ids.
func DecodePosts(docs []Document) ([]models.Post, error) {
	posts := make([]models.Post, 0, len(docs))
	for _, d := range docs {
		var p models.Post
		if err := d.DataTo(&p); err != nil {
			return nil, fmt.Errorf("decode post %s: %w", d.ID, err)
		}
		p.ID = d.ID
		posts = append(posts, p)
	}
	return posts, nil
}
