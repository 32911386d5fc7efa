package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/nano-midea/engine/internal/models"
)

// Strategy is one source a Resolver consults. Find returns an error wrapping
// ErrNotFound when the source has no answer.
type Strategy[T any] struct {
	Name string
	Find func(ctx context.Context) (T, error)
}

// Resolver tries its strategies in order and stops at the first hit.
type Resolver[T any] struct {
	strategies []Strategy[T]
}

// NewResolver creates a Resolver over strategies, highest priority first.
func NewResolver[T any](strategies ...Strategy[T]) *Resolver[T] {
	return &Resolver[T]{strategies: strategies}
}

// Resolve returns the first value found and the name of the strategy that found
// it. A strategy failing with anything other than not-found does not stop the
// walk; if nothing is found, the first such failure is returned, otherwise an
// error wrapping ErrNotFound.
func (r *Resolver[T]) Resolve(ctx context.Context) (T, string, error) {
	var zero T
	var firstErr error
	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		v, err := s.Find(ctx)
		if err == nil {
			return v, s.Name, nil
		}
		if !isNotFound(err) && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	if firstErr != nil {
		return zero, "", firstErr
	}
	return zero, "", ErrNotFound
}

// PostResolver looks a post up in the given namespaces, in order.
func PostResolver(posts PostRepository, id string, order ...models.Namespace) *Resolver[*models.Post] {
	strategies := make([]Strategy[*models.Post], 0, len(order))
	for _, ns := range order {
		ns := ns
		strategies = append(strategies, Strategy[*models.Post]{
			Name: string(ns),
			Find: func(ctx context.Context) (*models.Post, error) {
				return posts.GetPost(ctx, ns, id)
			},
		})
	}
	return NewResolver(strategies...)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
