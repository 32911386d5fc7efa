package repositories

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements DocumentStore on Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new FirestoreStore
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) doc(path string) (*firestore.DocumentRef, error) {
	if _, _, err := splitPath(path); err != nil {
		return nil, err
	}
	ref := s.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return ref, nil
}

func (s *FirestoreStore) Get(ctx context.Context, path string, dst interface{}) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return err
	}
	return snap.DataTo(dst)
}

func (s *FirestoreStore) query(q Query) (firestore.Query, error) {
	if !validCollection(q.Collection) {
		return firestore.Query{}, fmt.Errorf("%w: collection %q", ErrInvalidPath, q.Collection)
	}
	fq := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Descending {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq, nil
}

func (s *FirestoreStore) Find(ctx context.Context, q Query) ([]Document, error) {
	fq, err := s.query(q)
	if err != nil {
		return nil, err
	}
	snaps, err := fq.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return toDocuments(q.Collection, snaps), nil
}

func toDocuments(collection string, snaps []*firestore.DocumentSnapshot) []Document {
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, snapshotDocument(DocPath(collection, snap.Ref.ID), snap))
	}
	return docs
}

func snapshotDocument(path string, snap *firestore.DocumentSnapshot) Document {
	return Document{ID: snap.Ref.ID, Path: path, decode: snap.DataTo}
}

func (s *FirestoreStore) Commit(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	if len(writes) > MaxBatchWrites {
		return fmt.Errorf("batch of %d writes exceeds the limit of %d", len(writes), MaxBatchWrites)
	}

	batch := s.client.Batch()
	for _, w := range writes {
		ref, err := s.doc(w.Path)
		if err != nil {
			return err
		}
		switch w.Op {
		case OpSet:
			batch.Set(ref, firestoreFields(w.Fields))
		case OpMerge:
			batch.Set(ref, firestoreFields(w.Fields), firestore.MergeAll)
		case OpUpdate:
			updates := make([]firestore.Update, 0, len(w.Fields))
			for k, v := range w.Fields {
				updates = append(updates, firestore.Update{Path: k, Value: firestoreValue(v)})
			}
			batch.Update(ref, updates)
		case OpDelete:
			batch.Delete(ref)
		default:
			return fmt.Errorf("unsupported write op %d", w.Op)
		}
	}

	if _, err := batch.Commit(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("commit: %w: %v", ErrNotFound, err)
		}
		return err
	}
	return nil
}

func firestoreFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = firestoreValue(v)
	}
	return out
}

func firestoreValue(v interface{}) interface{} {
	t, ok := v.(fieldTransform)
	if !ok {
		return v
	}
	switch t.kind {
	case transformArrayUnion:
		return firestore.ArrayUnion(t.values...)
	case transformArrayRemove:
		return firestore.ArrayRemove(t.values...)
	case transformIncrement:
		return firestore.Increment(t.delta)
	case transformServerTimestamp:
		return firestore.ServerTimestamp
	}
	return v
}

func (s *FirestoreStore) NewDocPath(collection string) string {
	return DocPath(collection, s.client.Collection(collection).NewDoc().ID)
}

func (s *FirestoreStore) Watch(ctx context.Context, q Query, fn func([]Document, error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	fq, err := s.query(q)
	if err != nil {
		go fn(nil, err)
		return cancel
	}

	it := fq.Snapshots(ctx)
	go func() {
		defer it.Stop()
		for {
			qs, err := it.Next()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if !errors.Is(err, iterator.Done) {
					fn(nil, err)
				}
				return
			}
			snaps, err := qs.Documents.GetAll()
			if err != nil {
				fn(nil, err)
				return
			}
			fn(toDocuments(q.Collection, snaps), nil)
		}
	}()
	return cancel
}

func (s *FirestoreStore) WatchDocument(ctx context.Context, path string, fn func(*Document, error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	ref, err := s.doc(path)
	if err != nil {
		go fn(nil, err)
		return cancel
	}

	it := ref.Snapshots(ctx)
	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if !errors.Is(err, iterator.Done) {
					fn(nil, err)
				}
				return
			}
			if !snap.Exists() {
				fn(nil, nil)
				continue
			}
			doc := snapshotDocument(path, snap)
			fn(&doc, nil)
		}
	}()
	return cancel
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
