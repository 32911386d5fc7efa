package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoIDField     = "_id"
	mongoParentField = "_parent"
)

// MongoStore implements DocumentStore on MongoDB. A document path maps to a
// collection named after its collection segments (users/u1/stats/stats lives in
// users_stats) keyed by the full path. Commit needs a replica set because it
// runs inside a multi-document transaction.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore creates a new MongoStore
func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{client: client, db: db}
}

func (s *MongoStore) collectionFor(collection string) (*mongo.Collection, string) {
	segs := strings.Split(strings.Trim(collection, "/"), "/")
	names := make([]string, 0, len(segs)/2+1)
	for i := 0; i < len(segs); i += 2 {
		names = append(names, segs[i])
	}
	parent := ""
	if len(segs) > 1 {
		parent = strings.Join(segs[:len(segs)-1], "/")
	}
	return s.db.Collection(strings.Join(names, "_")), parent
}

func (s *MongoStore) locate(path string) (*mongo.Collection, string, string, error) {
	collection, id, err := splitPath(path)
	if err != nil {
		return nil, "", "", err
	}
	coll, parent := s.collectionFor(collection)
	return coll, parent, id, nil
}

func (s *MongoStore) Get(ctx context.Context, path string, dst interface{}) error {
	coll, _, _, err := s.locate(path)
	if err != nil {
		return err
	}
	err = coll.FindOne(ctx, bson.M{mongoIDField: path}).Decode(dst)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return err
}

func (s *MongoStore) filter(q Query) (*mongo.Collection, bson.M, error) {
	if !validCollection(q.Collection) {
		return nil, nil, fmt.Errorf("%w: collection %q", ErrInvalidPath, q.Collection)
	}
	coll, parent := s.collectionFor(q.Collection)
	filter := bson.M{mongoParentField: parent}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual, OpArrayContains:
			// Mongo equality on an array field already matches elements.
			filter[f.Field] = f.Value
		default:
			return nil, nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}
	return coll, filter, nil
}

func (s *MongoStore) Find(ctx context.Context, q Query) ([]Document, error) {
	coll, filter, err := s.filter(q)
	if err != nil {
		return nil, err
	}
	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: mongoIDField, Value: 1}})
	} else {
		opts.SetSort(bson.D{{Key: mongoIDField, Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []Document
	for cursor.Next(ctx) {
		raw := append(bson.Raw(nil), cursor.Current...)
		path, _ := raw.Lookup(mongoIDField).StringValueOK()
		_, id, _ := splitPath(path)
		docs = append(docs, Document{
			ID:     id,
			Path:   path,
			decode: func(dst interface{}) error { return bson.Unmarshal(raw, dst) },
		})
	}
	return docs, cursor.Err()
}

func (s *MongoStore) Commit(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	if len(writes) > MaxBatchWrites {
		return fmt.Errorf("batch of %d writes exceeds the limit of %d", len(writes), MaxBatchWrites)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		now := time.Now().UTC()
		for _, w := range writes {
			if err := s.apply(sc, w, now); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (s *MongoStore) apply(ctx context.Context, w Write, now time.Time) error {
	coll, parent, _, err := s.locate(w.Path)
	if err != nil {
		return err
	}
	key := bson.M{mongoIDField: w.Path}

	switch w.Op {
	case OpSet:
		doc := bson.M{mongoIDField: w.Path, mongoParentField: parent}
		for k, v := range w.Fields {
			doc[k] = mongoLiteral(v, now)
		}
		_, err := coll.ReplaceOne(ctx, key, doc, options.Replace().SetUpsert(true))
		return err
	case OpUpdate, OpMerge:
		update := mongoUpdate(w.Fields, now)
		upsert := w.Op == OpMerge
		if upsert {
			update["$setOnInsert"] = bson.M{mongoParentField: parent}
		}
		res, err := coll.UpdateOne(ctx, key, update, options.Update().SetUpsert(upsert))
		if err != nil {
			return err
		}
		if !upsert && res.MatchedCount == 0 {
			return fmt.Errorf("update %s: %w", w.Path, ErrNotFound)
		}
		return nil
	case OpDelete:
		_, err := coll.DeleteOne(ctx, key)
		return err
	}
	return fmt.Errorf("unsupported write op %d", w.Op)
}

func mongoUpdate(fields map[string]interface{}, now time.Time) bson.M {
	set := bson.M{}
	addToSet := bson.M{}
	pull := bson.M{}
	inc := bson.M{}
	for k, v := range fields {
		t, ok := v.(fieldTransform)
		if !ok {
			set[k] = v
			continue
		}
		switch t.kind {
		case transformArrayUnion:
			addToSet[k] = bson.M{"$each": t.values}
		case transformArrayRemove:
			pull[k] = bson.M{"$in": t.values}
		case transformIncrement:
			inc[k] = t.delta
		case transformServerTimestamp:
			set[k] = now
		}
	}
	update := bson.M{}
	for op, part := range map[string]bson.M{"$set": set, "$addToSet": addToSet, "$pull": pull, "$inc": inc} {
		if len(part) > 0 {
			update[op] = part
		}
	}
	return update
}

// mongoLiteral resolves a transform used inside a full-document write.
func mongoLiteral(v interface{}, now time.Time) interface{} {
	t, ok := v.(fieldTransform)
	if !ok {
		return v
	}
	switch t.kind {
	case transformArrayUnion:
		return t.values
	case transformArrayRemove:
		return []interface{}{}
	case transformIncrement:
		return t.delta
	case transformServerTimestamp:
		return now
	}
	return nil
}

func (s *MongoStore) NewDocPath(collection string) string {
	return DocPath(collection, primitive.NewObjectID().Hex())
}

func (s *MongoStore) Watch(ctx context.Context, q Query, fn func([]Document, error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	coll, _, err := s.filter(q)
	if err != nil {
		go fn(nil, err)
		return cancel
	}
	go s.watchLoop(ctx, coll, func() bool {
		docs, err := s.Find(ctx, q)
		if ctx.Err() != nil {
			return false
		}
		fn(docs, err)
		return err == nil
	}, func(err error) { fn(nil, err) })
	return cancel
}

func (s *MongoStore) WatchDocument(ctx context.Context, path string, fn func(*Document, error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	coll, _, id, err := s.locate(path)
	if err != nil {
		go fn(nil, err)
		return cancel
	}
	go s.watchLoop(ctx, coll, func() bool {
		raw, err := coll.FindOne(ctx, bson.M{mongoIDField: path}).Raw()
		if ctx.Err() != nil {
			return false
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			fn(nil, nil)
			return true
		}
		if err != nil {
			fn(nil, err)
			return false
		}
		raw = append(bson.Raw(nil), raw...)
		fn(&Document{ID: id, Path: path, decode: func(dst interface{}) error { return bson.Unmarshal(raw, dst) }}, nil)
		return true
	}, func(err error) { fn(nil, err) })
	return cancel
}

// watchLoop re-runs deliver after every change event on coll.
func (s *MongoStore) watchLoop(ctx context.Context, coll *mongo.Collection, deliver func() bool, fail func(error)) {
	stream, err := coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		if ctx.Err() == nil {
			fail(err)
		}
		return
	}
	defer stream.Close(context.Background())

	if !deliver() {
		return
	}
	for stream.Next(ctx) {
		if !deliver() {
			return
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		fail(err)
	}
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
