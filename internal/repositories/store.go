package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxBatchWrites is the hard cap on writes in one atomic commit.
const MaxBatchWrites = 500

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidPath is returned for malformed document or collection paths.
	ErrInvalidPath = errors.New("invalid document path")
)

// DocumentStore is the document database the engine runs against. Commit is the
// only write primitive: every write in one call lands together or not at all.
type DocumentStore interface {
	// Get decodes the document at path into dst, or returns ErrNotFound.
	Get(ctx context.Context, path string, dst interface{}) error
	// Find runs a query against a single collection.
	Find(ctx context.Context, q Query) ([]Document, error)
	// Commit applies writes atomically. An empty slice is a no-op.
	Commit(ctx context.Context, writes []Write) error
	// NewDocPath reserves a fresh document path inside collection.
	NewDocPath(collection string) string
	// Watch calls fn with the query result now and after every change until
	// ctx is done or stop is called. After an error fn is not called again.
	Watch(ctx context.Context, q Query, fn func([]Document, error)) (stop func())
	// WatchDocument is Watch for a single document; doc is nil while it does not exist.
	WatchDocument(ctx context.Context, path string, fn func(doc *Document, err error)) (stop func())
	Close() error
}

// Document is one query result.
type Document struct {
	ID     string
	Path   string
	decode func(dst interface{}) error
}

// DataTo decodes the document fields into dst.
func (d Document) DataTo(dst interface{}) error {
	if d.decode == nil {
		return fmt.Errorf("document %s has no data", d.Path)
	}
	return d.decode(dst)
}

// FilterOp is a query comparison.
type FilterOp string

const (
	OpEqual         FilterOp = "=="
	OpArrayContains FilterOp = "array-contains"
)

// Filter is one where-clause.
type Filter struct {
	Field string
	Op    FilterOp
	Value interface{}
}

// Query selects documents of one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Where returns a copy of q with an extra filter.
func (q Query) Where(field string, op FilterOp, value interface{}) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// WriteOp is the kind of a pending write.
type WriteOp int

const (
	// OpSet creates or replaces the document.
	OpSet WriteOp = iota
	// OpUpdate changes fields of an existing document; fails if it is missing.
	OpUpdate
	// OpMerge changes fields, creating the document if needed.
	OpMerge
	// OpDelete removes the document. Deleting a missing document is not an error.
	OpDelete
)

func (o WriteOp) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpUpdate:
		return "update"
	case OpMerge:
		return "merge"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Write is one pending write descriptor: a target location plus the fields to store.
type Write struct {
	Op     WriteOp
	Path   string
	Fields map[string]interface{}
}

// Set builds an OpSet write.
func Set(path string, fields map[string]interface{}) Write {
	return Write{Op: OpSet, Path: path, Fields: fields}
}

// Update builds an OpUpdate write.
func Update(path string, fields map[string]interface{}) Write {
	return Write{Op: OpUpdate, Path: path, Fields: fields}
}

// Merge builds an OpMerge write.
func Merge(path string, fields map[string]interface{}) Write {
	return Write{Op: OpMerge, Path: path, Fields: fields}
}

// Delete builds an OpDelete write.
func Delete(path string) Write {
	return Write{Op: OpDelete, Path: path}
}

type transformKind int

const (
	transformArrayUnion transformKind = iota + 1
	transformArrayRemove
	transformIncrement
	transformServerTimestamp
)

type fieldTransform struct {
	kind   transformKind
	values []interface{}
	delta  int64
}

// ArrayUnion adds values to an array field, skipping ones already present.
func ArrayUnion(values ...interface{}) interface{} {
	return fieldTransform{kind: transformArrayUnion, values: values}
}

// ArrayRemove removes every occurrence of values from an array field.
func ArrayRemove(values ...interface{}) interface{} {
	return fieldTransform{kind: transformArrayRemove, values: values}
}

// Increment adds delta to a numeric field, treating a missing field as 0.
func Increment(delta int64) interface{} {
	return fieldTransform{kind: transformIncrement, delta: delta}
}

// ServerTimestamp is replaced by the store's clock at commit time.
var ServerTimestamp interface{} = fieldTransform{kind: transformServerTimestamp}

// splitPath validates a document path and returns its parent collection path and id.
func splitPath(path string) (collection, id string, err error) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) < 2 || len(segs)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, s := range segs {
		if s == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

func validCollection(collection string) bool {
	segs := strings.Split(strings.Trim(collection, "/"), "/")
	if len(segs)%2 != 1 {
		return false
	}
	for _, s := range segs {
		if s == "" {
			return false
		}
	}
	return true
}

// DocPath joins a collection path and a document id.
func DocPath(collection, id string) string {
	return strings.Trim(collection, "/") + "/" + id
}

// SplitPath returns the parent collection path and id of a document path.
func SplitPath(path string) (collection, id string, err error) {
	return splitPath(path)
}
