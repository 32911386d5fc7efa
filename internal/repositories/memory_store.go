package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Change describes one document written by a MemoryStore commit. Before is nil
// for creations and After is nil for deletions.
type Change struct {
	Path       string
	Collection string
	ID         string
	Before     map[string]interface{}
	After      map[string]interface{}
}

// DecodeBefore decodes the pre-commit state into dst.
func (c Change) DecodeBefore(dst interface{}) error { return decodeFields(c.Before, dst) }

// DecodeAfter decodes the post-commit state into dst.
func (c Change) DecodeAfter(dst interface{}) error { return decodeFields(c.After, dst) }

// MemoryStore is an in-process DocumentStore with the same batch semantics as
// Firestore: a commit is all-or-nothing and an update of a missing document
// fails the whole commit. It backs tests and STORE_DRIVER=memory.
type MemoryStore struct {
	mu        sync.Mutex
	docs      map[string]map[string]interface{}
	clock     func() time.Time
	attempts  int
	commits   int
	failHook  func(attempt int, writes []Write) error
	watchErr  error
	listeners []func(Change)
	watchers  map[*memoryWatcher]struct{}
}

type memoryWatcher struct {
	notify chan struct{}
}

func (w *memoryWatcher) poke() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]map[string]interface{}),
		clock:    func() time.Time { return time.Now().UTC() },
		watchers: make(map[*memoryWatcher]struct{}),
	}
}

// SetClock replaces the clock used for server timestamps.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// FailCommits installs a hook consulted before every commit attempt (1-based);
// a non-nil error rejects that commit without applying any write.
func (s *MemoryStore) FailCommits(hook func(attempt int, writes []Write) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failHook = hook
}

// BreakWatches makes every live subscription fail with err.
func (s *MemoryStore) BreakWatches(err error) {
	s.mu.Lock()
	s.watchErr = err
	watchers := s.snapshotWatchers()
	s.mu.Unlock()
	for _, w := range watchers {
		w.poke()
	}
}

// OnChange registers fn to receive every committed document change, in commit order.
func (s *MemoryStore) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Commits returns the number of successful commits.
func (s *MemoryStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Seed writes a document directly, bypassing commit accounting and change listeners.
func (s *MemoryStore) Seed(path string, fields map[string]interface{}) error {
	if _, _, err := splitPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := make(map[string]interface{}, len(fields))
	if err := applyFields(doc, fields, s.clock()); err != nil {
		return err
	}
	s.docs[path] = doc
	return nil
}

// Raw returns a copy of the stored fields at path.
func (s *MemoryStore) Raw(path string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[path]
	if !ok {
		return nil, false
	}
	return cloneDoc(doc), true
}

func (s *MemoryStore) Get(ctx context.Context, path string, dst interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := splitPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	doc, ok := s.docs[path]
	if ok {
		doc = cloneDoc(doc)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return decodeFields(doc, dst)
}

func (s *MemoryStore) Find(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validCollection(q.Collection) {
		return nil, fmt.Errorf("%w: collection %q", ErrInvalidPath, q.Collection)
	}

	type hit struct {
		path string
		id   string
		doc  map[string]interface{}
	}
	var hits []hit

	s.mu.Lock()
	for path, doc := range s.docs {
		coll, id, err := splitPath(path)
		if err != nil || coll != q.Collection {
			continue
		}
		if !matchesFilters(doc, q.Filters) {
			continue
		}
		hits = append(hits, hit{path: path, id: id, doc: cloneDoc(doc)})
	}
	s.mu.Unlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compareValues(fieldValue(hits[i].doc, q.OrderBy), fieldValue(hits[j].doc, q.OrderBy))
			if c != 0 {
				if q.Descending {
					return c > 0
				}
				return c < 0
			}
		}
		return hits[i].id < hits[j].id
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	docs := make([]Document, 0, len(hits))
	for _, h := range hits {
		fields := h.doc
		docs = append(docs, Document{
			ID:     h.id,
			Path:   h.path,
			decode: func(dst interface{}) error { return decodeFields(fields, dst) },
		})
	}
	return docs, nil
}

func (s *MemoryStore) Commit(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(writes) > MaxBatchWrites {
		return fmt.Errorf("batch of %d writes exceeds the limit of %d", len(writes), MaxBatchWrites)
	}

	s.mu.Lock()
	s.attempts++
	if s.failHook != nil {
		if err := s.failHook(s.attempts, writes); err != nil {
			s.mu.Unlock()
			return err
		}
	}

	now := s.clock()
	staged := make(map[string]map[string]interface{})
	var order []string
	lookup := func(path string) (map[string]interface{}, bool) {
		if doc, ok := staged[path]; ok {
			return doc, doc != nil
		}
		doc, ok := s.docs[path]
		return doc, ok
	}

	for _, w := range writes {
		if _, _, err := splitPath(w.Path); err != nil {
			s.mu.Unlock()
			return err
		}
		current, exists := lookup(w.Path)
		var next map[string]interface{}
		switch w.Op {
		case OpSet:
			next = make(map[string]interface{}, len(w.Fields))
		case OpUpdate:
			if !exists {
				s.mu.Unlock()
				return fmt.Errorf("update %s: %w", w.Path, ErrNotFound)
			}
			next = cloneDoc(current)
		case OpMerge:
			next = cloneDoc(current)
			if next == nil {
				next = make(map[string]interface{}, len(w.Fields))
			}
		case OpDelete:
			next = nil
		default:
			s.mu.Unlock()
			return fmt.Errorf("unsupported write op %d", w.Op)
		}
		if next != nil {
			if err := applyFields(next, w.Fields, now); err != nil {
				s.mu.Unlock()
				return fmt.Errorf("%s %s: %w", w.Op, w.Path, err)
			}
		}
		if _, seen := staged[w.Path]; !seen {
			order = append(order, w.Path)
		}
		staged[w.Path] = next
	}

	changes := make([]Change, 0, len(order))
	for _, path := range order {
		before, existed := s.docs[path]
		after := staged[path]
		if after == nil {
			delete(s.docs, path)
		} else {
			s.docs[path] = after
		}
		if !existed && after == nil {
			continue
		}
		coll, id, _ := splitPath(path)
		changes = append(changes, Change{
			Path:       path,
			Collection: coll,
			ID:         id,
			Before:     cloneDoc(before),
			After:      cloneDoc(after),
		})
	}
	s.commits++
	listeners := append([]func(Change){}, s.listeners...)
	watchers := s.snapshotWatchers()
	s.mu.Unlock()

	for _, w := range watchers {
		w.poke()
	}
	for _, c := range changes {
		for _, fn := range listeners {
			fn(c)
		}
	}
	return nil
}

func (s *MemoryStore) NewDocPath(collection string) string {
	return DocPath(collection, uuid.NewString())
}

func (s *MemoryStore) Watch(ctx context.Context, q Query, fn func([]Document, error)) func() {
	return s.watch(ctx, func(ctx context.Context) bool {
		docs, err := s.Find(ctx, q)
		if ctx.Err() != nil {
			return false
		}
		fn(docs, err)
		return err == nil
	}, func(err error) { fn(nil, err) })
}

func (s *MemoryStore) WatchDocument(ctx context.Context, path string, fn func(*Document, error)) func() {
	return s.watch(ctx, func(ctx context.Context) bool {
		if _, _, err := splitPath(path); err != nil {
			fn(nil, err)
			return false
		}
		s.mu.Lock()
		raw, ok := s.docs[path]
		if ok {
			raw = cloneDoc(raw)
		}
		s.mu.Unlock()
		if !ok {
			fn(nil, nil)
			return true
		}
		_, id, _ := splitPath(path)
		fn(&Document{
			ID:     id,
			Path:   path,
			decode: func(dst interface{}) error { return decodeFields(raw, dst) },
		}, nil)
		return true
	}, func(err error) { fn(nil, err) })
}

func (s *MemoryStore) watch(ctx context.Context, deliver func(context.Context) bool, fail func(error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	w := &memoryWatcher{notify: make(chan struct{}, 1)}
	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()
	w.poke()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.watchers, w)
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.notify:
				s.mu.Lock()
				werr := s.watchErr
				s.mu.Unlock()
				if werr != nil {
					fail(werr)
					return
				}
				if !deliver(ctx) {
					return
				}
			}
		}
	}()
	return cancel
}

func (s *MemoryStore) snapshotWatchers() []*memoryWatcher {
	out := make([]*memoryWatcher, 0, len(s.watchers))
	for w := range s.watchers {
		out = append(out, w)
	}
	return out
}

func (s *MemoryStore) Close() error { return nil }

func applyFields(doc, fields map[string]interface{}, now time.Time) error {
	for key, value := range fields {
		t, ok := value.(fieldTransform)
		if !ok {
			doc[key] = normalize(value)
			continue
		}
		switch t.kind {
		case transformArrayUnion:
			arr := toSlice(doc[key])
			for _, v := range t.values {
				nv := normalize(v)
				if !containsValue(arr, nv) {
					arr = append(arr, nv)
				}
			}
			doc[key] = arr
		case transformArrayRemove:
			arr := toSlice(doc[key])
			kept := make([]interface{}, 0, len(arr))
			for _, existing := range arr {
				drop := false
				for _, v := range t.values {
					if reflect.DeepEqual(existing, normalize(v)) {
						drop = true
						break
					}
				}
				if !drop {
					kept = append(kept, existing)
				}
			}
			doc[key] = kept
		case transformIncrement:
			n, ok := toInt64(doc[key])
			if !ok && doc[key] != nil {
				return fmt.Errorf("field %q is not numeric", key)
			}
			doc[key] = n + t.delta
		case transformServerTimestamp:
			doc[key] = now
		}
	}
	return nil
}

// normalize turns a written value into the canonical in-memory shape: maps and
// slices are copied, structs become field maps, integers become int64.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	case string, bool, float64, int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Struct, reflect.Map:
		raw, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var out interface{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return v
		}
		return out
	}
	return v
}

func toSlice(v interface{}) []interface{} {
	if v == nil {
		return []interface{}{}
	}
	if s, ok := v.([]interface{}); ok {
		return append([]interface{}{}, s...)
	}
	if n, ok := normalize(v).([]interface{}); ok {
		return n
	}
	return []interface{}{}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	}
	return 0, false
}

func containsValue(arr []interface{}, v interface{}) bool {
	for _, e := range arr {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

func matchesFilters(doc map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		want := normalize(f.Value)
		switch f.Op {
		case OpEqual:
			if !reflect.DeepEqual(fieldValue(doc, f.Field), want) {
				return false
			}
		case OpArrayContains:
			arr, ok := fieldValue(doc, f.Field).([]interface{})
			if !ok || !containsValue(arr, want) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// fieldValue resolves a dotted field path such as "parent.id".
func fieldValue(doc map[string]interface{}, field string) interface{} {
	var cur interface{} = doc
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	}
	an, aok := toFloat(a)
	bn, bok := toFloat(b)
	switch {
	case aok && bok:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case aok:
		return 1
	case bok:
		return -1
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cloneDoc(doc map[string]interface{}) map[string]interface{} {
	if doc == nil {
		return nil
	}
	return normalize(doc).(map[string]interface{})
}

func decodeFields(fields map[string]interface{}, dst interface{}) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
