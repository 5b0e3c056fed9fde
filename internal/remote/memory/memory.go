// Package memory is an in-process remote.Store.
//
// It backs the engine tests and the development server (when no REMOTE_URL
// is configured). It is a faithful little document store — collection paths,
// equality filters, upsert semantics — plus a fault injector so tests can
// exercise the engine's offline fallback paths.
package memory

import (
	"context"
	"sync"

	"github.com/qliu/flashsync/internal/remote"
)

var _ remote.Store = (*Store)(nil)

// Store holds collections in a nested map: path → docID → fields.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	failWith    error
}

func New() *Store {
	return &Store{collections: make(map[string]map[string]map[string]any)}
}

// FailWith makes every subsequent call return err; pass nil to heal.
// Tests use this to simulate an unreachable backing store.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *Store) GetDocuments(ctx context.Context, path string, filters ...remote.Filter) ([]remote.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	docs := make([]remote.Document, 0)
	for id, fields := range s.collections[path] {
		if !matches(fields, filters) {
			continue
		}
		docs = append(docs, remote.Document{ID: id, Fields: cloneFields(fields)})
	}
	return docs, nil
}

func (s *Store) SetDocument(ctx context.Context, path, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	coll, ok := s.collections[path]
	if !ok {
		coll = make(map[string]map[string]any)
		s.collections[path] = coll
	}
	coll[id] = cloneFields(fields)
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, path, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	delete(s.collections[path], id)
	return nil
}

func matches(fields map[string]any, filters []remote.Filter) bool {
	for _, f := range filters {
		if fields[f.Field] != f.Value {
			return false
		}
	}
	return true
}

// cloneFields copies the top-level map so callers can't mutate stored state.
// Nested values are shared; the engine treats documents as read-only.
func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
