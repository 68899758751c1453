package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and local development.
// Documents are normalized through JSON so field names and value types match
// what the DynamoDB implementation sees.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]map[string]any)}
}

func toDocument(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: marshal document: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docstore: document is not an object: %w", err)
	}
	return doc, nil
}

func normalizeValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, collection, id string, out any) error {
	// Update mutates documents in place, so decode under the read lock.
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	return decode(doc, out)
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, collection, id string, doc any) error {
	m, err := toDocument(doc)
	if err != nil {
		return err
	}
	m["id"] = id

	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]map[string]any)
		s.collections[collection] = col
	}
	if _, exists := col[id]; exists {
		return ErrAlreadyExists
	}
	col[id] = m
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		doc[k] = normalizeValue(v)
	}
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, collection string, q Query, out any) error {
	// Sorting and decoding read the matched documents, so the lock is held
	// until the result is fully encoded.
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []map[string]any
	for _, doc := range s.collections[collection] {
		if matchesEq(doc, q.Eq) {
			matched = append(matched, doc)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			less := compareValues(matched[i][q.OrderBy], matched[j][q.OrderBy]) < 0
			if q.Descending {
				return !less && compareValues(matched[i][q.OrderBy], matched[j][q.OrderBy]) != 0
			}
			return less
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return decode(matched, out)
}

func matchesEq(doc map[string]any, eq map[string]any) bool {
	for field, want := range eq {
		if !reflect.DeepEqual(doc[field], normalizeValue(want)) {
			return false
		}
	}
	return true
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			// Timestamps marshal as RFC3339Nano with trailing zeros
			// trimmed, so they must be compared as times, not strings.
			if at, err := time.Parse(time.RFC3339Nano, av); err == nil {
				if bt, err := time.Parse(time.RFC3339Nano, bv); err == nil {
					return at.Compare(bt)
				}
			}
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func decode(from, to any) error {
	raw, err := json.Marshal(from)
	if err != nil {
		return fmt.Errorf("docstore: encode result: %w", err)
	}
	if err := json.Unmarshal(raw, to); err != nil {
		return fmt.Errorf("docstore: decode result: %w", err)
	}
	return nil
}
