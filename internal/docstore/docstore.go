// Package docstore is a small façade over a persistent document store.
// Collections hold JSON-like documents addressed by id and queryable with
// equality, ordering, and limit predicates. The DynamoDB implementation backs
// production; the in-memory implementation backs tests and local development.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no document exists for the given id.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrAlreadyExists is returned when creating a document whose id is taken.
	ErrAlreadyExists = errors.New("docstore: document already exists")
)

// Query describes the predicates supported by List: equality on named
// fields, a single ordering field, and a result-count limit.
type Query struct {
	Eq         map[string]any
	OrderBy    string
	Descending bool
	Limit      int
}

// Store is the generic CRUD surface the domain packages depend on.
// Individual calls are atomic; sequences of calls are not.
type Store interface {
	// Get loads the document with the given id into out.
	Get(ctx context.Context, collection, id string, out any) error

	// Create inserts a new document. The id must be unused.
	Create(ctx context.Context, collection, id string, doc any) error

	// Update applies a partial field update to an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// List loads documents matching the query into out, which must be a
	// pointer to a slice.
	List(ctx context.Context, collection string, q Query, out any) error
}
