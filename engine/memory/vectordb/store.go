// Package vectordb abstracts the ANN index behind a narrow store interface
// so the memory layer can run against the persistent chromem backend or a
// pure in-memory scan.
package vectordb

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document id does not exist.
var ErrNotFound = errors.New("vectordb: document not found")

// Document is one stored embedding with its content and string metadata.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// Result is a query hit. Similarity is cosine similarity in [-1, 1];
// distance = 1 - similarity.
type Result struct {
	Document
	Similarity float32
}

// Distance returns the cosine distance of the hit.
func (r *Result) Distance() float32 {
	return 1 - r.Similarity
}

// Store is the index contract consumed by VectorMemory. Implementations
// must be safe for concurrent use.
type Store interface {
	Add(ctx context.Context, doc Document) error
	Get(ctx context.Context, id string) (*Document, error)
	// Query returns up to n results ranked by similarity, best first.
	Query(ctx context.Context, embedding []float32, n int) ([]Result, error)
	Delete(ctx context.Context, ids ...string) error
	// List returns every stored document in unspecified order.
	List(ctx context.Context) ([]Document, error)
	Count(ctx context.Context) (int, error)
	// Reset drops every document.
	Reset(ctx context.Context) error
}
