package vectordb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/aionlabs/aion/engine/core"
)

const collectionName = "agent_memory"

// ChromemStore persists embeddings with chromem-go under <dataDir>/chroma,
// cosine metric. Embeddings are always supplied by the caller, so the
// collection's own embedding func is never exercised.
type ChromemStore struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
	dimension  int
}

// NewChromemStore opens (or creates) the persistent collection. dimension
// is the embedding width used for the enumeration probe vector.
func NewChromemStore(dataDir string, dimension int) (*ChromemStore, error) {
	if dimension <= 0 {
		return nil, core.NewError(errors.New("embedding dimension must be positive"), "INVALID_CONFIG",
			map[string]any{"dimension": dimension})
	}
	db, err := chromem.NewPersistentDB(filepath.Join(dataDir, "chroma"), false)
	if err != nil {
		return nil, fmt.Errorf("vectordb: open persistent index: %w", err)
	}
	collection, err := db.GetOrCreateCollection(collectionName, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("vectordb: open collection: %w", err)
	}
	return &ChromemStore{db: db, collection: collection, dimension: dimension}, nil
}

// rejectEmbedding guards against accidental text-side embedding: every code
// path must pass precomputed vectors.
func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("vectordb: embeddings must be precomputed")
}

func (s *ChromemStore) Add(ctx context.Context, doc Document) error {
	if len(doc.Embedding) == 0 {
		return core.NewError(errors.New("document embedding is required"), "INVALID_INPUT",
			map[string]any{"id": doc.ID})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.collection.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: doc.Embedding,
		Metadata:  doc.Metadata,
	})
	if err != nil {
		return fmt.Errorf("vectordb: add document %q: %w", doc.ID, err)
	}
	return nil
}

func (s *ChromemStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.collection.GetByID(ctx, id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("vectordb: get document %q: %w", id, err)
	}
	return &Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: doc.Embedding,
		Metadata:  doc.Metadata,
	}, nil
}

func (s *ChromemStore) Query(ctx context.Context, embedding []float32, n int) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query(ctx, embedding, n)
}

func (s *ChromemStore) query(ctx context.Context, embedding []float32, n int) ([]Result, error) {
	count := s.collection.Count()
	if count == 0 || n <= 0 {
		return nil, nil
	}
	if n > count {
		n = count
	}
	hits, err := s.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vectordb: query: %w", err)
	}
	out := make([]Result, 0, len(hits))
	for _, hit := range hits {
		out = append(out, Result{
			Document: Document{
				ID:        hit.ID,
				Content:   hit.Content,
				Embedding: hit.Embedding,
				Metadata:  hit.Metadata,
			},
			Similarity: hit.Similarity,
		})
	}
	return out, nil
}

func (s *ChromemStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("vectordb: delete documents: %w", err)
	}
	return nil
}

// List enumerates every document by querying a probe vector with n = count.
// chromem exposes no direct scan; ranking against an arbitrary unit vector
// returns the full collection.
func (s *ChromemStore) List(ctx context.Context) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	probe := make([]float32, s.dimension)
	probe[0] = 1
	hits, err := s.query(ctx, probe, count)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(hits))
	for _, hit := range hits {
		out = append(out, hit.Document)
	}
	return out, nil
}

func (s *ChromemStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Count(), nil
}

func (s *ChromemStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("vectordb: drop collection: %w", err)
	}
	collection, err := s.db.GetOrCreateCollection(collectionName, nil, rejectEmbedding)
	if err != nil {
		return fmt.Errorf("vectordb: recreate collection: %w", err)
	}
	s.collection = collection
	return nil
}
