package vector

import (
	"context"
	"sync"

	"kcglobed.com/finance-chatbot/internal/utils"
)

// MemoryStore is an in-process Store used when no Qdrant host is configured.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) GetOrCreateCollection(_ context.Context, name string) (Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{name: name, docs: make(map[string]Document), vectors: make(map[string][]float32)}
		s.collections[name] = c
	}
	return c, nil
}

func (s *MemoryStore) Close() error { return nil }

type memoryCollection struct {
	name    string
	mu      sync.RWMutex
	order   []string
	docs    map[string]Document
	vectors map[string][]float32
}

func (c *memoryCollection) Name() string { return c.name }

func (c *memoryCollection) Add(_ context.Context, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]any) error {
	if err := validateAdd(ids, documents, embeddings, metadatas); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, id := range ids {
		if _, exists := c.docs[id]; !exists {
			c.order = append(c.order, id)
		}
		doc := Document{ID: id, Text: documents[i]}
		if metadatas != nil {
			doc.Metadata = metadatas[i]
		}
		c.docs[id] = doc
		c.vectors[id] = embeddings[i]
	}
	return nil
}

func (c *memoryCollection) Query(_ context.Context, embedding []float32, k int) ([]Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if k <= 0 || len(c.order) == 0 {
		return nil, nil
	}

	lookup := func(id string) ([]float32, bool) {
		v, ok := c.vectors[id]
		return v, ok
	}
	ranked := utils.RankBySimilarity(embedding, c.order, lookup, k)

	results := make([]Document, len(ranked))
	for i, r := range ranked {
		doc := c.docs[r.Key]
		doc.Score = r.Score
		results[i] = doc
	}
	return results, nil
}
