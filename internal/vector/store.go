// Package vector provides named, independently queryable collections of embedded documents.
package vector

import (
	"context"
	"fmt"
)

// Document is one retrieved collection entry.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float32        `json:"score"`
}

// Store opens collections by name, creating them empty on first reference.
type Store interface {
	GetOrCreateCollection(ctx context.Context, name string) (Collection, error)
	Close() error
}

// Collection is a single named set of embedded documents.
type Collection interface {
	Name() string
	// Add upserts documents; all slices must have the same length (metadatas may be nil).
	Add(ctx context.Context, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]any) error
	// Query returns at most k documents, most relevant first.
	Query(ctx context.Context, embedding []float32, k int) ([]Document, error)
}

func validateAdd(ids []string, documents []string, embeddings [][]float32, metadatas []map[string]any) error {
	if len(ids) != len(documents) || len(ids) != len(embeddings) {
		return fmt.Errorf("ids, documents and embeddings must have the same length (%d, %d, %d)", len(ids), len(documents), len(embeddings))
	}
	if metadatas != nil && len(metadatas) != len(ids) {
		return fmt.Errorf("metadatas length %d does not match ids length %d", len(metadatas), len(ids))
	}
	for i, emb := range embeddings {
		if len(emb) == 0 {
			return fmt.Errorf("embedding for %q is empty", ids[i])
		}
	}
	return nil
}
