package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"kcglobed.com/finance-chatbot/internal/utils"
	"kcglobed.com/finance-chatbot/internal/vector"
)

const (
	ingestChunkSize    = 500
	ingestChunkOverlap = 100
	ingestBatchSize    = 64
	// 25 embeddings per second keeps well below 1500 requests per minute.
	ingestEmbedRate = 25
)

// IngestService loads text files into vector collections.
type IngestService struct {
	store    vector.Store
	embedder Embedder
	limiter  *rate.Limiter
}

func NewIngestService(store vector.Store, embedder Embedder) *IngestService {
	return &IngestService{
		store:    store,
		embedder: embedder,
		limiter:  rate.NewLimiter(rate.Limit(ingestEmbedRate), 1),
	}
}

// IngestFile splits the file into overlapping chunks, embeds them and upserts them into
// collection with ids "<basename>::<i>", so re-ingesting a file overwrites its chunks.
func (s *IngestService) IngestFile(ctx context.Context, path, collection string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read data file %s: %w", path, err)
	}

	chunks := utils.SplitText(string(content), ingestChunkSize, ingestChunkOverlap)
	if len(chunks) == 0 {
		log.Printf("No chunks generated from %s.", path)
		return 0, nil
	}

	coll, err := s.store.GetOrCreateCollection(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("failed to open collection %s: %w", collection, err)
	}

	log.Printf("Generated %d chunks from %s. Now embedding (this may take a while)...", len(chunks), path)

	base := filepath.Base(path)
	count := 0
	for start := 0; start < len(chunks); start += ingestBatchSize {
		end := min(start+ingestBatchSize, len(chunks))

		ids := make([]string, 0, end-start)
		docs := make([]string, 0, end-start)
		embeddings := make([][]float32, 0, end-start)
		metas := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			if err := s.limiter.Wait(ctx); err != nil {
				return count, err
			}
			emb, err := s.embedder.Embed(ctx, chunks[i])
			if err != nil {
				return count, fmt.Errorf("failed to embed chunk %d of %s: %w", i, base, err)
			}
			ids = append(ids, fmt.Sprintf("%s::%d", base, i))
			docs = append(docs, chunks[i])
			embeddings = append(embeddings, emb)
			metas = append(metas, map[string]any{
				"file":  base,
				"index": i,
				"path":  path,
			})
		}

		if err := coll.Add(ctx, ids, docs, embeddings, metas); err != nil {
			return count, fmt.Errorf("failed to store chunks of %s: %w", base, err)
		}
		count += len(ids)
		log.Printf("Ingested %d/%d chunks of %s into %s", count, len(chunks), base, collection)
	}
	return count, nil
}

// IsTextFile reports whether path looks like something IngestFile can read.
func IsTextFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".text":
		return true
	}
	return false
}
