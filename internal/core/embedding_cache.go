package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"kcglobed.com/finance-chatbot/internal/cache"
)

// embedTimeout bounds one provider call shared by every caller waiting on the same key.
const embedTimeout = 60 * time.Second

// EmbeddingCache memoizes embeddings by key (a URL or the text itself).
// Page embeddings set by Precompute are pinned and never evicted; everything else lives in
// an LRU that a positive size bounds.
type EmbeddingCache struct {
	embedder Embedder
	entries  *cache.LRU[Embedding]
	group    singleflight.Group

	mu     sync.RWMutex
	pinned map[string]Embedding
}

func NewEmbeddingCache(embedder Embedder, maxEntries int) *EmbeddingCache {
	return &EmbeddingCache{
		embedder: embedder,
		entries:  cache.NewLRU[Embedding](maxEntries),
		pinned:   make(map[string]Embedding),
	}
}

// Embed makes the cache usable wherever an Embedder is expected, keyed by the text.
func (c *EmbeddingCache) Embed(ctx context.Context, text string) (Embedding, error) {
	return c.GetOrCompute(ctx, text)
}

// GetOrCompute returns the cached embedding for key, embedding key itself on a miss.
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, key string) (Embedding, error) {
	return c.GetOrComputeText(ctx, key, key)
}

// GetOrComputeText caches under key but embeds text on a miss.
func (c *EmbeddingCache) GetOrComputeText(ctx context.Context, key, text string) (Embedding, error) {
	if v, ok := c.Lookup(key); ok {
		return v, nil
	}
	return c.compute(ctx, key, text)
}

// compute runs one provider call per key at a time. The call is detached from ctx so a
// caller that goes away does not fail the others waiting on the same key.
func (c *EmbeddingCache) compute(ctx context.Context, key, text string) (Embedding, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.Lookup(key); ok {
			return v, nil
		}
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), embedTimeout)
		defer cancel()
		emb, err := c.embedder.Embed(callCtx, text)
		if err != nil {
			return nil, err
		}
		if len(emb) == 0 {
			return nil, fmt.Errorf("empty embedding for %q", key)
		}
		c.entries.Add(key, emb)
		return emb, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Embedding), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lookup returns a cached embedding without calling the provider.
func (c *EmbeddingCache) Lookup(key string) (Embedding, bool) {
	c.mu.RLock()
	v, ok := c.pinned[key]
	c.mu.RUnlock()
	if ok {
		return v, true
	}
	return c.entries.Get(key)
}

// Precompute pins an embedding for every key, reusing the ones already pinned. Either all
// keys are embedded and replace the pinned set, or an error is returned and the previous
// set stays in place.
func (c *EmbeddingCache) Precompute(ctx context.Context, keys []string, textFor func(string) string) error {
	c.mu.RLock()
	previous := c.pinned
	c.mu.RUnlock()

	next := make(map[string]Embedding, len(keys))
	computed := 0
	for _, key := range keys {
		if v, ok := previous[key]; ok {
			next[key] = v
			continue
		}
		text := key
		if textFor != nil {
			text = textFor(key)
		}
		emb, err := c.compute(ctx, key, text)
		if err != nil {
			return fmt.Errorf("failed to embed %s: %w", key, err)
		}
		next[key] = emb
		computed++
	}

	c.mu.Lock()
	c.pinned = next
	c.mu.Unlock()
	log.Printf("Page embeddings ready: %d computed, %d pages", computed, len(next))
	return nil
}
