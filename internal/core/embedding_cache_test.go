package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingCache_ComputesOncePerKey(t *testing.T) {
	embedder := newFakeEmbedder(map[string]Embedding{"tax deadline": {0.1, 0.2}})
	c := NewEmbeddingCache(embedder, 0)
	ctx := context.Background()

	first, err := c.GetOrCompute(ctx, "tax deadline")
	require.NoError(t, err)
	second, err := c.GetOrCompute(ctx, "tax deadline")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, embedder.callCount("tax deadline"))
}

func TestEmbeddingCache_ConcurrentSameKey(t *testing.T) {
	embedder := newFakeEmbedder(nil)
	c := NewEmbeddingCache(embedder, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrCompute(context.Background(), "https://www.irs.gov/")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, ok := c.Lookup("https://www.irs.gov/")
	assert.True(t, ok)
	assert.NotEmpty(t, v)
	assert.GreaterOrEqual(t, embedder.callCount("https://www.irs.gov/"), 1)
}

func TestEmbeddingCache_ErrorIsNotCached(t *testing.T) {
	embedder := newFakeEmbedder(nil)
	embedder.err = errors.New("provider down")
	c := NewEmbeddingCache(embedder, 0)

	_, err := c.GetOrCompute(context.Background(), "q")
	require.Error(t, err)
	_, ok := c.Lookup("q")
	assert.False(t, ok)

	embedder.err = nil
	_, err = c.GetOrCompute(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.callCount("q"))
}

func TestEmbeddingCache_PrecomputeUsesText(t *testing.T) {
	embedder := newFakeEmbedder(nil)
	c := NewEmbeddingCache(embedder, 0)

	texts := map[string]string{
		"https://nasba.org/": "https://nasba.org/ CPA licensing boards",
		"https://www.irs.gov/": "https://www.irs.gov/ federal tax",
	}
	err := c.Precompute(context.Background(), []string{"https://nasba.org/", "https://www.irs.gov/"}, func(k string) string { return texts[k] })
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.callCount("https://nasba.org/ CPA licensing boards"))
	_, ok := c.Lookup("https://nasba.org/")
	assert.True(t, ok)

	// already cached keys are skipped
	require.NoError(t, c.Precompute(context.Background(), []string{"https://nasba.org/"}, nil))
	assert.Equal(t, 2, embedder.totalCalls())
}

func TestEmbeddingCache_PrecomputeIsAllOrNothing(t *testing.T) {
	embedder := newFakeEmbedder(nil)
	c := NewEmbeddingCache(embedder, 0)
	ctx := context.Background()

	require.NoError(t, c.Precompute(ctx, []string{"https://a.test/"}, nil))

	embedder.failTexts = map[string]error{"https://c.test/": errors.New("quota exceeded")}
	err := c.Precompute(ctx, []string{"https://a.test/", "https://b.test/", "https://c.test/"}, nil)
	require.Error(t, err)

	_, ok := c.Lookup("https://a.test/")
	assert.True(t, ok, "previous pages stay pinned after a failed reload")

	embedder.failTexts = nil
	require.NoError(t, c.Precompute(ctx, []string{"https://b.test/", "https://c.test/"}, nil))
	for _, key := range []string{"https://b.test/", "https://c.test/"} {
		_, ok := c.Lookup(key)
		assert.True(t, ok, key)
	}
}

func TestEmbeddingCache_PagesSurviveQueryEviction(t *testing.T) {
	embedder := newFakeEmbedder(nil)
	c := NewEmbeddingCache(embedder, 1)
	ctx := context.Background()

	pages := []string{"https://a.test/", "https://b.test/"}
	require.NoError(t, c.Precompute(ctx, pages, nil))

	for _, q := range []string{"q1", "q2", "q3"} {
		_, err := c.GetOrCompute(ctx, q)
		require.NoError(t, err)
	}

	for _, p := range pages {
		_, ok := c.Lookup(p)
		assert.True(t, ok, p)
	}
	_, ok := c.Lookup("q1")
	assert.False(t, ok, "queries are evicted")
}

// blockingEmbedder waits for release and records whether the context it saw was live.
type blockingEmbedder struct {
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (b *blockingEmbedder) Embed(ctx context.Context, _ string) (Embedding, error) {
	close(b.started)
	<-b.release
	b.ctxErr = ctx.Err()
	return Embedding{1, 2, 3}, nil
}

func TestEmbeddingCache_CallerCancelDoesNotAbortSharedCall(t *testing.T) {
	embedder := &blockingEmbedder{started: make(chan struct{}), release: make(chan struct{})}
	c := NewEmbeddingCache(embedder, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(ctx, "shared question")
		errc <- err
	}()

	<-embedder.started
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(embedder.release)
	v, err := c.GetOrCompute(context.Background(), "shared question")
	require.NoError(t, err)
	assert.Equal(t, Embedding{1, 2, 3}, v)
	assert.NoError(t, embedder.ctxErr)
}
