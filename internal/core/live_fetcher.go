package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"kcglobed.com/finance-chatbot/internal/cache"
	"kcglobed.com/finance-chatbot/internal/config"
	"kcglobed.com/finance-chatbot/internal/utils"
)

const (
	DefaultLiveTopN        = 5
	DefaultLiveConcurrency = 3
)

type LiveFetcherConfig struct {
	TopN        int
	Concurrency int
	// RequestsPerSecond caps page fetches across all replies; zero disables the limit.
	RequestsPerSecond float64
	// Timeout bounds each page read; zero means no per-page deadline.
	Timeout   time.Duration
	CacheSize int
}

// LiveFetcher looks a query up on the configured live pages, most relevant first.
type LiveFetcher struct {
	embeddings *EmbeddingCache
	reader     PageReader
	answers    *cache.LRU[string]
	limiter    *rate.Limiter
	cfg        LiveFetcherConfig
}

func NewLiveFetcher(embeddings *EmbeddingCache, reader PageReader, cfg LiveFetcherConfig) *LiveFetcher {
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultLiveTopN
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultLiveConcurrency
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &LiveFetcher{
		embeddings: embeddings,
		reader:     reader,
		answers:    cache.NewLRU[string](cfg.CacheSize),
		limiter:    rate.NewLimiter(limit, cfg.Concurrency),
		cfg:        cfg,
	}
}

// FetchLiveAnswer returns the answer from the best-ranked page that has one.
// It never fails: every error degrades to no answer.
func (f *LiveFetcher) FetchLiveAnswer(ctx context.Context, query string, urls []string) (string, bool) {
	if answer, ok := f.answers.Get(query); ok {
		config.Debugf("Live answer cache hit for %q", query)
		return answer, true
	}
	if len(urls) == 0 {
		return "", false
	}

	queryEmb, err := f.embeddings.GetOrCompute(ctx, query)
	if err != nil {
		log.Printf("Live fetch skipped, could not embed query: %v", err)
		return "", false
	}

	ranked := utils.RankBySimilarity(queryEmb, urls, f.embeddings.Lookup, f.cfg.TopN)

	results := make([]string, len(ranked))
	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for i, candidate := range ranked {
		g.Go(func() error {
			answer, err := f.readPage(ctx, candidate.Key, query)
			if err != nil {
				log.Printf("Error browsing %s: %v", candidate.Key, err)
				return nil
			}
			if answer == "" || strings.Contains(answer, NotFound) {
				config.Debugf("No live answer on %s (score %.3f)", candidate.Key, candidate.Score)
				return nil
			}
			results[i] = formatLiveAnswer(candidate.Key, answer)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r != "" {
			f.answers.Add(query, r)
			return r, true
		}
	}
	return "", false
}

func (f *LiveFetcher) readPage(ctx context.Context, url, query string) (string, error) {
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return f.reader.Read(ctx, url, query)
}

func formatLiveAnswer(url, answer string) string {
	return fmt.Sprintf(`Found on <a href="%s">%s</a><br/><pre>%s</pre>`, url, url, answer)
}
