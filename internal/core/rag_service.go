package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"kcglobed.com/finance-chatbot/internal/vector"
)

const (
	DefaultRetrievalTopK = 3
	// NoContextMarker fills the context slot when no source produced anything.
	NoContextMarker = "No external context available."
)

// Retriever runs semantic queries against named vector collections.
type Retriever struct {
	store      vector.Store
	embeddings *EmbeddingCache
}

func NewRetriever(store vector.Store, embeddings *EmbeddingCache) *Retriever {
	return &Retriever{store: store, embeddings: embeddings}
}

// Retrieve returns at most k documents from collection, most relevant first.
// Failures are logged and reported as no documents.
func (r *Retriever) Retrieve(ctx context.Context, collection, query string, k int) []vector.Document {
	if k <= 0 {
		k = DefaultRetrievalTopK
	}
	coll, err := r.store.GetOrCreateCollection(ctx, collection)
	if err != nil {
		log.Printf("Retrieval from %s failed: %v", collection, err)
		return nil
	}
	emb, err := r.embeddings.GetOrCompute(ctx, query)
	if err != nil {
		log.Printf("Retrieval from %s failed, could not embed query: %v", collection, err)
		return nil
	}
	docs, err := coll.Query(ctx, emb, k)
	if err != nil {
		log.Printf("Retrieval from %s failed: %v", collection, err)
		return nil
	}
	if len(docs) > k {
		docs = docs[:k]
	}
	return docs
}

// PageSource lists the live pages a query may be checked against.
type PageSource interface {
	URLs() []string
}

type ContextAssemblerConfig struct {
	BlogCollection     string
	PDFCollection      string
	TopK               int
	IncludeBlogContext bool
}

// ContextAssembler merges blog, PDF and live website lookups into one prompt block.
type ContextAssembler struct {
	retriever *Retriever
	live      *LiveFetcher
	pages     PageSource
	cfg       ContextAssemblerConfig
}

func NewContextAssembler(retriever *Retriever, live *LiveFetcher, pages PageSource, cfg ContextAssemblerConfig) *ContextAssembler {
	return &ContextAssembler{retriever: retriever, live: live, pages: pages, cfg: cfg}
}

// BuildContext queries every enabled source concurrently and joins the results
// in fixed order: blog, PDF, live website.
func (a *ContextAssembler) BuildContext(ctx context.Context, query string) string {
	var blog, pdf, live string

	var g errgroup.Group
	if a.cfg.IncludeBlogContext && a.cfg.BlogCollection != "" {
		g.Go(func() error {
			blog = formatBlogDocs(a.retriever.Retrieve(ctx, a.cfg.BlogCollection, query, a.cfg.TopK))
			return nil
		})
	}
	if a.cfg.PDFCollection != "" {
		g.Go(func() error {
			pdf = formatPDFDocs(a.retriever.Retrieve(ctx, a.cfg.PDFCollection, query, a.cfg.TopK))
			return nil
		})
	}
	if a.live != nil && a.pages != nil {
		g.Go(func() error {
			live, _ = a.live.FetchLiveAnswer(ctx, query, a.pages.URLs())
			return nil
		})
	}
	_ = g.Wait()

	var sections []string
	if blog != "" {
		sections = append(sections, "Blog context:\n"+blog)
	}
	if pdf != "" {
		sections = append(sections, "PDF context:\n"+pdf)
	}
	if live != "" {
		sections = append(sections, "Live website context:\n"+live)
	}
	if len(sections) == 0 {
		return NoContextMarker
	}
	return strings.Join(sections, "\n\n")
}

func formatBlogDocs(docs []vector.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, fmt.Sprintf("**%s**\n%s\n%s", metaString(d.Metadata, "title"), metaString(d.Metadata, "url"), d.Text))
	}
	return strings.Join(parts, "\n\n")
}

func formatPDFDocs(docs []vector.Document) string {
	parts := make([]string, 0, len(docs))
	for i, d := range docs {
		parts = append(parts, fmt.Sprintf("From PDF (chunk %d):\n%s", i+1, d.Text))
	}
	return strings.Join(parts, "\n\n")
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}
