package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"kcglobed.com/finance-chatbot/internal/api"
	"kcglobed.com/finance-chatbot/internal/config"
	"kcglobed.com/finance-chatbot/internal/core"
	"kcglobed.com/finance-chatbot/internal/pages"
	"kcglobed.com/finance-chatbot/internal/store"
	"kcglobed.com/finance-chatbot/internal/vector"
)

// llmProvider is what both Gemini and OpenAI-compatible backends offer.
type llmProvider interface {
	core.Embedder
	core.Completer
}

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	ingestFile := flag.String("ingest", "", "Ingest a plain-text file into a vector collection and exit")
	collection := flag.String("collection", cfg.PDFCollection, "Vector collection used with -ingest")
	initCatalog := flag.Bool("init-catalog", false, "Create missing catalog tables in DATABASE_URL and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *initCatalog {
		catalog, err := store.NewCatalogStore(cfg.DatabaseURL, false)
		if err != nil {
			log.Fatalf("Failed to open catalog database: %v", err)
		}
		defer catalog.Close()
		if err := catalog.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to create catalog schema: %v", err)
		}
		log.Printf("Catalog schema ready in %s. Exiting.", cfg.DatabaseURL)
		return
	}

	llm, closeLLM, err := newLLMProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM provider: %v", err)
	}
	defer closeLLM()

	vectors, err := newVectorStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize vector store: %v", err)
	}
	defer vectors.Close()

	if *ingestFile != "" {
		if !core.IsTextFile(*ingestFile) {
			log.Fatalf("Unsupported file type for ingestion: %s", *ingestFile)
		}
		log.Printf("Starting ingestion of %s into %s...", *ingestFile, *collection)
		n, err := core.NewIngestService(vectors, llm).IngestFile(ctx, *ingestFile, *collection)
		if err != nil {
			log.Fatalf("Data ingestion failed: %v", err)
		}
		log.Printf("Data ingestion complete. Ingested %d chunks. Exiting.", n)
		return
	}

	readiness := &api.Readiness{}

	catalog, err := store.NewCatalogStore(cfg.DatabaseURL, true)
	if err != nil {
		log.Fatalf("Failed to open catalog database: %v", err)
	}
	defer catalog.Close()
	readiness.SetDBConnected(true)

	history, closeHistory, err := newHistoryStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize history store: %v", err)
	}
	defer closeHistory()

	pageList, err := pages.Load(cfg.LivePagesFile)
	if err != nil {
		log.Fatalf("Failed to load live page list: %v", err)
	}
	livePages := pages.NewList(pageList)

	embeddings := core.NewEmbeddingCache(llm, cfg.EmbeddingCacheSize)
	log.Printf("Embedding %d live pages...", len(pageList))
	if err := embeddings.Precompute(ctx, livePages.URLs(), livePages.TextFor); err != nil {
		log.Fatalf("Failed to precompute page embeddings: %v", err)
	}
	readiness.SetEmbeddingsReady(true)

	if cfg.LivePagesFile != "" {
		err := pages.Watch(ctx, cfg.LivePagesFile, func(updated []pages.Page) {
			next := pages.NewList(updated)
			if err := embeddings.Precompute(ctx, next.URLs(), next.TextFor); err != nil {
				log.Printf("Keeping previous page list, embedding failed: %v", err)
				return
			}
			livePages.Set(updated)
		})
		if err != nil {
			log.Printf("Live page list will not be reloaded: %v", err)
		}
	}

	reader := core.NewWebPageReader(&http.Client{Timeout: 30 * time.Second}, embeddings, llm)
	live := core.NewLiveFetcher(embeddings, reader, core.LiveFetcherConfig{
		TopN:              cfg.LiveTopN,
		Concurrency:       cfg.LiveConcurrency,
		RequestsPerSecond: cfg.LiveFetchRPS,
		Timeout:           cfg.LiveFetchTimeout,
		CacheSize:         cfg.LiveCacheSize,
	})
	assembler := core.NewContextAssembler(core.NewRetriever(vectors, embeddings), live, livePages, core.ContextAssemblerConfig{
		BlogCollection:     cfg.BlogCollection,
		PDFCollection:      cfg.PDFCollection,
		TopK:               cfg.RetrievalTopK,
		IncludeBlogContext: cfg.IncludeBlogContext,
	})

	chatService := core.NewChatService(llm, assembler, core.NewToolRegistry(catalog), history, core.ChatServiceConfig{
		HistoryTokenBudget: cfg.HistoryTokenBudget,
		CompletionTimeout:  cfg.LLMTimeout,
	})

	router := api.NewRouter(api.NewAPIHandler(chatService, readiness), cfg.CORSAllowedOrigins)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute, // a reply may wait on live page reads and two completions
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		return
	}
	log.Println("Server exiting gracefully")
}

func newLLMProvider(ctx context.Context, cfg config.Config) (llmProvider, func(), error) {
	switch cfg.LLMProvider {
	case "openai":
		svc := core.NewOpenAIService(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ChatModel, cfg.EmbeddingModel, cfg.LLMTimeout)
		return svc, func() {}, nil
	default:
		svc, err := core.NewGeminiService(ctx, cfg.GeminiAPIKey, cfg.ChatModel, cfg.EmbeddingModel)
		if err != nil {
			return nil, nil, err
		}
		return svc, svc.Close, nil
	}
}

func newVectorStore(cfg config.Config) (vector.Store, error) {
	if cfg.QdrantHost == "" {
		log.Println("QDRANT_HOST not set, using in-memory vector store")
		return vector.NewMemoryStore(), nil
	}
	return vector.NewQdrantStore(vector.QdrantConfig{
		Host:       cfg.QdrantHost,
		Port:       cfg.QdrantPort,
		APIKey:     cfg.QdrantAPIKey,
		UseTLS:     cfg.QdrantUseTLS,
		VectorSize: uint64(max(cfg.EmbeddingDimensions, 0)),
	})
}

func newHistoryStore(cfg config.Config) (core.HistoryStore, func(), error) {
	if cfg.HistoryBackend != "sqlite" {
		return core.NewMemoryHistory(cfg.HistoryMaxMessages), func() {}, nil
	}
	db, err := store.NewSQLiteStore(cfg.HistoryDatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing history database: %v", err)
		}
	}
	return core.NewSQLiteHistory(db, cfg.HistoryMaxMessages), closeDB, nil
}
