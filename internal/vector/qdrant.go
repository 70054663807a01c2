package vector

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	payloadDocument = "document"
	payloadSourceID = "source_id"
)

// qdrantAPI is the subset of *qdrant.Client the store uses.
type qdrantAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
	// VectorSize is used when a collection has to be created before any vector is known.
	// Zero defers creation to the first Add.
	VectorSize uint64
}

// QdrantStore keeps each collection in a Qdrant collection with cosine distance.
type QdrantStore struct {
	client     qdrantAPI
	vectorSize uint64

	mu      sync.Mutex
	created map[string]bool
}

func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	return newQdrantStore(client, cfg.VectorSize), nil
}

func newQdrantStore(client qdrantAPI, vectorSize uint64) *QdrantStore {
	return &QdrantStore{
		client:     client,
		vectorSize: vectorSize,
		created:    make(map[string]bool),
	}
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) GetOrCreateCollection(ctx context.Context, name string) (Collection, error) {
	if s.vectorSize > 0 {
		if err := s.ensure(ctx, name, s.vectorSize); err != nil {
			return nil, err
		}
	}
	return &qdrantCollection{store: s, name: name}, nil
}

func (s *QdrantStore) exists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	known := s.created[name]
	s.mu.Unlock()
	if known {
		return true, nil
	}

	ok, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if ok {
		s.mu.Lock()
		s.created[name] = true
		s.mu.Unlock()
	}
	return ok, nil
}

func (s *QdrantStore) ensure(ctx context.Context, name string, size uint64) error {
	ok, err := s.exists(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	log.Printf("Created qdrant collection %s (size %d)", name, size)

	s.mu.Lock()
	s.created[name] = true
	s.mu.Unlock()
	return nil
}

type qdrantCollection struct {
	store *QdrantStore
	name  string
}

func (c *qdrantCollection) Name() string { return c.name }

// PointID maps an arbitrary document id to the deterministic UUID Qdrant stores it under.
func PointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func (c *qdrantCollection) Add(ctx context.Context, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]any) error {
	if err := validateAdd(ids, documents, embeddings, metadatas); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := c.store.ensure(ctx, c.name, uint64(len(embeddings[0]))); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(ids))
	for i, id := range ids {
		payload := map[string]any{
			payloadDocument: documents[i],
			payloadSourceID: id,
		}
		if metadatas != nil {
			for k, v := range metadatas[i] {
				payload[k] = v
			}
		}
		values, err := qdrant.TryValueMap(payload)
		if err != nil {
			return fmt.Errorf("invalid metadata for %q: %w", id, err)
		}

		vec := make([]float32, len(embeddings[i]))
		copy(vec, embeddings[i])
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(id)),
			Vectors: qdrant.NewVectors(vec...),
			Payload: values,
		}
	}

	wait := true
	_, err := c.store.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", c.name, err)
	}
	return nil
}

func (c *qdrantCollection) Query(ctx context.Context, embedding []float32, k int) ([]Document, error) {
	if k <= 0 {
		return nil, nil
	}
	ok, err := c.store.exists(ctx, c.name)
	if err != nil {
		return nil, err
	}
	if !ok {
		// nothing has been added yet
		return nil, nil
	}

	limit := uint64(k)
	hits, err := c.store.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.name, err)
	}

	docs := make([]Document, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, hitToDocument(hit))
	}
	return docs, nil
}

func hitToDocument(hit *qdrant.ScoredPoint) Document {
	doc := Document{Score: hit.GetScore(), Metadata: map[string]any{}}
	for key, val := range hit.GetPayload() {
		switch key {
		case payloadDocument:
			doc.Text = val.GetStringValue()
		case payloadSourceID:
			doc.ID = val.GetStringValue()
		default:
			doc.Metadata[key] = payloadValue(val)
		}
	}
	if doc.ID == "" {
		doc.ID = hit.GetId().GetUuid()
	}
	return doc
}

func payloadValue(val *qdrant.Value) any {
	switch kind := val.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}
