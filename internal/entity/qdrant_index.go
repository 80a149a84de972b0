package entity

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantIndex implements Index over a Qdrant collection of entity
// embeddings, grounded on the same client-construction and Query shape
// used elsewhere in this corpus for similarity search.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	embed      func(ctx context.Context, text string) ([]float32, error)
}

// NewQdrantIndex dials Qdrant's gRPC API (default port 6334) and wraps
// collection for entity lookups. embed computes a query embedding for a
// canonicalized name; it is itself an external collaborator (an
// embedding model), passed in rather than hard-wired.
func NewQdrantIndex(dsn, collection string, embed func(ctx context.Context, text string) ([]float32, error)) (*QdrantIndex, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("entity: parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("entity: invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("entity: create qdrant client: %w", err)
	}
	return &QdrantIndex{client: client, collection: collection, embed: embed}, nil
}

func (q *QdrantIndex) Embed(ctx context.Context, name string) ([]float32, error) {
	return q.embed(ctx, name)
}

func (q *QdrantIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		k = 4
	}
	limit := uint64(k)
	result, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("entity: qdrant query: %w", err)
	}
	hits := make([]Hit, 0, len(result))
	for _, point := range result {
		hit := Hit{Score: float64(point.Score)}
		if payload := point.Payload; payload != nil {
			if v, ok := payload["code"]; ok {
				hit.Code = v.GetStringValue()
			}
			if v, ok := payload["name"]; ok {
				hit.Name = v.GetStringValue()
			}
			if v, ok := payload["market"]; ok {
				hit.Market = v.GetStringValue()
			}
			if v, ok := payload["delisted"]; ok {
				hit.Delisted = v.GetBoolValue()
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Close releases the underlying gRPC connection.
func (q *QdrantIndex) Close() error { return q.client.Close() }
