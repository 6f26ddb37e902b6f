// Package retrieval serves vector similarity search over the filing_chunks
// table with pgvector.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"filings-rag-be/pkg/embedding"
	"filings-rag-be/pkg/rag/port"
)

// searchSQL ranks by cosine distance; the score is cosine similarity.
const searchSQL = `SELECT id::text, content, metadata, 1 - (embedding <=> $1) AS score
FROM filing_chunks
WHERE collection = $2
ORDER BY embedding <=> $1
LIMIT $3`

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PgvectorRetriever struct {
	db       Querier
	embedder embedding.EmbeddingProvider
}

var _ port.Retriever = (*PgvectorRetriever)(nil)

func NewPgvectorRetriever(db Querier, embedder embedding.EmbeddingProvider) (*PgvectorRetriever, error) {
	if db == nil || embedder == nil {
		return nil, errors.New("retrieval: database and embedder are required")
	}
	return &PgvectorRetriever{db: db, embedder: embedder}, nil
}

// NewPool opens a pgx pool for the search hot path.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping Postgres: %w", err)
	}
	return pool, nil
}

func (r *PgvectorRetriever) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return v, nil
}

// Search returns the topK nearest chunks of one collection as points whose
// payload carries page_content and metadata.
func (r *PgvectorRetriever) Search(ctx context.Context, emb []float32, collection port.Collection, topK int) (port.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	rows, err := r.db.Query(ctx, searchSQL, pgvector.NewVector(emb), string(collection), topK)
	if err != nil {
		return port.SearchResult{}, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	points := []port.Point{}
	for rows.Next() {
		var (
			id, content string
			rawMeta     []byte
			score       float64
		)
		if err := rows.Scan(&id, &content, &rawMeta, &score); err != nil {
			return port.SearchResult{}, fmt.Errorf("scan chunk: %w", err)
		}
		meta := map[string]interface{}{}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &meta); err != nil {
				return port.SearchResult{}, fmt.Errorf("decode metadata of chunk %s: %w", id, err)
			}
		}
		points = append(points, port.Point{
			ID:      id,
			Score:   score,
			Payload: map[string]interface{}{"page_content": content, "metadata": meta},
		})
	}
	if err := rows.Err(); err != nil {
		return port.SearchResult{}, fmt.Errorf("iterate chunks: %w", err)
	}
	return port.SearchResult{Points: points}, nil
}
