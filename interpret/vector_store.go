package interpret

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/nexo/guidelines"
)

type VectorStore interface {
	SimilarPassages(ctx context.Context, source guidelines.Source, embedding []float32, limit int) ([]Passage, error)
}

type PostgresVectorStore struct {
	pool *pgxpool.Pool
}

func NewPostgresVectorStore(pool *pgxpool.Pool) *PostgresVectorStore {
	return &PostgresVectorStore{pool: pool}
}

func (s *PostgresVectorStore) SimilarPassages(ctx context.Context, source guidelines.Source, embedding []float32, limit int) ([]Passage, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}
	if limit <= 0 {
		limit = defaultPassageLimit
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := limit * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT
            gp.id::text,
            gp.document_id::text,
            COALESCE(gd.title, ''),
            gp.topic,
            gp.content,
            (gp.embedding <-> $1::vector) AS distance
        FROM guideline_passages gp
        JOIN guideline_documents gd ON gd.id = gp.document_id
        WHERE gp.source = $2
        ORDER BY gp.embedding <-> $1::vector
        LIMIT $3
    `, pgvector.NewVector(embedding), source.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar passages: %w", err)
	}
	defer rows.Close()

	results := make([]Passage, 0, limit)
	for rows.Next() {
		var item Passage
		var distance float64
		if scanErr := rows.Scan(&item.ID, &item.DocumentID, &item.Title, &item.Topic, &item.Content, &distance); scanErr != nil {
			return nil, fmt.Errorf("scan similar passage: %w", scanErr)
		}
		item.Score = 1 / (1 + distance)
		results = append(results, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar passages: %w", err)
	}

	return results, nil
}

var _ VectorStore = (*PostgresVectorStore)(nil)
