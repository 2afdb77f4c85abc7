package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// VectorIndex stores concept vectors in pgvector and ranks by L2 distance.
type VectorIndex struct {
	db *pgxpool.Pool
}

func NewVectorIndex(db *pgxpool.Pool) *VectorIndex {
	return &VectorIndex{db: db}
}

func (s *VectorIndex) Add(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	if len(vector) != domain.EmbeddingDimensions {
		return fmt.Errorf("vector has %d dimensions, want %d", len(vector), domain.EmbeddingDimensions)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal vector metadata: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO concept_vectors (id, embedding, metadata) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`,
		id, pgvector.NewVector(vector), meta)
	return err
}

func (s *VectorIndex) Query(ctx context.Context, vector []float32, nResults int) ([]domain.VectorHit, error) {
	if nResults <= 0 {
		nResults = 1
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, embedding <-> $1 AS distance, metadata
		 FROM concept_vectors
		 ORDER BY embedding <-> $1
		 LIMIT $2`,
		pgvector.NewVector(vector), nResults)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	var hits []domain.VectorHit
	for rows.Next() {
		var h domain.VectorHit
		var meta []byte
		if err := rows.Scan(&h.ID, &h.Distance, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &h.Metadata)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *VectorIndex) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM concept_vectors WHERE id = $1`, id)
	return err
}

func (s *VectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM concept_vectors`).Scan(&n)
	return n, err
}
