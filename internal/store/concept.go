package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// ConceptStore is the Postgres relational half of the catalog.
type ConceptStore struct {
	db *pgxpool.Pool
}

func NewConceptStore(db *pgxpool.Pool) *ConceptStore {
	return &ConceptStore{db: db}
}

const conceptColumns = `c.id, c.label, c.essence, c.vector_ref, c.created_at, c.updated_at,
	COALESCE(ARRAY(SELECT v.variation FROM concept_variations v WHERE v.concept_id = c.id ORDER BY v.id), '{}')`

func scanConcept(row pgx.Row) (*domain.Concept, error) {
	c := &domain.Concept{}
	err := row.Scan(&c.ID, &c.Label, &c.Essence, &c.VectorRef, &c.CreatedAt, &c.UpdatedAt, &c.Variations)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if c.Variations == nil {
		c.Variations = []string{}
	}
	return c, nil
}

func (s *ConceptStore) CreateConcept(ctx context.Context, c *domain.Concept) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.VectorRef == "" {
		c.VectorRef = c.ID.String()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO concepts (id, label, essence, vector_ref)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		c.ID, c.Label, c.Essence, c.VectorRef,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	if c.Variations == nil {
		c.Variations = []string{}
	}
	return nil
}

func (s *ConceptStore) GetConcept(ctx context.Context, id uuid.UUID) (*domain.Concept, error) {
	return scanConcept(s.db.QueryRow(ctx,
		`SELECT `+conceptColumns+` FROM concepts c WHERE c.id = $1`, id))
}

func (s *ConceptStore) GetConceptByLabel(ctx context.Context, label string) (*domain.Concept, error) {
	return scanConcept(s.db.QueryRow(ctx,
		`SELECT `+conceptColumns+` FROM concepts c WHERE c.label = $1
		 ORDER BY c.created_at LIMIT 1`, label))
}

func (s *ConceptStore) ListConcepts(ctx context.Context, limit int) ([]domain.Concept, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+conceptColumns+` FROM concepts c ORDER BY c.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConcepts(rows)
}

func (s *ConceptStore) CountConcepts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM concepts`).Scan(&n)
	return n, err
}

func (s *ConceptStore) DeleteConcept(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM concepts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ConceptStore) AddVariation(ctx context.Context, id uuid.UUID, variation string) (bool, error) {
	var inserted bool
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM concepts WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO concept_variations (concept_id, variation) VALUES ($1, $2)
			 ON CONFLICT (concept_id, variation) DO NOTHING`, id, variation)
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected() > 0
		if inserted {
			_, err = tx.Exec(ctx, `UPDATE concepts SET updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
		}
		return err
	})
	return inserted, err
}

func (s *ConceptStore) LinkIdeaConcept(ctx context.Context, ideaID string, conceptID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO idea_concepts (idea_id, concept_id) VALUES ($1, $2)
		 ON CONFLICT (idea_id, concept_id) DO NOTHING`, ideaID, conceptID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, ErrNotFound
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *ConceptStore) ConceptsForIdea(ctx context.Context, ideaID string) ([]domain.Concept, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+conceptColumns+`
		 FROM concepts c JOIN idea_concepts ic ON ic.concept_id = c.id
		 WHERE ic.idea_id = $1
		 ORDER BY ic.created_at`, ideaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConcepts(rows)
}

func collectConcepts(rows pgx.Rows) ([]domain.Concept, error) {
	var out []domain.Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
