package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS concepts (
	id          TEXT PRIMARY KEY,
	label       TEXT NOT NULL,
	essence     TEXT NOT NULL DEFAULT '',
	vector_ref  TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_concepts_label ON concepts (label);

CREATE TABLE IF NOT EXISTS concept_variations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	concept_id  TEXT NOT NULL REFERENCES concepts (id) ON DELETE CASCADE,
	variation   TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	UNIQUE (concept_id, variation)
);
CREATE INDEX IF NOT EXISTS idx_concept_variations_concept_id ON concept_variations (concept_id);

CREATE TABLE IF NOT EXISTS idea_concepts (
	idea_id     TEXT NOT NULL,
	concept_id  TEXT NOT NULL REFERENCES concepts (id) ON DELETE CASCADE,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (idea_id, concept_id)
);
CREATE INDEX IF NOT EXISTS idx_idea_concepts_idea_id ON idea_concepts (idea_id);
CREATE INDEX IF NOT EXISTS idx_idea_concepts_concept_id ON idea_concepts (concept_id);

CREATE TABLE IF NOT EXISTS concept_vectors (
	id          TEXT PRIMARY KEY,
	embedding   BLOB NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  TEXT NOT NULL
);
`

// OpenSQLite opens (creating if needed) the local catalog database and
// applies its schema.
func OpenSQLite(path string) (*sqlx.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps modernc sqlite free of SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return db, nil
}

// sqliteTimeLayout is fixed width so text timestamps sort chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func nowText() string {
	return time.Now().UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type conceptRow struct {
	ID        string `db:"id"`
	Label     string `db:"label"`
	Essence   string `db:"essence"`
	VectorRef string `db:"vector_ref"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func (r conceptRow) toDomain() (domain.Concept, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return domain.Concept{}, fmt.Errorf("concept id %q: %w", r.ID, err)
	}
	return domain.Concept{
		ID:         id,
		Label:      r.Label,
		Essence:    r.Essence,
		VectorRef:  r.VectorRef,
		Variations: []string{},
		CreatedAt:  parseTime(r.CreatedAt),
		UpdatedAt:  parseTime(r.UpdatedAt),
	}, nil
}

// SQLiteConceptStore is the local relational half of the catalog.
type SQLiteConceptStore struct {
	db *sqlx.DB
}

func NewSQLiteConceptStore(db *sqlx.DB) *SQLiteConceptStore {
	return &SQLiteConceptStore{db: db}
}

func (s *SQLiteConceptStore) CreateConcept(ctx context.Context, c *domain.Concept) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.VectorRef == "" {
		c.VectorRef = c.ID.String()
	}
	now := nowText()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO concepts (id, label, essence, vector_ref, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Label, c.Essence, c.VectorRef, now, now)
	if err != nil {
		return err
	}
	c.CreatedAt = parseTime(now)
	c.UpdatedAt = c.CreatedAt
	if c.Variations == nil {
		c.Variations = []string{}
	}
	return nil
}

func (s *SQLiteConceptStore) GetConcept(ctx context.Context, id uuid.UUID) (*domain.Concept, error) {
	var row conceptRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM concepts WHERE id = ?`, id.String())
	return s.one(ctx, row, err)
}

func (s *SQLiteConceptStore) GetConceptByLabel(ctx context.Context, label string) (*domain.Concept, error) {
	var row conceptRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM concepts WHERE label = ? ORDER BY created_at LIMIT 1`, label)
	return s.one(ctx, row, err)
}

func (s *SQLiteConceptStore) one(ctx context.Context, row conceptRow, err error) (*domain.Concept, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out, err := s.hydrate(ctx, []conceptRow{row})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (s *SQLiteConceptStore) ListConcepts(ctx context.Context, limit int) ([]domain.Concept, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []conceptRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM concepts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit); err != nil {
		return nil, err
	}
	return s.hydrate(ctx, rows)
}

func (s *SQLiteConceptStore) CountConcepts(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM concepts`)
	return n, err
}

func (s *SQLiteConceptStore) DeleteConcept(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM concepts WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteConceptStore) AddVariation(ctx context.Context, id uuid.UUID, variation string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM concepts WHERE id = ?`, id.String()); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, ErrNotFound
	}

	now := nowText()
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO concept_variations (concept_id, variation, created_at) VALUES (?, ?, ?)`,
		id.String(), variation, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE concepts SET updated_at = ? WHERE id = ?`, now, id.String()); err != nil {
			return false, err
		}
	}
	return n > 0, tx.Commit()
}

func (s *SQLiteConceptStore) LinkIdeaConcept(ctx context.Context, ideaID string, conceptID uuid.UUID) (bool, error) {
	var exists int
	if err := s.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM concepts WHERE id = ?`, conceptID.String()); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, ErrNotFound
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO idea_concepts (idea_id, concept_id, created_at) VALUES (?, ?, ?)`,
		ideaID, conceptID.String(), nowText())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteConceptStore) ConceptsForIdea(ctx context.Context, ideaID string) ([]domain.Concept, error) {
	var rows []conceptRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT c.* FROM concepts c JOIN idea_concepts ic ON ic.concept_id = c.id
		 WHERE ic.idea_id = ? ORDER BY ic.created_at, ic.rowid`, ideaID); err != nil {
		return nil, err
	}
	return s.hydrate(ctx, rows)
}

// hydrate converts rows and attaches their variations in one query.
func (s *SQLiteConceptStore) hydrate(ctx context.Context, rows []conceptRow) ([]domain.Concept, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]domain.Concept, 0, len(rows))
	index := make(map[string]int, len(rows))
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		c, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		index[r.ID] = len(out)
		ids = append(ids, r.ID)
		out = append(out, c)
	}

	query, args, err := sqlx.In(
		`SELECT concept_id, variation FROM concept_variations WHERE concept_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	var vars []struct {
		ConceptID string `db:"concept_id"`
		Variation string `db:"variation"`
	}
	if err := s.db.SelectContext(ctx, &vars, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, v := range vars {
		i := index[v.ConceptID]
		out[i].Variations = append(out[i].Variations, v.Variation)
	}
	return out, nil
}

// SQLiteVectorIndex keeps vectors as little-endian float32 blobs and answers
// queries with an exact L2 scan.
type SQLiteVectorIndex struct {
	db *sqlx.DB
}

func NewSQLiteVectorIndex(db *sqlx.DB) *SQLiteVectorIndex {
	return &SQLiteVectorIndex{db: db}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func (s *SQLiteVectorIndex) Add(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO concept_vectors (id, embedding, metadata, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET embedding = excluded.embedding, metadata = excluded.metadata`,
		id, encodeVector(vector), string(meta), nowText())
	return err
}

func (s *SQLiteVectorIndex) Query(ctx context.Context, vector []float32, nResults int) ([]domain.VectorHit, error) {
	if nResults <= 0 {
		nResults = 1
	}
	var rows []struct {
		ID        string `db:"id"`
		Embedding []byte `db:"embedding"`
		Metadata  string `db:"metadata"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, embedding, metadata FROM concept_vectors`); err != nil {
		return nil, fmt.Errorf("vector scan: %w", err)
	}

	hits := make([]domain.VectorHit, 0, len(rows))
	for _, r := range rows {
		stored := decodeVector(r.Embedding)
		if len(stored) != len(vector) {
			continue
		}
		h := domain.VectorHit{ID: r.ID, Distance: domain.EuclideanDistance(vector, stored)}
		if r.Metadata != "" {
			_ = json.Unmarshal([]byte(r.Metadata), &h.Metadata)
		}
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > nResults {
		hits = hits[:nResults]
	}
	return hits, nil
}

func (s *SQLiteVectorIndex) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM concept_vectors WHERE id = ?`, id)
	return err
}

func (s *SQLiteVectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM concept_vectors`)
	return n, err
}
