package vector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/hyperjump/lumi/internal/models"
)

const defaultPGVectorTable = "document_vectors"

// PGVectorIndex stores vectors in a PostgreSQL table with a pgvector column and searches
// with the cosine distance operator.
type PGVectorIndex struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
}

// PGVectorOption configures a PGVectorIndex.
type PGVectorOption func(*PGVectorIndex)

// WithTable overrides the vector table name.
func WithTable(name string) PGVectorOption {
	return func(p *PGVectorIndex) { p.table = name }
}

// NewPGVectorIndex connects to dsn, creates the pgvector extension and table when missing,
// and returns the index.
func NewPGVectorIndex(ctx context.Context, dsn string, dimensions int, opts ...PGVectorOption) (*PGVectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	p := &PGVectorIndex{table: defaultPGVectorTable, dimensions: dimensions}
	for _, opt := range opts {
		opt(p)
	}

	// The extension must exist before pool connections register the vector type.
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("create vector extension: %w", err)
	}
	_ = conn.Close(ctx)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, c)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	p.pool = pool

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		embedding vector(%d) NOT NULL
	)`, p.ident(), dimensions)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create vector table: %w", err)
	}
	return p, nil
}

func (p *PGVectorIndex) ident() string {
	return pgx.Identifier{p.table}.Sanitize()
}

// Type returns the index type identifier.
func (p *PGVectorIndex) Type() string {
	return string(IndexTypePGVector)
}

// Add upserts vectors in a single batch.
func (p *PGVectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (id, embedding) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding`, p.ident())
	batch := &pgx.Batch{}
	for i, id := range ids {
		if len(vectors[i]) != p.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), p.dimensions)
		}
		batch.Queue(stmt, id, pgvector.NewVector(vectors[i]))
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	return nil
}

// Search orders by cosine distance and reports similarity as 1 - distance.
func (p *PGVectorIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != p.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), p.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT id, 1 - (embedding <=> $1) AS score FROM %s ORDER BY embedding <=> $1, id LIMIT $2`, p.ident())
	rows, err := p.pool.Query(ctx, q, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("%w: pgvector query: %v", models.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var out []*VectorResult
	for rows.Next() {
		r := &VectorResult{}
		if err := rows.Scan(&r.ID, &r.Score); err != nil {
			return nil, fmt.Errorf("%w: scan pgvector row: %v", models.ErrIndexUnavailable, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: pgvector rows: %v", models.ErrIndexUnavailable, err)
	}
	// A nearest-neighbour query only comes back empty when the table is.
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: vector table %s is empty", models.ErrIndexUnavailable, p.table)
	}
	return out, nil
}

// Remove deletes vectors by ID.
func (p *PGVectorIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, p.ident()), ids)
	return err
}

// Size returns the number of stored vectors.
func (p *PGVectorIndex) Size(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, p.ident())).Scan(&n)
	return n, err
}

// Close closes the connection pool.
func (p *PGVectorIndex) Close() error {
	p.pool.Close()
	return nil
}
