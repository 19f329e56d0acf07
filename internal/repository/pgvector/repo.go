// Package pgvector stores indexed chunks in PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/pdfrag/internal/domain"
	"github.com/kailas-cloud/pdfrag/internal/index"
)

var (
	_ index.Index          = (*Repo)(nil)
	_ index.SourceReplacer = (*Repo)(nil)
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "pdfrag_chunks"

// pool is the subset of *pgxpool.Pool the repository needs.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Repo implements index.Index on a pgvector table.
type Repo struct {
	pool  pool
	dim   int
	table string // sanitized identifier
	name  string
	hnsw  bool
}

// Option configures a Repo.
type Option func(*Repo)

// WithTable overrides the table name.
func WithTable(name string) Option {
	return func(r *Repo) {
		if name != "" {
			r.name = name
			r.table = pgx.Identifier{name}.Sanitize()
		}
	}
}

// WithoutHNSW skips the HNSW index; queries fall back to a sequential scan.
func WithoutHNSW() Option {
	return func(r *Repo) { r.hnsw = false }
}

// New wraps an existing pool.
func New(p pool, dim int, opts ...Option) *Repo {
	r := &Repo{
		pool:  p,
		dim:   dim,
		name:  DefaultTable,
		table: pgx.Identifier{DefaultTable}.Sanitize(),
		hnsw:  true,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Connect opens a pgx pool for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}
	return p, nil
}

// EnsureSchema creates the extension, table and indexes if missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	content TEXT NOT NULL,
	embedding vector(%d) NOT NULL
)`, r.table, r.dim),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (source_id)",
			pgx.Identifier{r.name + "_source_idx"}.Sanitize(), r.table),
	}
	if r.hnsw {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)",
			pgx.Identifier{r.name + "_embedding_idx"}.Sanitize(), r.table))
	}

	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert inserts entries in one transaction.
func (r *Repo) Upsert(ctx context.Context, entries []domain.IndexedEntry) error {
	if err := index.ValidateEntries(entries, r.dim); err != nil {
		return err //nolint:wrapcheck // already annotated
	}
	if len(entries) == 0 {
		return nil
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return r.insert(ctx, tx, entries)
	})
}

// ReplaceSource deletes the rows of sourceID and inserts entries in one transaction.
func (r *Repo) ReplaceSource(ctx context.Context, sourceID string, entries []domain.IndexedEntry) (int, error) {
	if err := index.ValidateEntries(entries, r.dim); err != nil {
		return 0, err //nolint:wrapcheck // already annotated
	}
	var removed int
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE source_id = $1", r.table), sourceID)
		if err != nil {
			return fmt.Errorf("pgvector: delete source %s: %w", sourceID, err)
		}
		removed = int(tag.RowsAffected())
		return r.insert(ctx, tx, entries)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (r *Repo) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgvector: begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("pgvector: rollback failed: %w; original error: %w", rbErr, err)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("pgvector: commit: %w", commitErr)
		}
	}()
	return fn(tx)
}

func (r *Repo) insert(ctx context.Context, tx pgx.Tx, entries []domain.IndexedEntry) error {
	stmt := fmt.Sprintf(
		"INSERT INTO %s (id, source_id, seq, content, embedding) VALUES ($1, $2, $3, $4, $5)", r.table)
	for i := range entries {
		e := &entries[i]
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, stmt,
			id, e.Chunk.SourceID, e.Chunk.SequenceIndex, e.Chunk.Text, pgv.NewVector(e.Vector),
		); err != nil {
			return fmt.Errorf("pgvector: insert chunk %d of %s: %w", e.Chunk.SequenceIndex, e.Chunk.SourceID, err)
		}
	}
	return nil
}

// Query orders by cosine distance and converts it to similarity.
func (r *Repo) Query(ctx context.Context, vector domain.Vector, topK int) ([]domain.ScoredChunk, error) {
	if err := index.ValidateQuery(vector, topK, r.dim); err != nil {
		return nil, err //nolint:wrapcheck // already annotated
	}

	sql := fmt.Sprintf(`SELECT source_id, seq, content, 1 - (embedding <=> $1) AS score
FROM %s ORDER BY embedding <=> $1 ASC LIMIT $2`, r.table)

	rows, err := r.pool.Query(ctx, sql, pgv.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()

	hits := make([]domain.ScoredChunk, 0, topK)
	for rows.Next() {
		var h domain.ScoredChunk
		if err := rows.Scan(&h.Chunk.SourceID, &h.Chunk.SequenceIndex, &h.Chunk.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search rows: %w", err)
	}
	return hits, nil
}

// DeleteSource removes all rows of a source.
func (r *Repo) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	tag, err := r.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE source_id = $1", r.table), sourceID)
	if err != nil {
		return 0, fmt.Errorf("pgvector: delete source %s: %w", sourceID, err)
	}
	return int(tag.RowsAffected()), nil
}

// Count returns the number of rows.
func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", r.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgvector: count: %w", err)
	}
	return n, nil
}

// Ping checks database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pgvector: ping: %w", err)
	}
	return nil
}
