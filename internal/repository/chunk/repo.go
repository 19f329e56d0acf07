// Package chunk stores indexed chunks as hashes behind an FT vector index
// (Redis 8 or Valkey with the search module).
package chunk

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/kailas-cloud/pdfrag/internal/db"
	"github.com/kailas-cloud/pdfrag/internal/domain"
	"github.com/kailas-cloud/pdfrag/internal/index"
)

var _ index.Index = (*Repo)(nil)

const (
	fieldContent  = "__content"
	fieldVector   = "__vector"
	fieldSourceID = "source_id"
	fieldSeq      = "seq"
	vectorAlias   = "vector"

	deletePage = 500
)

// DefaultPrefix namespaces chunk keys.
const DefaultPrefix = "pdfrag:chunk:"

// store is the consumer interface for the chunk index (ISP).
//
//nolint:interfacebloat // hash writes + FT management + search
type store interface {
	Ping(ctx context.Context) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	DelMulti(ctx context.Context, keys []string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements index.Index on top of FT.SEARCH.
type Repo struct {
	store  store
	dim    int
	prefix string
	hnsw   HNSWConfig
}

// New creates a chunk repository for vectors of dimension dim.
func New(s store, dim int) *Repo {
	return &Repo{store: s, dim: dim, prefix: DefaultPrefix, hnsw: HNSWConfig{M: 16, EFConstruct: 200}}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// WithPrefix overrides the key prefix (and therefore the index name).
func (r *Repo) WithPrefix(prefix string) *Repo {
	if prefix != "" {
		r.prefix = prefix
	}
	return r
}

// EnsureIndex creates the FT index unless it already exists.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def, err := r.indexDefinition()
	if err != nil {
		return err
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", def.Name, err)
	}
	return nil
}

func (r *Repo) indexDefinition() (*db.IndexDefinition, error) {
	def, err := db.NewIndex(r.indexName()).
		Prefix(r.prefix).
		Tag(fieldSourceID).
		Numeric(fieldSeq).
		Vector(fieldVector, vectorAlias, r.dim, db.DistanceCosine, db.HNSW(r.hnsw)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	return def, nil
}

// Upsert writes entries in one pipelined round-trip.
func (r *Repo) Upsert(ctx context.Context, entries []domain.IndexedEntry) error {
	if err := index.ValidateEntries(entries, r.dim); err != nil {
		return err //nolint:wrapcheck // already annotated
	}
	if len(entries) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(entries))
	for i := range entries {
		e := &entries[i]
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		items[i] = db.HashSetItem{
			Key: r.prefix + id,
			Fields: map[string]string{
				fieldContent:  e.Chunk.Text,
				fieldSourceID: e.Chunk.SourceID,
				fieldSeq:      strconv.Itoa(e.Chunk.SequenceIndex),
				fieldVector:   vectorToBytes(e.Vector),
			},
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("write %d chunks: %w", len(items), err)
	}
	return nil
}

// Query runs a KNN search and maps hits to scored chunks.
func (r *Repo) Query(ctx context.Context, vector domain.Vector, topK int) ([]domain.ScoredChunk, error) {
	if err := index.ValidateQuery(vector, topK, r.dim); err != nil {
		return nil, err //nolint:wrapcheck // already annotated
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            topK,
		ReturnFields: []string{fieldContent, fieldSourceID, fieldSeq},
	})
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}
	if sr == nil {
		return []domain.ScoredChunk{}, nil
	}

	hits := make([]domain.ScoredChunk, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		seq, _ := strconv.Atoi(e.Fields[fieldSeq])
		hits = append(hits, domain.ScoredChunk{
			Chunk: domain.Chunk{
				Text:          e.Fields[fieldContent],
				SourceID:      e.Fields[fieldSourceID],
				SequenceIndex: seq,
			},
			Score: e.Score,
		})
	}
	slices.SortStableFunc(hits, func(a, b domain.ScoredChunk) int { return cmp.Compare(b.Score, a.Score) })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// DeleteSource removes every chunk tagged with sourceID, a page at a time.
func (r *Repo) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	query := db.TagQuery(fieldSourceID, sourceID)
	removed := 0
	for {
		sr, err := r.store.SearchList(ctx, r.indexName(), query, 0, deletePage, []string{fieldSourceID})
		if err != nil {
			return removed, fmt.Errorf("list chunks of %s: %w", sourceID, err)
		}
		if sr == nil || len(sr.Entries) == 0 {
			return removed, nil
		}

		keys := make([]string, len(sr.Entries))
		for i, e := range sr.Entries {
			keys[i] = e.Key
		}
		if err := r.store.DelMulti(ctx, keys); err != nil {
			return removed, fmt.Errorf("delete chunks of %s: %w", sourceID, err)
		}
		removed += len(keys)

		if len(keys) < deletePage {
			return removed, nil
		}
	}
}

// Count returns the number of indexed chunks.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName(), "*")
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Ping checks store connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	return r.store.Ping(ctx) //nolint:wrapcheck // health probe
}

func (r *Repo) indexName() string {
	return r.prefix + "idx"
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
