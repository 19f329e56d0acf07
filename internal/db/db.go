// Package db defines the storage contracts shared by the chunk index, the run
// store and the embedding cache. internal/db/redis implements them on rueidis.
package db

import (
	"context"
	"time"
)

// Store is everything the redis and valkey drivers provide.
type Store interface {
	ChunkStore
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// HashSetItem is one chunk hash written by HSetMulti.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// ChunkStore holds chunk hashes and the FT index built over them.
//
//nolint:interfacebloat // hash writes + index lifecycle + search
type ChunkStore interface {
	Ping(ctx context.Context) error
	HSetMulti(ctx context.Context, items []HashSetItem) error
	DelMulti(ctx context.Context, keys []string) error
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// KVStore keeps opaque values such as run records and cached vectors.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
