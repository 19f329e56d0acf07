package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/pdfrag/internal/db"
	"github.com/kailas-cloud/pdfrag/internal/domain"
)

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_emb_cache_total"}, []string{"result"})
}

func TestEmbed_MissThenHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}, TotalTokens: 12}}
	kv := newMemKV()
	counter := newCounter()
	c := New(inner, kv, Config{Model: "nomic-embed-text", Dimensions: 3, TTL: time.Hour, CacheTotal: counter})

	first, err := c.Embed(context.Background(), "search_document: seven ships")
	require.NoError(t, err)
	assert.Equal(t, 12, first.TotalTokens)
	assert.Equal(t, time.Hour, kv.lastTTL)

	second, err := c.Embed(context.Background(), "search_document: seven ships")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, second.Embedding)
	assert.Zero(t, second.TotalTokens)
	assert.Len(t, inner.texts, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("hit")))
}

func TestEmbed_KeyScopedByModelAndDimensions(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2}}}
	kv := newMemKV()

	_, err := New(inner, kv, Config{Model: "nomic-embed-text", Dimensions: 2}).Embed(context.Background(), "q")
	require.NoError(t, err)
	_, err = New(inner, kv, Config{Model: "mxbai-embed-large", Dimensions: 2}).Embed(context.Background(), "q")
	require.NoError(t, err)

	require.Len(t, kv.data, 2)
	for k := range kv.data {
		assert.True(t, strings.HasPrefix(k, DefaultPrefix), k)
		assert.Contains(t, k, ":2:")
	}
	assert.Len(t, inner.texts, 2)
}

func TestEmbed_WrongLengthIsMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2, 3, 4}}}
	kv := newMemKV()
	c := New(inner, kv, Config{Model: "m", Dimensions: 4})
	kv.data[c.key("x")] = encodeVector([]float32{9, 9})

	res, err := c.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, res.Embedding, 4)
	assert.Len(t, inner.texts, 1)
}

func TestEmbed_CorruptEntryIsMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	kv := newMemKV()
	c := New(inner, kv, Config{Model: "m"})
	kv.data[c.key("x")] = []byte{1, 2, 3}

	_, err := c.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, inner.texts, 1)
}

func TestEmbed_StoreErrorsAreNotFatal(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2}}}
	kv := newMemKV()
	kv.getErr = &db.Error{Op: db.OpGet, Err: errors.New("conn reset")}
	kv.setErr = errors.New("READONLY You can't write against a read only replica")

	res, err := New(inner, kv, Config{Model: "m"}).Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, res.Embedding, 2)
}

func TestEmbed_ProviderErrorNotCached(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrEmbeddingService}
	kv := newMemKV()

	_, err := New(inner, kv, Config{Model: "m"}).Embed(context.Background(), "x")
	require.ErrorIs(t, err, domain.ErrEmbeddingService)
	assert.Empty(t, kv.data)
}

func TestEmbed_CustomPrefix(t *testing.T) {
	kv := newMemKV()
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	_, err := New(inner, kv, Config{Model: "m", Prefix: "test:emb:"}).Embed(context.Background(), "x")
	require.NoError(t, err)
	for k := range kv.data {
		assert.True(t, strings.HasPrefix(k, "test:emb:m:"), k)
	}
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1})
	assert.Error(t, err)
}
