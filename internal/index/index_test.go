package index

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine(domain.Vector{1, 2, 3}, domain.Vector{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine(domain.Vector{1, 0}, domain.Vector{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine(domain.Vector{1, 0}, domain.Vector{-1, 0}), 1e-9)
	assert.Zero(t, Cosine(domain.Vector{0, 0}, domain.Vector{1, 1}))
}

func TestValidateEntries(t *testing.T) {
	ok := domain.IndexedEntry{Chunk: domain.Chunk{SourceID: "a"}, Vector: domain.Vector{1, 2}}
	require.NoError(t, ValidateEntries([]domain.IndexedEntry{ok}, 2))

	bad := domain.IndexedEntry{Chunk: domain.Chunk{SourceID: "a"}, Vector: domain.Vector{1}}
	err := ValidateEntries([]domain.IndexedEntry{ok, bad}, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	var dm *domain.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Want)
	assert.Equal(t, 1, dm.Got)

	noSource := domain.IndexedEntry{Vector: domain.Vector{1, 2}}
	assert.ErrorIs(t, ValidateEntries([]domain.IndexedEntry{noSource}, 2), domain.ErrInvalidArgument)
}

func TestValidateQuery(t *testing.T) {
	assert.NoError(t, ValidateQuery(domain.Vector{1, 2}, 1, 2))
	assert.ErrorIs(t, ValidateQuery(domain.Vector{1, 2}, 0, 2), domain.ErrInvalidArgument)
	assert.ErrorIs(t, ValidateQuery(domain.Vector{1}, 3, 2), domain.ErrDimensionMismatch)
}
