package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	ts, seq int64
	label   string
}

func (r fakeRow) OrderKey() (int64, int64) { return r.ts, r.seq }

func TestInsertKeepsOrderedByTsSeq(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "t", fakeRow{ts: 3, seq: 0, label: "c"}))
	require.NoError(t, s.Insert(ctx, "t", fakeRow{ts: 1, seq: 0, label: "a"}))
	require.NoError(t, s.Insert(ctx, "t", fakeRow{ts: 2, seq: 0, label: "b"}))

	rows, err := s.After(ctx, "t", 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].(fakeRow).label)
	assert.Equal(t, "b", rows[1].(fakeRow).label)
	assert.Equal(t, "c", rows[2].(fakeRow).label)
}

func TestAfterExcludesBoundaryAndRespectsLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.Insert(ctx, "t", fakeRow{ts: i, seq: 0}))
	}

	rows, err := s.After(ctx, "t", 2, 0, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0].(fakeRow).ts)
	assert.Equal(t, int64(4), rows[1].(fakeRow).ts)
}

func TestAfterBreaksTiesOnSeq(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "t", fakeRow{ts: 1, seq: 1}))
	require.NoError(t, s.Insert(ctx, "t", fakeRow{ts: 1, seq: 2}))

	rows, err := s.After(ctx, "t", 1, 1, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].(fakeRow).seq)
}

func TestLatestReturnsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.Insert(ctx, "t", fakeRow{ts: i, seq: 0}))
	}

	rows, err := s.Latest(ctx, "t", 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(5), rows[0].(fakeRow).ts)
	assert.Equal(t, int64(4), rows[1].(fakeRow).ts)
}

func TestLatestOnEmptyTable(t *testing.T) {
	s := NewMemoryStore()
	rows, err := s.Latest(context.Background(), "nope", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
