package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/vedollar/storage"
	"github.com/sig-0/vedollar/storage/storagetest"
	"github.com/sig-0/vedollar/storage/types"
)

func TestStorage(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, func(_ *testing.T) storage.Storage {
		return NewStorage()
	})
}

func TestStorage_InvalidRate(t *testing.T) {
	t.Parallel()

	var (
		ctx   = context.Background()
		store = NewStorage()
		ts    = time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	)

	err := store.UpsertMany(ctx, []*types.Observation{
		{Time: ts, Source: types.SourceBCV, Rate: 0},
	})
	assert.ErrorIs(t, err, errInvalidRate)

	err = store.SaveBatch(ctx, &types.Batch{
		Source:       types.SourceBCV,
		Observations: []*types.Observation{{Time: ts, Source: types.SourceBCV, Rate: -10}},
	}, ts)
	assert.ErrorIs(t, err, errInvalidRate)

	// The rejected batch leaves no metadata behind
	cur, err := store.Cursor(ctx, types.SourceBCV)
	require.NoError(t, err)
	assert.True(t, cur.LastUpdate.IsZero())
}
