// Package storagetest contains the behavior suite every storage.Storage
// implementation is expected to pass
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/vedollar/storage"
	"github.com/sig-0/vedollar/storage/types"
)

// Factory creates a fresh, empty store for a single subtest
type Factory func(t *testing.T) storage.Storage

var vet = time.FixedZone("VET", -4*60*60)

func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, vet)
}

func obs(t time.Time, source types.Source, rate int64) *types.Observation {
	return &types.Observation{
		Time:   t,
		Source: source,
		Rate:   rate,
	}
}

func ptr(v int64) *int64 {
	return &v
}

// Run runs the storage suite
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("upsert is idempotent", func(t *testing.T) {
		t.Parallel()

		var (
			ctx   = context.Background()
			store = newStore(t)

			batch = []*types.Observation{
				obs(at(2024, 1, 3, 9), types.SourceParalelo, 400_000),
				obs(at(2024, 1, 3, 13), types.SourceParalelo, 410_000),
			}
		)

		require.NoError(t, store.UpsertMany(ctx, batch))
		require.NoError(t, store.UpsertMany(ctx, batch))

		series, err := store.Series(ctx, types.SourceParalelo, at(2024, 1, 1, 0), at(2024, 2, 1, 0))
		require.NoError(t, err)

		require.Len(t, series, 2)
		assert.Equal(t, int64(400_000), series[0].Rate)
		assert.Equal(t, int64(410_000), series[1].Rate)
	})

	t.Run("upsert never overwrites", func(t *testing.T) {
		t.Parallel()

		var (
			ctx   = context.Background()
			store = newStore(t)
		)

		require.NoError(t, store.UpsertMany(ctx, []*types.Observation{
			obs(at(2024, 1, 3, 9), types.SourceBCV, 360_000),
		}))

		// Partially overlapping, with a different value for the stored key
		require.NoError(t, store.UpsertMany(ctx, []*types.Observation{
			obs(at(2024, 1, 3, 9), types.SourceBCV, 999_999),
			obs(at(2024, 1, 4, 9), types.SourceBCV, 361_000),
		}))

		series, err := store.Series(ctx, types.SourceBCV, at(2024, 1, 1, 0), at(2024, 2, 1, 0))
		require.NoError(t, err)

		require.Len(t, series, 2)
		assert.Equal(t, int64(360_000), series[0].Rate)
		assert.Equal(t, int64(361_000), series[1].Rate)
	})

	t.Run("sources are partitioned", func(t *testing.T) {
		t.Parallel()

		var (
			ctx   = context.Background()
			store = newStore(t)
			ts    = at(2024, 1, 3, 9)
		)

		require.NoError(t, store.UpsertMany(ctx, []*types.Observation{
			obs(ts, types.SourceBCV, 360_000),
			obs(ts, types.SourceParalelo, 420_000),
		}))

		bcv, err := store.LatestAtOrBefore(ctx, types.SourceBCV, ts)
		require.NoError(t, err)
		require.NotNil(t, bcv)
		assert.Equal(t, int64(360_000), bcv.Rate)

		paralelo, err := store.LatestAtOrBefore(ctx, types.SourceParalelo, ts)
		require.NoError(t, err)
		require.NotNil(t, paralelo)
		assert.Equal(t, int64(420_000), paralelo.Rate)
	})

	t.Run("latest at or before", func(t *testing.T) {
		t.Parallel()

		var (
			ctx   = context.Background()
			store = newStore(t)

			t1 = at(2024, 1, 3, 9)
			t2 = at(2024, 1, 4, 9)
		)

		require.NoError(t, store.UpsertMany(ctx, []*types.Observation{
			obs(t1, types.SourceBCV, 100),
			obs(t2, types.SourceBCV, 200),
		}))

		// Before the first observation
		none, err := store.LatestAtOrBefore(ctx, types.SourceBCV, t1.Add(-time.Second))
		require.NoError(t, err)
		assert.Nil(t, none)

		// Exactly at, and between the observations
		for _, q := range []time.Time{t1, t1.Add(time.Hour), t2.Add(-time.Nanosecond)} {
			got, err := store.LatestAtOrBefore(ctx, types.SourceBCV, q)
			require.NoError(t, err)
			require.NotNil(t, got)

			assert.Equal(t, int64(100), got.Rate)
			assert.True(t, t1.Equal(got.Time))
			assert.Equal(t, types.SourceBCV, got.Source)
		}

		// At and after the second
		got, err := store.LatestAtOrBefore(ctx, types.SourceBCV, t2.Add(time.Hour*24*365))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(200), got.Rate)
	})

	t.Run("missing cursor defaults", func(t *testing.T) {
		t.Parallel()

		cur, err := newStore(t).Cursor(context.Background(), types.SourceParalelo)
		require.NoError(t, err)
		require.NotNil(t, cur)

		assert.Nil(t, cur.LastFetchedID)
		assert.True(t, cur.LastUpdate.IsZero())
	})

	t.Run("save batch advances cursor", func(t *testing.T) {
		t.Parallel()

		var (
			ctx       = context.Background()
			store     = newStore(t)
			updatedAt = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
		)

		require.NoError(t, store.SaveBatch(ctx, &types.Batch{
			Source:       types.SourceParalelo,
			Observations: []*types.Observation{obs(at(2024, 1, 3, 9), types.SourceParalelo, 400_000)},
			NewCursor:    ptr(1500),
		}, updatedAt))

		cur, err := store.Cursor(ctx, types.SourceParalelo)
		require.NoError(t, err)

		require.NotNil(t, cur.LastFetchedID)
		assert.Equal(t, int64(1500), *cur.LastFetchedID)
		assert.True(t, updatedAt.Equal(cur.LastUpdate))

		got, err := store.LatestAtOrBefore(ctx, types.SourceParalelo, at(2024, 1, 4, 0))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(400_000), got.Rate)
	})

	t.Run("save batch without candidate keeps cursor", func(t *testing.T) {
		t.Parallel()

		var (
			ctx   = context.Background()
			store = newStore(t)
			first = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
			next  = first.Add(time.Hour)
		)

		require.NoError(t, store.SaveBatch(ctx, &types.Batch{
			Source:    types.SourceParalelo,
			NewCursor: ptr(1500),
		}, first))

		require.NoError(t, store.SaveBatch(ctx, &types.Batch{
			Source:    types.SourceParalelo,
			NewCursor: nil,
		}, next))

		cur, err := store.Cursor(ctx, types.SourceParalelo)
		require.NoError(t, err)

		require.NotNil(t, cur.LastFetchedID)
		assert.Equal(t, int64(1500), *cur.LastFetchedID)
		assert.True(t, next.Equal(cur.LastUpdate))
	})

	t.Run("save batch never moves cursor back", func(t *testing.T) {
		t.Parallel()

		var (
			ctx   = context.Background()
			store = newStore(t)
			now   = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
		)

		require.NoError(t, store.SaveBatch(ctx, &types.Batch{
			Source:    types.SourceParalelo,
			NewCursor: ptr(1500),
		}, now))

		require.NoError(t, store.SaveBatch(ctx, &types.Batch{
			Source:    types.SourceParalelo,
			NewCursor: ptr(1200),
		}, now))

		cur, err := store.Cursor(ctx, types.SourceParalelo)
		require.NoError(t, err)

		require.NotNil(t, cur.LastFetchedID)
		assert.Equal(t, int64(1500), *cur.LastFetchedID)
	})

	t.Run("concurrent batches keep the highest cursor", func(t *testing.T) {
		t.Parallel()

		var (
			ctx   = context.Background()
			store = newStore(t)
			now   = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)

			wg   sync.WaitGroup
			errs = make(chan error, 20)
		)

		for id := int64(1); id <= 20; id++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				errs <- store.SaveBatch(ctx, &types.Batch{
					Source:    types.SourceParalelo,
					NewCursor: ptr(id),
				}, now)
			}()
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		cur, err := store.Cursor(ctx, types.SourceParalelo)
		require.NoError(t, err)

		require.NotNil(t, cur.LastFetchedID)
		assert.Equal(t, int64(20), *cur.LastFetchedID)
	})

	t.Run("non-positive rates are rejected", func(t *testing.T) {
		t.Parallel()

		var (
			ctx   = context.Background()
			store = newStore(t)
			ts    = at(2024, 1, 3, 9)
		)

		for _, rate := range []int64{0, -1} {
			assert.Error(t, store.UpsertMany(ctx, []*types.Observation{
				obs(ts, types.SourceBCV, 360_000),
				obs(ts.Add(time.Hour), types.SourceBCV, rate),
			}))

			assert.Error(t, store.SaveBatch(ctx, &types.Batch{
				Source:       types.SourceBCV,
				Observations: []*types.Observation{obs(ts, types.SourceBCV, rate)},
				NewCursor:    ptr(7),
			}, ts))
		}

		// Nothing of the rejected sets is stored
		got, err := store.LatestAtOrBefore(ctx, types.SourceBCV, ts.Add(time.Hour*24))
		require.NoError(t, err)
		assert.Nil(t, got)

		cur, err := store.Cursor(ctx, types.SourceBCV)
		require.NoError(t, err)
		assert.Nil(t, cur.LastFetchedID)
	})

	t.Run("set cursor overwrites", func(t *testing.T) {
		t.Parallel()

		var (
			ctx   = context.Background()
			store = newStore(t)
			now   = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
		)

		require.NoError(t, store.SetCursor(ctx, types.SourceParalelo, ptr(1500), now))
		require.NoError(t, store.SetCursor(ctx, types.SourceParalelo, ptr(10), now.Add(time.Hour)))

		cur, err := store.Cursor(ctx, types.SourceParalelo)
		require.NoError(t, err)

		require.NotNil(t, cur.LastFetchedID)
		assert.Equal(t, int64(10), *cur.LastFetchedID)
		assert.True(t, now.Add(time.Hour).Equal(cur.LastUpdate))

		// The other source is untouched
		other, err := store.Cursor(ctx, types.SourceBCV)
		require.NoError(t, err)
		assert.Nil(t, other.LastFetchedID)
	})

	t.Run("clear", func(t *testing.T) {
		t.Parallel()

		var (
			ctx   = context.Background()
			store = newStore(t)
			ts    = at(2024, 1, 3, 9)
		)

		require.NoError(t, store.SaveBatch(ctx, &types.Batch{
			Source:       types.SourceBCV,
			Observations: []*types.Observation{obs(ts, types.SourceBCV, 100)},
			NewCursor:    ptr(1),
		}, ts))

		require.NoError(t, store.Clear(ctx))

		got, err := store.LatestAtOrBefore(ctx, types.SourceBCV, ts)
		require.NoError(t, err)
		assert.Nil(t, got)

		cur, err := store.Cursor(ctx, types.SourceBCV)
		require.NoError(t, err)
		assert.Nil(t, cur.LastFetchedID)
	})
}
