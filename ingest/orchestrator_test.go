package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sig-0/vedollar/metrics"
	"github.com/sig-0/vedollar/storage/memory"
	"github.com/sig-0/vedollar/storage/mock"
	"github.com/sig-0/vedollar/storage/types"
)

const testProviderName = "test-provider"

func TestOrchestrator_New(t *testing.T) {
	t.Parallel()

	t.Run("default orchestrator", func(t *testing.T) {
		t.Parallel()

		o := New(&mock.Storage{})

		require.NotNil(t, o)

		assert.NotNil(t, o.storage)
		assert.NotNil(t, o.logger)
		assert.Equal(t, time.Second, o.queryInterval)
		assert.Equal(t, time.Second*10, o.retryDelay)
		assert.Nil(t, o.metrics)
	})

	t.Run("query interval", func(t *testing.T) {
		t.Parallel()

		o := New(&mock.Storage{}, WithQueryInterval(time.Minute))

		require.NotNil(t, o)
		assert.Equal(t, time.Minute, o.queryInterval)
	})

	t.Run("retry delay", func(t *testing.T) {
		t.Parallel()

		o := New(&mock.Storage{}, WithRetryDelay(time.Millisecond))

		require.NotNil(t, o)
		assert.Equal(t, time.Millisecond, o.retryDelay)
	})
}

func TestOrchestrator_Register(t *testing.T) {
	t.Parallel()

	t.Run("nil provider", func(t *testing.T) {
		t.Parallel()

		o := New(&mock.Storage{})

		assert.ErrorIs(t, o.Register(nil), errInvalidProvider)
	})

	t.Run("empty name", func(t *testing.T) {
		t.Parallel()

		var (
			o = New(&mock.Storage{})

			provider = &mockProvider{
				nameFn: func() string {
					return ""
				},
				intervalFn: func() time.Duration {
					return time.Hour
				},
			}
		)

		assert.ErrorIs(t, o.Register(provider), errInvalidProvider)
	})

	t.Run("zero interval", func(t *testing.T) {
		t.Parallel()

		var (
			o = New(&mock.Storage{})

			provider = &mockProvider{
				nameFn: func() string {
					return testProviderName
				},
				intervalFn: func() time.Duration {
					return 0
				},
			}
		)

		assert.ErrorIs(t, o.Register(provider), errInvalidInterval)
	})

	t.Run("negative interval", func(t *testing.T) {
		t.Parallel()

		var (
			o = New(&mock.Storage{})

			provider = &mockProvider{
				nameFn: func() string {
					return testProviderName
				},
				intervalFn: func() time.Duration {
					return -time.Hour
				},
			}
		)

		assert.ErrorIs(t, o.Register(provider), errInvalidInterval)
	})

	t.Run("valid provider", func(t *testing.T) {
		t.Parallel()

		var (
			o = New(&mock.Storage{})

			provider = &mockProvider{
				nameFn: func() string {
					return testProviderName
				},
				intervalFn: func() time.Duration {
					return time.Hour
				},
			}
		)

		require.NoError(t, o.Register(provider))

		// Verify provider was registered
		var count int

		o.registeredProviders.Range(
			func(_, _ any) bool {
				count++

				return true
			},
		)

		assert.Equal(t, 1, count)
	})

	t.Run("schedule provider", func(t *testing.T) {
		t.Parallel()

		var (
			o = New(&mock.Storage{})

			provider = &mockProvider{
				nameFn: func() string {
					return testProviderName
				},
				intervalFn: func() time.Duration {
					return time.Hour
				},
			}
		)

		require.NoError(t, o.Register(provider))
		assert.Equal(t, 1, o.q.Len())

		// The scheduled time should be in the past or now (immediate)
		scheduled := o.q.Index(0)
		assert.True(t, scheduled.at.Before(time.Now().Add(time.Second)))
	})
}

func int64Ptr(v int64) *int64 {
	return &v
}

func TestOrchestrator_RunOnce(t *testing.T) {
	t.Parallel()

	t.Run("no providers", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, New(&mock.Storage{}).RunOnce(context.Background()))
	})

	t.Run("cursor handed to the provider, batch saved", func(t *testing.T) {
		t.Parallel()

		var (
			storedCursor = &types.Cursor{
				LastFetchedID: int64Ptr(41),
			}

			observations = []*types.Observation{
				{
					Time:   time.Date(2024, time.May, 29, 13, 0, 0, 0, time.UTC),
					Source: types.SourceParalelo,
					Rate:   411_000,
				},
			}

			seenCursor *types.Cursor
			savedBatch *types.Batch

			storage = &mock.Storage{
				CursorFn: func(_ context.Context, source types.Source) (*types.Cursor, error) {
					assert.Equal(t, types.SourceParalelo, source)

					return storedCursor, nil
				},
				SaveBatchFn: func(_ context.Context, batch *types.Batch, _ time.Time) error {
					savedBatch = batch

					return nil
				},
			}

			provider = &mockProvider{
				nameFn: func() string {
					return testProviderName
				},
				sourceFn: func() types.Source {
					return types.SourceParalelo
				},
				intervalFn: func() time.Duration {
					return time.Hour
				},
				fetchFn: func(_ context.Context, cursor *types.Cursor) (*types.Batch, error) {
					seenCursor = cursor

					return &types.Batch{
						NewCursor:    int64Ptr(42),
						Observations: observations,
						Skipped:      1,
					}, nil
				},
			}

			o = New(storage)
		)

		require.NoError(t, o.Register(provider))
		require.NoError(t, o.RunOnce(context.Background()))

		assert.Same(t, storedCursor, seenCursor)

		require.NotNil(t, savedBatch)
		assert.Equal(t, types.SourceParalelo, savedBatch.Source)
		assert.Equal(t, int64(42), *savedBatch.NewCursor)
		assert.Equal(t, observations, savedBatch.Observations)
	})

	t.Run("failed fetch does not save", func(t *testing.T) {
		t.Parallel()

		var (
			fetchErr = errors.New("channel unavailable")
			saved    atomic.Bool

			storage = &mock.Storage{
				SaveBatchFn: func(_ context.Context, _ *types.Batch, _ time.Time) error {
					saved.Store(true)

					return nil
				},
			}

			provider = &mockProvider{
				nameFn: func() string {
					return testProviderName
				},
				intervalFn: func() time.Duration {
					return time.Hour
				},
				fetchFn: func(_ context.Context, _ *types.Cursor) (*types.Batch, error) {
					return nil, fetchErr
				},
			}

			o = New(storage)
		)

		require.NoError(t, o.Register(provider))

		assert.ErrorIs(t, o.RunOnce(context.Background()), fetchErr)
		assert.False(t, saved.Load())
	})

	t.Run("cursor read error", func(t *testing.T) {
		t.Parallel()

		var (
			cursorErr = errors.New("db down")
			fetched   atomic.Bool

			storage = &mock.Storage{
				CursorFn: func(_ context.Context, _ types.Source) (*types.Cursor, error) {
					return nil, cursorErr
				},
			}

			provider = &mockProvider{
				nameFn: func() string {
					return testProviderName
				},
				intervalFn: func() time.Duration {
					return time.Hour
				},
				fetchFn: func(_ context.Context, _ *types.Cursor) (*types.Batch, error) {
					fetched.Store(true)

					return &types.Batch{}, nil
				},
			}

			o = New(storage)
		)

		require.NoError(t, o.Register(provider))

		assert.ErrorIs(t, o.RunOnce(context.Background()), cursorErr)
		assert.False(t, fetched.Load())
	})

	t.Run("failed provider does not block the rest", func(t *testing.T) {
		t.Parallel()

		var (
			fetchErr = errors.New("index down")
			s        = memory.NewStorage()
			at       = time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC)

			providers = []*mockProvider{
				{
					nameFn: func() string {
						return "provider-1"
					},
					intervalFn: func() time.Duration {
						return time.Hour
					},
					fetchFn: func(_ context.Context, _ *types.Cursor) (*types.Batch, error) {
						return nil, fetchErr
					},
				},
				{
					nameFn: func() string {
						return "provider-2"
					},
					sourceFn: func() types.Source {
						return types.SourceParalelo
					},
					intervalFn: func() time.Duration {
						return time.Hour
					},
					fetchFn: func(_ context.Context, _ *types.Cursor) (*types.Batch, error) {
						return &types.Batch{
							NewCursor: int64Ptr(7),
							Observations: []*types.Observation{
								{Time: at, Source: types.SourceParalelo, Rate: 670_800},
							},
						}, nil
					},
				},
			}

			o = New(s)
		)

		for _, p := range providers {
			require.NoError(t, o.Register(p))
		}

		err := o.RunOnce(context.Background())
		require.ErrorIs(t, err, fetchErr)
		assert.Contains(t, err.Error(), "provider-1")

		latest, err := s.LatestAtOrBefore(context.Background(), types.SourceParalelo, at)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, int64(670_800), latest.Rate)

		cursor, err := s.Cursor(context.Background(), types.SourceParalelo)
		require.NoError(t, err)
		require.NotNil(t, cursor.LastFetchedID)
		assert.Equal(t, int64(7), *cursor.LastFetchedID)
	})

	t.Run("metrics recorded", func(t *testing.T) {
		t.Parallel()

		var (
			m       = metrics.NewIngest(prometheus.NewRegistry())
			saveErr = errors.New("disk full")
			calls   atomic.Int32

			storage = &mock.Storage{
				SaveBatchFn: func(_ context.Context, _ *types.Batch, _ time.Time) error {
					if calls.Add(1) == 2 {
						return saveErr
					}

					return nil
				},
			}

			provider = &mockProvider{
				nameFn: func() string {
					return testProviderName
				},
				intervalFn: func() time.Duration {
					return time.Hour
				},
				fetchFn: func(_ context.Context, _ *types.Cursor) (*types.Batch, error) {
					return &types.Batch{
						Observations: []*types.Observation{{}, {}},
						Skipped:      3,
					}, nil
				},
			}

			o = New(storage, WithMetrics(m))
		)

		require.NoError(t, o.Register(provider))

		require.NoError(t, o.RunOnce(context.Background()))
		require.ErrorIs(t, o.RunOnce(context.Background()), saveErr)

		source := types.SourceBCV.String()

		assert.Equal(t, 2.0, testutil.ToFloat64(m.ObservationsTotal.WithLabelValues(source)))
		assert.Equal(t, 3.0, testutil.ToFloat64(m.SkippedTotal.WithLabelValues(source)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues(source, metrics.OutcomeSaved)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues(source, metrics.OutcomeSaveFailed)))
	})

	t.Run("ctx canceled", func(t *testing.T) {
		t.Parallel()

		var (
			fetched atomic.Bool

			provider = &mockProvider{
				nameFn: func() string {
					return testProviderName
				},
				intervalFn: func() time.Duration {
					return time.Hour
				},
				fetchFn: func(_ context.Context, _ *types.Cursor) (*types.Batch, error) {
					fetched.Store(true)

					return &types.Batch{}, nil
				},
			}

			o = New(&mock.Storage{})
		)

		require.NoError(t, o.Register(provider))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, o.RunOnce(ctx), context.Canceled)
		assert.False(t, fetched.Load())
	})
}

func TestOrchestrator_Start(t *testing.T) {
	t.Parallel()

	t.Run("ctx canceled", func(t *testing.T) {
		t.Parallel()

		var (
			o     = New(&mock.Storage{}, WithQueryInterval(time.Millisecond*10))
			errCh = make(chan error, 1)
		)

		ctx, cancel := context.WithCancel(context.Background())

		go func() {
			errCh <- o.Start(ctx)
		}()

		cancel()

		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("orchestrator did not shut down in time")
		}
	})

	t.Run("provider batch saved", func(t *testing.T) {
		t.Parallel()

		var (
			savedBatch *types.Batch
			saveDone   = make(chan struct{})

			expected = &types.Observation{
				Time:   time.Date(2021, time.October, 1, 0, 0, 0, 0, time.UTC),
				Source: types.SourceBCV,
				Rate:   41_795,
			}

			storage = &mock.Storage{
				SaveBatchFn: func(_ context.Context, batch *types.Batch, _ time.Time) error {
					savedBatch = batch

					close(saveDone)

					return nil
				},
			}

			provider = &mockProvider{
				nameFn: func() string {
					return testProviderName
				},
				intervalFn: func() time.Duration {
					return time.Hour
				},
				fetchFn: func(_ context.Context, _ *types.Cursor) (*types.Batch, error) {
					return &types.Batch{
						Observations: []*types.Observation{expected},
					}, nil
				},
			}
		)

		var (
			o     = New(storage, WithQueryInterval(time.Millisecond*10))
			errCh = make(chan error, 1)
		)

		require.NoError(t, o.Register(provider))

		ctx, cancel := context.WithCancel(context.Background())

		go func() {
			errCh <- o.Start(ctx)
		}()

		select {
		case <-saveDone:
			// Success
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for batch to be saved")
		}

		cancel()
		require.NoError(t, <-errCh)

		require.NotNil(t, savedBatch)
		require.Len(t, savedBatch.Observations, 1)
		assert.Equal(t, expected, savedBatch.Observations[0])
	})

	t.Run("reschedule provider (success)", func(t *testing.T) {
		t.Parallel()

		var (
			fetchCount atomic.Int32
			fetchDone  = make(chan struct{})
		)

		var (
			o = New(&mock.Storage{}, WithQueryInterval(time.Millisecond*10))

			provider = &mockProvider{
				nameFn: func() string {
					return testProviderName
				},
				intervalFn: func() time.Duration {
					return time.Millisecond * 50
				},
				fetchFn: func(_ context.Context, _ *types.Cursor) (*types.Batch, error) {
					if fetchCount.Add(1) == 2 {
						close(fetchDone)
					}

					return &types.Batch{}, nil
				},
			}
			errCh = make(chan error, 1)
		)

		require.NoError(t, o.Register(provider))

		ctx, cancel := context.WithCancel(context.Background())

		go func() {
			errCh <- o.Start(ctx)
		}()

		select {
		case <-fetchDone:
			// Success
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for reschedule")
		}

		cancel()
		require.NoError(t, <-errCh)

		assert.GreaterOrEqual(t, fetchCount.Load(), int32(2))
	})

	t.Run("retries on fetch error", func(t *testing.T) {
		t.Parallel()

		var (
			fetchCount atomic.Int32
			retryDone  = make(chan struct{})
		)

		var (
			provider = &mockProvider{
				nameFn: func() string {
					return testProviderName
				},
				intervalFn: func() time.Duration {
					return time.Hour
				},
				fetchFn: func(_ context.Context, _ *types.Cursor) (*types.Batch, error) {
					if fetchCount.Add(1) == 2 {
						close(retryDone)
					}

					return nil, errors.New("fetch error")
				},
			}

			o = New(
				&mock.Storage{},
				WithQueryInterval(time.Millisecond*10),
				WithRetryDelay(time.Millisecond*50),
			)

			errCh = make(chan error, 1)
		)

		require.NoError(t, o.Register(provider))

		ctx, cancel := context.WithCancel(context.Background())

		go func() {
			errCh <- o.Start(ctx)
		}()

		select {
		case <-retryDone:
			// Success
		case <-time.After(time.Second * 5):
			t.Fatal("timeout waiting for retry")
		}

		cancel()
		require.NoError(t, <-errCh)

		assert.GreaterOrEqual(t, fetchCount.Load(), int32(2))
	})

	t.Run("multiple providers", func(t *testing.T) {
		t.Parallel()

		var (
			savedBatches sync.Map
			saveCount    atomic.Int32
			allSaved     = make(chan struct{})
			errCh        = make(chan error, 1)

			storage = &mock.Storage{
				SaveBatchFn: func(_ context.Context, batch *types.Batch, _ time.Time) error {
					savedBatches.Store(batch.Source, batch)

					if saveCount.Add(1) == 2 {
						close(allSaved)
					}

					return nil
				},
			}
			providers = []*mockProvider{
				{
					nameFn: func() string {
						return "provider-1"
					},
					sourceFn: func() types.Source {
						return types.SourceBCV
					},
					intervalFn: func() time.Duration {
						return time.Hour
					},
				},
				{
					nameFn: func() string {
						return "provider-2"
					},
					sourceFn: func() types.Source {
						return types.SourceParalelo
					},
					intervalFn: func() time.Duration {
						return time.Hour
					},
				},
			}

			o = New(storage, WithQueryInterval(time.Millisecond*10))
		)

		for _, p := range providers {
			require.NoError(t, o.Register(p))
		}

		ctx, cancel := context.WithCancel(context.Background())

		go func() {
			errCh <- o.Start(ctx)
		}()

		select {
		case <-allSaved:
			// Success
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for providers")
		}

		cancel()
		require.NoError(t, <-errCh)

		_, ok1 := savedBatches.Load(types.SourceBCV)
		_, ok2 := savedBatches.Load(types.SourceParalelo)

		assert.True(t, ok1, "BCV batch should be saved")
		assert.True(t, ok2, "paralelo batch should be saved")
	})

	t.Run("storage save error is retried", func(t *testing.T) {
		t.Parallel()

		var (
			saveAttempts atomic.Int32
			savesDone    = make(chan struct{})
			errCh        = make(chan error, 1)

			storage = &mock.Storage{
				SaveBatchFn: func(_ context.Context, _ *types.Batch, _ time.Time) error {
					if saveAttempts.Add(1) == 2 {
						close(savesDone)
					}

					return errors.New("storage error")
				},
			}
			provider = &mockProvider{
				nameFn: func() string {
					return testProviderName
				},
				intervalFn: func() time.Duration {
					return time.Hour
				},
			}

			o = New(
				storage,
				WithQueryInterval(time.Millisecond*10),
				WithRetryDelay(time.Millisecond*50),
			)
		)

		require.NoError(t, o.Register(provider))

		ctx, cancel := context.WithCancel(context.Background())

		go func() {
			errCh <- o.Start(ctx)
		}()

		select {
		case <-savesDone:
			// Success
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for save attempts")
		}

		cancel()
		require.NoError(t, <-errCh)
	})
}
