package mock

import (
	"context"
	"time"

	"github.com/sig-0/vedollar/storage/types"
)

type (
	UpsertManyDelegate       func(context.Context, []*types.Observation) error
	SaveBatchDelegate        func(context.Context, *types.Batch, time.Time) error
	CursorDelegate           func(context.Context, types.Source) (*types.Cursor, error)
	SetCursorDelegate        func(context.Context, types.Source, *int64, time.Time) error
	LatestAtOrBeforeDelegate func(context.Context, types.Source, time.Time) (*types.Observation, error)
	SeriesDelegate           func(context.Context, types.Source, time.Time, time.Time) ([]*types.Observation, error)
	ClearDelegate            func(context.Context) error
)

type Storage struct {
	UpsertManyFn       UpsertManyDelegate
	SaveBatchFn        SaveBatchDelegate
	CursorFn           CursorDelegate
	SetCursorFn        SetCursorDelegate
	LatestAtOrBeforeFn LatestAtOrBeforeDelegate
	SeriesFn           SeriesDelegate
	ClearFn            ClearDelegate
}

func (m *Storage) UpsertMany(ctx context.Context, observations []*types.Observation) error {
	if m.UpsertManyFn != nil {
		return m.UpsertManyFn(ctx, observations)
	}

	return nil
}

func (m *Storage) SaveBatch(ctx context.Context, batch *types.Batch, updatedAt time.Time) error {
	if m.SaveBatchFn != nil {
		return m.SaveBatchFn(ctx, batch, updatedAt)
	}

	return nil
}

func (m *Storage) Cursor(ctx context.Context, source types.Source) (*types.Cursor, error) {
	if m.CursorFn != nil {
		return m.CursorFn(ctx, source)
	}

	return &types.Cursor{}, nil
}

func (m *Storage) SetCursor(
	ctx context.Context,
	source types.Source,
	lastFetchedID *int64,
	updatedAt time.Time,
) error {
	if m.SetCursorFn != nil {
		return m.SetCursorFn(ctx, source, lastFetchedID, updatedAt)
	}

	return nil
}

func (m *Storage) LatestAtOrBefore(
	ctx context.Context,
	source types.Source,
	at time.Time,
) (*types.Observation, error) {
	if m.LatestAtOrBeforeFn != nil {
		return m.LatestAtOrBeforeFn(ctx, source, at)
	}

	return nil, nil
}

func (m *Storage) Series(
	ctx context.Context,
	source types.Source,
	from time.Time,
	to time.Time,
) ([]*types.Observation, error) {
	if m.SeriesFn != nil {
		return m.SeriesFn(ctx, source, from, to)
	}

	return nil, nil
}

func (m *Storage) Clear(ctx context.Context) error {
	if m.ClearFn != nil {
		return m.ClearFn(ctx)
	}

	return nil
}
