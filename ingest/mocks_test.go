package ingest

import (
	"context"
	"time"

	"github.com/sig-0/vedollar/storage/types"
)

type (
	nameDelegate     func() string
	sourceDelegate   func() types.Source
	intervalDelegate func() time.Duration
	fetchDelegate    func(context.Context, *types.Cursor) (*types.Batch, error)
)

type mockProvider struct {
	nameFn     nameDelegate
	sourceFn   sourceDelegate
	intervalFn intervalDelegate
	fetchFn    fetchDelegate
}

func (m *mockProvider) Name() string {
	if m.nameFn != nil {
		return m.nameFn()
	}

	return ""
}

func (m *mockProvider) Source() types.Source {
	if m.sourceFn != nil {
		return m.sourceFn()
	}

	return types.SourceBCV
}

func (m *mockProvider) Interval() time.Duration {
	if m.intervalFn != nil {
		return m.intervalFn()
	}

	return 0
}

func (m *mockProvider) Fetch(ctx context.Context, cursor *types.Cursor) (*types.Batch, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, cursor)
	}

	return &types.Batch{}, nil
}
