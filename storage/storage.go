package storage

import (
	"context"
	"time"

	"github.com/sig-0/vedollar/storage/types"
)

// Storage is an abstraction over the observed rate series
type Storage interface {
	// UpsertMany saves the given observations, ignoring the ones whose
	// (time, source) key is already stored
	UpsertMany(context.Context, []*types.Observation) error

	// SaveBatch upserts the batch observations and advances the source
	// metadata, as a single unit
	SaveBatch(context.Context, *types.Batch, time.Time) error

	// Cursor fetches the ingestion metadata for the source
	Cursor(context.Context, types.Source) (*types.Cursor, error)

	// SetCursor overwrites the ingestion metadata for the source
	SetCursor(context.Context, types.Source, *int64, time.Time) error

	// LatestAtOrBefore fetches the newest observation at or before the given time.
	// Returns nil if there is none
	LatestAtOrBefore(context.Context, types.Source, time.Time) (*types.Observation, error)

	// Series lists the source observations in [from, to], oldest first
	Series(context.Context, types.Source, time.Time, time.Time) ([]*types.Observation, error)

	// Clear removes all stored observations and metadata
	Clear(context.Context) error
}
