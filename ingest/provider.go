package ingest

import (
	"context"
	"time"

	"github.com/sig-0/vedollar/storage/types"
)

// Provider is a single rate source provider
type Provider interface {
	// Name returns the human-readable name of the provider
	Name() string

	// Source returns the series the provider feeds
	Source() types.Source

	// Interval returns the interval at which the provider should be called
	Interval() time.Duration

	// Fetch is the provider's main fetch job, yielding the observations
	// newer than the given cursor. Fetch never persists anything
	Fetch(ctx context.Context, cursor *types.Cursor) (*types.Batch, error)
}
