// Package query answers point-in-time rate lookups and conversions
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sig-0/vedollar/storage"
	"github.com/sig-0/vedollar/storage/types"
)

// ErrNoData is returned when no observation exists at or before the requested time
var ErrNoData = errors.New("no data")

// Service is the read-only rate query service
type Service struct {
	storage storage.Storage
	now     func() time.Time
}

// New creates a new query service on top of the given storage
func New(storage storage.Storage) *Service {
	return &Service{
		storage: storage,
		now:     time.Now,
	}
}

// Latest returns the most recent observation at or before the given time.
// A zero time means now
func (s *Service) Latest(ctx context.Context, source types.Source, at time.Time) (*types.Observation, error) {
	if at.IsZero() {
		at = s.now()
	}

	o, err := s.storage.LatestAtOrBefore(ctx, source, at)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch latest rate: %w", err)
	}

	if o == nil {
		return nil, ErrNoData
	}

	return o, nil
}

// Convert converts the foreign currency amount into local currency units,
// using the latest rate at or before the given time (zero means now).
// Fractional local currency units are floored
func (s *Service) Convert(ctx context.Context, source types.Source, amount int64, at time.Time) (int64, error) {
	o, err := s.Latest(ctx, source, at)
	if err != nil {
		return 0, err
	}

	return Apply(amount, o.Rate), nil
}

// Apply computes floor(amount * rate / scale) for a fixed-point rate
func Apply(amount, rate int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(rate)).
		Shift(-4). // types.Scale
		Floor().
		IntPart()
}

// Series returns the ascending observations within [from, to].
// A zero to means now
func (s *Service) Series(ctx context.Context, source types.Source, from, to time.Time) ([]*types.Observation, error) {
	if to.IsZero() {
		to = s.now()
	}

	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: %s is before %s", to, from)
	}

	series, err := s.storage.Series(ctx, source, from, to)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch series: %w", err)
	}

	return series, nil
}
