package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sig-0/vedollar/storage/types"
)

var errInvalidRate = errors.New("rate must be positive")

type key struct {
	source string
	at     int64 // unix nanos
}

type Storage struct {
	data    map[key]types.Observation
	cursors map[types.Source]types.Cursor

	mu sync.RWMutex
}

func NewStorage() *Storage {
	return &Storage{
		data:    make(map[key]types.Observation),
		cursors: make(map[types.Source]types.Cursor),
	}
}

func (s *Storage) UpsertMany(_ context.Context, observations []*types.Observation) error {
	if err := validate(observations); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertObservations(observations)

	return nil
}

func (s *Storage) SaveBatch(_ context.Context, batch *types.Batch, updatedAt time.Time) error {
	if err := validate(batch.Observations); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertObservations(batch.Observations)

	cur := s.cursors[batch.Source]
	cur.LastUpdate = updatedAt

	if batch.NewCursor != nil &&
		(cur.LastFetchedID == nil || *batch.NewCursor >= *cur.LastFetchedID) {
		id := *batch.NewCursor
		cur.LastFetchedID = &id
	}

	s.cursors[batch.Source] = cur

	return nil
}

// validate rejects the whole set if any rate is not positive
func validate(observations []*types.Observation) error {
	for _, o := range observations {
		if o.Rate <= 0 {
			return fmt.Errorf("unable to save rate at %s: %w", o.Time, errInvalidRate)
		}
	}

	return nil
}

// insertObservations inserts the observations, never overwriting.
// Expects the write lock to be held
func (s *Storage) insertObservations(observations []*types.Observation) {
	for _, o := range observations {
		k := key{
			source: o.Source.String(),
			at:     o.Time.UnixNano(),
		}

		if _, exists := s.data[k]; exists {
			continue // insert-or-ignore
		}

		elem := *o
		s.data[k] = elem
	}
}

func (s *Storage) Cursor(_ context.Context, source types.Source) (*types.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur := s.cursors[source]

	out := &types.Cursor{
		LastUpdate: cur.LastUpdate,
	}

	if cur.LastFetchedID != nil {
		id := *cur.LastFetchedID
		out.LastFetchedID = &id
	}

	return out, nil
}

func (s *Storage) SetCursor(
	_ context.Context,
	source types.Source,
	lastFetchedID *int64,
	updatedAt time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.cursors[source]
	cur.LastUpdate = updatedAt

	if lastFetchedID != nil {
		id := *lastFetchedID
		cur.LastFetchedID = &id
	}

	s.cursors[source] = cur

	return nil
}

func (s *Storage) LatestAtOrBefore(
	_ context.Context,
	source types.Source,
	at time.Time,
) (*types.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *types.Observation

	for _, v := range s.data {
		if v.Source != source || v.Time.After(at) {
			continue
		}

		if best == nil || v.Time.After(best.Time) {
			cp := v
			best = &cp
		}
	}

	return best, nil
}

func (s *Storage) Series(
	_ context.Context,
	source types.Source,
	from time.Time,
	to time.Time,
) ([]*types.Observation, error) {
	s.mu.RLock()

	out := make([]*types.Observation, 0)

	for _, v := range s.data {
		if v.Source != source || v.Time.Before(from) || v.Time.After(to) {
			continue
		}

		cp := v
		out = append(out, &cp)
	}

	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})

	return out, nil
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[key]types.Observation)
	s.cursors = make(map[types.Source]types.Cursor)

	return nil
}
