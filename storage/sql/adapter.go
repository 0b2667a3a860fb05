package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sig-0/vedollar/storage/codec"
	"github.com/sig-0/vedollar/storage/types"
)

const (
	insertRateSQL = `INSERT INTO rates (time, source, rate) VALUES ($1, $2, $3)
    ON CONFLICT (time, source) DO NOTHING`

	upsertMetaSQL = `INSERT INTO rates_meta (source, key, value) VALUES ($1, $2, $3)
    ON CONFLICT (source, key) DO UPDATE SET value = EXCLUDED.value`

	selectMetaSQL = `SELECT key, value FROM rates_meta WHERE source = $1`

	// the stored cursor is only ever replaced by one that is not behind it,
	// including when concurrent batches race on the first insert
	advanceCursorSQL = `INSERT INTO rates_meta (source, key, value) VALUES ($1, $2, $3)
    ON CONFLICT (source, key) DO UPDATE SET value = EXCLUDED.value
    WHERE rates_meta.value::bigint <= EXCLUDED.value::bigint`

	latestAtOrBeforeSQL = `SELECT time, rate FROM rates
    WHERE source = $1 AND time <= $2
    ORDER BY time DESC
    LIMIT 1`

	seriesSQL = `SELECT time, rate FROM rates
    WHERE source = $1 AND time >= $2 AND time <= $3
    ORDER BY time`

	clearSQL = `TRUNCATE rates, rates_meta`
)

// DB is the subset of the pgx API used by the store.
// Both *pgx.Conn and *pgxpool.Pool satisfy it
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Storage struct {
	db    DB
	codec codec.Codec
	loc   *time.Location
}

// NewStorage creates a new PostgreSQL store. Decoded instants are
// expressed in the given location (UTC if nil)
func NewStorage(db DB, c codec.Codec, loc *time.Location) *Storage {
	if loc == nil {
		loc = time.UTC
	}

	return &Storage{
		db:    db,
		codec: c,
		loc:   loc,
	}
}

func (s *Storage) UpsertMany(ctx context.Context, observations []*types.Observation) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return insertObservations(ctx, tx, observations)
	})
}

func (s *Storage) SaveBatch(ctx context.Context, batch *types.Batch, updatedAt time.Time) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := insertObservations(ctx, tx, batch.Observations); err != nil {
			return err
		}

		if batch.NewCursor != nil {
			if _, err := tx.Exec(
				ctx,
				advanceCursorSQL,
				batch.Source.String(),
				types.MetaLastFetchedID,
				s.codec.EncodeID(*batch.NewCursor),
			); err != nil {
				return fmt.Errorf("unable to save %s: %w", types.MetaLastFetchedID, err)
			}
		}

		return setMeta(ctx, tx, batch.Source, types.MetaLastUpdate, s.codec.EncodeTime(updatedAt))
	})
}

func (s *Storage) Cursor(ctx context.Context, source types.Source) (*types.Cursor, error) {
	rows, err := s.db.Query(ctx, selectMetaSQL, source.String())
	if err != nil {
		return nil, fmt.Errorf("unable to fetch cursor: %w", err)
	}
	defer rows.Close()

	cur := &types.Cursor{}

	for rows.Next() {
		var k, v string

		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("unable to scan cursor: %w", err)
		}

		switch k {
		case types.MetaLastFetchedID:
			id, err := s.codec.DecodeID(v)
			if err != nil {
				return nil, err
			}

			cur.LastFetchedID = &id
		case types.MetaLastUpdate:
			t, err := s.codec.DecodeTime(v)
			if err != nil {
				return nil, err
			}

			cur.LastUpdate = t
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to fetch cursor: %w", err)
	}

	return cur, nil
}

func (s *Storage) SetCursor(
	ctx context.Context,
	source types.Source,
	lastFetchedID *int64,
	updatedAt time.Time,
) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if lastFetchedID != nil {
			if err := setMeta(
				ctx,
				tx,
				source,
				types.MetaLastFetchedID,
				s.codec.EncodeID(*lastFetchedID),
			); err != nil {
				return err
			}
		}

		return setMeta(ctx, tx, source, types.MetaLastUpdate, s.codec.EncodeTime(updatedAt))
	})
}

func (s *Storage) LatestAtOrBefore(
	ctx context.Context,
	source types.Source,
	at time.Time,
) (*types.Observation, error) {
	var (
		ts   pgtype.Timestamptz
		rate int64
	)

	err := s.db.QueryRow(
		ctx,
		latestAtOrBeforeSQL,
		source.String(),
		timeToTimestampz(at),
	).Scan(&ts, &rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // valid case
		}

		return nil, fmt.Errorf("unable to fetch rate: %w", err)
	}

	return &types.Observation{
		Time:   timestampzToTime(ts).In(s.loc),
		Source: source,
		Rate:   rate,
	}, nil
}

func (s *Storage) Series(
	ctx context.Context,
	source types.Source,
	from time.Time,
	to time.Time,
) ([]*types.Observation, error) {
	rows, err := s.db.Query(
		ctx,
		seriesSQL,
		source.String(),
		timeToTimestampz(from),
		timeToTimestampz(to),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch rates: %w", err)
	}
	defer rows.Close()

	out := make([]*types.Observation, 0)

	for rows.Next() {
		var (
			ts   pgtype.Timestamptz
			rate int64
		)

		if err := rows.Scan(&ts, &rate); err != nil {
			return nil, fmt.Errorf("unable to scan rate: %w", err)
		}

		out = append(out, &types.Observation{
			Time:   timestampzToTime(ts).In(s.loc),
			Source: source,
			Rate:   rate,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to fetch rates: %w", err)
	}

	return out, nil
}

func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, clearSQL); err != nil {
		return fmt.Errorf("unable to clear DB: %w", err)
	}

	return nil
}

// insertObservations queues the insert-or-ignore statements as a single batch
func insertObservations(ctx context.Context, tx pgx.Tx, observations []*types.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	b := &pgx.Batch{}

	for _, o := range observations {
		b.Queue(insertRateSQL, timeToTimestampz(o.Time), o.Source.String(), o.Rate)
	}

	results := tx.SendBatch(ctx, b)

	for range observations {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()

			return fmt.Errorf("unable to save rate: %w", err)
		}
	}

	if err := results.Close(); err != nil {
		return fmt.Errorf("unable to save rates: %w", err)
	}

	return nil
}

func setMeta(ctx context.Context, tx pgx.Tx, source types.Source, key, value string) error {
	if _, err := tx.Exec(ctx, upsertMetaSQL, source.String(), key, value); err != nil {
		return fmt.Errorf("unable to save %s: %w", key, err)
	}

	return nil
}

// timeToTimestampz converts the time value to postgres timestamp
func timeToTimestampz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  t.UTC(),
		Valid: true,
	}
}

// timestampzToTime converts the postgres timestamp value to time
func timestampzToTime(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}

	return ts.Time
}
