package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"sort"
	"time"

	_ "modernc.org/sqlite" // driver

	"github.com/sig-0/vedollar/storage/codec"
	"github.com/sig-0/vedollar/storage/types"
)

var errMissingPath = errors.New("sqlite path is required")

const (
	insertRateSQL = `INSERT INTO rates (time, source, rate) VALUES (?, ?, ?)
    ON CONFLICT (time, source) DO NOTHING`

	upsertMetaSQL = `INSERT INTO rates_meta (source, key, value) VALUES (?, ?, ?)
    ON CONFLICT (source, key) DO UPDATE SET value = excluded.value`

	selectMetaSQL = `SELECT key, value FROM rates_meta WHERE source = ?`

	selectMetaKeySQL = `SELECT value FROM rates_meta WHERE source = ? AND key = ?`

	latestAtOrBeforeSQL = `SELECT time, rate FROM rates
    WHERE source = ? AND time <= ?
    ORDER BY time DESC
    LIMIT 1`

	seriesSQL = `SELECT time, rate FROM rates
    WHERE source = ? AND time >= ? AND time <= ?
    ORDER BY time`
)

// Storage is the SQLite rate store
type Storage struct {
	db    *sql.DB
	codec codec.Codec
}

// New opens (creating if needed) the SQLite database at the given path,
// and applies the schema
func New(path string, c codec.Codec) (*Storage, error) {
	if path == "" {
		return nil, errMissingPath
	}

	// The path is escaped, the driver splits the DSN at the first '?'
	dsn := (&url.URL{
		Scheme:   "file",
		Opaque:   (&url.URL{Path: path}).EscapedPath(),
		RawQuery: "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
	}).String()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite DB: %w", err)
	}

	// Writes are serialized through the single connection
	db.SetMaxOpenConns(1)

	s := &Storage{
		db:    db,
		codec: c,
	}

	if err = s.migrate(); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("unable to migrate sqlite DB: %w", err)
	}

	return s, nil
}

// Close closes the underlying DB
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	names, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return err
	}

	sort.Strings(names)

	for _, name := range names {
		statement, err := schemaFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("unable to read schema %q: %w", name, err)
		}

		if _, err := s.db.Exec(string(statement)); err != nil {
			return fmt.Errorf("unable to apply schema %q: %w", name, err)
		}
	}

	return nil
}

func (s *Storage) UpsertMany(ctx context.Context, observations []*types.Observation) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.insertObservations(ctx, tx, observations)
	})
}

func (s *Storage) SaveBatch(ctx context.Context, batch *types.Batch, updatedAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertObservations(ctx, tx, batch.Observations); err != nil {
			return err
		}

		if batch.NewCursor != nil {
			current, err := s.lastFetchedID(ctx, tx, batch.Source)
			if err != nil {
				return err
			}

			if current == nil || *batch.NewCursor >= *current {
				if err := s.setMeta(
					ctx,
					tx,
					batch.Source,
					types.MetaLastFetchedID,
					s.codec.EncodeID(*batch.NewCursor),
				); err != nil {
					return err
				}
			}
		}

		return s.setMeta(
			ctx,
			tx,
			batch.Source,
			types.MetaLastUpdate,
			s.codec.EncodeTime(updatedAt),
		)
	})
}

func (s *Storage) Cursor(ctx context.Context, source types.Source) (*types.Cursor, error) {
	rows, err := s.db.QueryContext(ctx, selectMetaSQL, source.String())
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
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if lastFetchedID != nil {
			if err := s.setMeta(
				ctx,
				tx,
				source,
				types.MetaLastFetchedID,
				s.codec.EncodeID(*lastFetchedID),
			); err != nil {
				return err
			}
		}

		return s.setMeta(ctx, tx, source, types.MetaLastUpdate, s.codec.EncodeTime(updatedAt))
	})
}

func (s *Storage) LatestAtOrBefore(
	ctx context.Context,
	source types.Source,
	at time.Time,
) (*types.Observation, error) {
	var (
		rawTime string
		rate    int64
	)

	err := s.db.QueryRowContext(
		ctx,
		latestAtOrBeforeSQL,
		source.String(),
		s.codec.EncodeTime(at),
	).Scan(&rawTime, &rate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // valid case
		}

		return nil, fmt.Errorf("unable to fetch rate: %w", err)
	}

	t, err := s.codec.DecodeTime(rawTime)
	if err != nil {
		return nil, err
	}

	return &types.Observation{
		Time:   t,
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
	rows, err := s.db.QueryContext(
		ctx,
		seriesSQL,
		source.String(),
		s.codec.EncodeTime(from),
		s.codec.EncodeTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch rates: %w", err)
	}
	defer rows.Close()

	out := make([]*types.Observation, 0)

	for rows.Next() {
		var (
			rawTime string
			rate    int64
		)

		if err := rows.Scan(&rawTime, &rate); err != nil {
			return nil, fmt.Errorf("unable to scan rate: %w", err)
		}

		t, err := s.codec.DecodeTime(rawTime)
		if err != nil {
			return nil, err
		}

		out = append(out, &types.Observation{
			Time:   t,
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
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, statement := range []string{`DELETE FROM rates`, `DELETE FROM rates_meta`} {
			if _, err := tx.ExecContext(ctx, statement); err != nil {
				return fmt.Errorf("unable to clear DB: %w", err)
			}
		}

		return nil
	})
}

// withTx runs fn inside a transaction, committing only if fn succeeds
func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}

	if err = fn(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit transaction: %w", err)
	}

	return nil
}

func (s *Storage) insertObservations(
	ctx context.Context,
	tx *sql.Tx,
	observations []*types.Observation,
) error {
	if len(observations) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, insertRateSQL)
	if err != nil {
		return fmt.Errorf("unable to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range observations {
		if _, err := stmt.ExecContext(
			ctx,
			s.codec.EncodeTime(o.Time),
			o.Source.String(),
			o.Rate,
		); err != nil {
			return fmt.Errorf("unable to save rate: %w", err)
		}
	}

	return nil
}

func (s *Storage) lastFetchedID(ctx context.Context, tx *sql.Tx, source types.Source) (*int64, error) {
	var v string

	err := tx.QueryRowContext(ctx, selectMetaKeySQL, source.String(), types.MetaLastFetchedID).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("unable to fetch cursor: %w", err)
	}

	id, err := s.codec.DecodeID(v)
	if err != nil {
		return nil, err
	}

	return &id, nil
}

func (s *Storage) setMeta(
	ctx context.Context,
	tx *sql.Tx,
	source types.Source,
	key string,
	value string,
) error {
	if _, err := tx.ExecContext(ctx, upsertMetaSQL, source.String(), key, value); err != nil {
		return fmt.Errorf("unable to save %s: %w", key, err)
	}

	return nil
}
