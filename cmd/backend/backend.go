// Package backend opens the storage backend selected on the command line
package backend

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/vedollar/cmd/env"
	"github.com/sig-0/vedollar/config"
	"github.com/sig-0/vedollar/provider/ves"
	"github.com/sig-0/vedollar/storage"
	"github.com/sig-0/vedollar/storage/codec"
	"github.com/sig-0/vedollar/storage/memory"
	"github.com/sig-0/vedollar/storage/sql"
	"github.com/sig-0/vedollar/storage/sqlite"
)

// Kind is a storage backend kind
type Kind string

const (
	KindSQL    Kind = "sql"
	KindSQLite Kind = "sqlite"
	KindMemory Kind = "memory"
)

var errUnknownBackend = errors.New("unknown storage backend")

// Config is the shared storage backend configuration
type Config struct {
	SQLitePath string
}

// RegisterFlags registers the backend flags
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.SQLitePath,
		"sqlite-path",
		filepath.Join(config.DefaultDataDir(), "rates.db"),
		"the path to the SQLite database file (sqlite backend)",
	)
}

// ExecFn is a backend-agnostic command body
type ExecFn func(ctx context.Context, store storage.Storage, logger *slog.Logger, args []string) error

// Command describes a command that runs on top of any of the given backends
type Command struct {
	Exec          ExecFn
	RegisterFlags func(fs *flag.FlagSet)

	Name      string
	LongHelp  string
	Backend   *Config
	Backends  []Kind
	ArgsUsage string
}

// Subcommands creates a single subcommand per backend, ex. "serve sqlite"
func (c *Command) Subcommands() []*ffcli.Command {
	commands := make([]*ffcli.Command, 0, len(c.Backends))

	for _, kind := range c.Backends {
		fs := flag.NewFlagSet(string(kind), flag.ExitOnError)

		if c.RegisterFlags != nil {
			c.RegisterFlags(fs)
		}

		if kind == KindSQLite {
			c.Backend.RegisterFlags(fs)
		}

		commands = append(commands, &ffcli.Command{
			Name:       string(kind),
			ShortUsage: fmt.Sprintf("%s %s [flags] %s", c.Name, kind, c.ArgsUsage),
			LongHelp:   fmt.Sprintf("%s, using the %s datastore", c.LongHelp, kind),
			FlagSet:    fs,
			Exec: func(ctx context.Context, args []string) error {
				return c.run(ctx, kind, args)
			},
			Options: []ff.Option{
				// Allow using ENV variables
				ff.WithEnvVars(),
				ff.WithEnvVarPrefix(env.Prefix),
			},
		})
	}

	return commands
}

func (c *Command) run(ctx context.Context, kind Kind, args []string) error {
	// Create a new logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load .env
	if err := godotenv.Load(); err != nil {
		logger.Debug("unable to load .env file")
	}

	store, closeFn, err := Open(ctx, kind, c.Backend, logger)
	if err != nil {
		return err
	}

	defer closeFn()

	return c.Exec(ctx, store, logger, args)
}

// Open opens the given storage backend. The returned close function
// releases the backend resources
func Open(
	ctx context.Context,
	kind Kind,
	cfg *Config,
	logger *slog.Logger,
) (storage.Storage, func(), error) {
	switch kind {
	case KindSQL:
		return openSQL(ctx, logger)
	case KindSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("unable to create database dir: %w", err)
		}

		store, err := sqlite.New(cfg.SQLitePath, codec.NewText(ves.Location))
		if err != nil {
			return nil, nil, fmt.Errorf("unable to open SQLite DB: %w", err)
		}

		logger.Info("opened SQLite DB", "path", cfg.SQLitePath)

		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error(
					"unable to gracefully close DB",
					"err", err,
				)
			}
		}, nil
	case KindMemory:
		return memory.NewStorage(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", errUnknownBackend, kind)
	}
}

func openSQL(ctx context.Context, logger *slog.Logger) (storage.Storage, func(), error) {
	// DB
	dsn := os.Getenv(env.Prefix + env.DBURLSuffix)
	if dsn == "" {
		return nil, nil, fmt.Errorf("missing %s", env.Prefix+env.DBURLSuffix)
	}

	// Open DB connection pool
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open DB connection: %w", err)
	}

	// Check DB reachability
	pingCtx, cancelPing := context.WithTimeout(ctx, time.Second*5)
	defer cancelPing()

	if err = pool.Ping(pingCtx); err != nil {
		pool.Close()

		return nil, nil, fmt.Errorf("unable to reach DB (ping): %w", err)
	}

	logger.Info("DB ping success")

	return sql.NewStorage(pool, codec.NewText(ves.Location), ves.Location), pool.Close, nil
}
