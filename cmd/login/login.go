package login

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/vedollar/cmd/env"
	"github.com/sig-0/vedollar/config"
	"github.com/sig-0/vedollar/provider/telegram"
)

// loginCfg wraps the login configuration
type loginCfg struct {
	phone       string
	sessionFile string
}

// NewLoginCmd creates the login subcommand
func NewLoginCmd() *ffcli.Command {
	cfg := &loginCfg{}

	fs := flag.NewFlagSet("login", flag.ExitOnError)
	cfg.registerFlags(fs)

	return &ffcli.Command{
		Name:       "login",
		ShortUsage: "login -phone <number> [flags]",
		LongHelp:   "Authorizes the Telegram session used by the paralelo source",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

func (c *loginCfg) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.phone,
		"phone",
		"",
		"the account phone number, in international format",
	)

	fs.StringVar(
		&c.sessionFile,
		"session-file",
		config.DefaultConfig().Paralelo.SessionFile,
		"the session file to authorize",
	)
}

func (c *loginCfg) exec(ctx context.Context, _ []string) error {
	if c.phone == "" {
		return flag.ErrHelp
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load .env
	if err := godotenv.Load(); err != nil {
		logger.Debug("unable to load .env file")
	}

	creds, err := telegram.ParseCredentials(
		os.Getenv(env.Prefix+env.TGIDSuffix),
		os.Getenv(env.Prefix+env.TGHashSuffix),
	)
	if err != nil {
		return err
	}

	client, err := telegram.New(creds, c.sessionFile, telegram.WithLogger(logger))
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)

	return client.Login(ctx, c.phone, func(_ context.Context) (string, error) {
		fmt.Print("Login code: ")

		code, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("unable to read login code: %w", err)
		}

		return strings.TrimSpace(code), nil
	})
}
