// Package telegram lists public channel messages through the Telegram client API
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/tg"

	"github.com/sig-0/vedollar/provider/ves"
)

const maxPageSize = 100

var (
	errUnauthorized  = errors.New("session is not authorized, run the login command first")
	errNotAChannel   = errors.New("resolved peer is not a channel")
	errInvalidPageSz = errors.New("invalid page size")
)

// Client is the channel message reader
type Client struct {
	logger *slog.Logger

	creds       Credentials
	sessionFile string
	pageSize    int
	pageWait    time.Duration
}

type Option func(c *Client)

// WithLogger specifies the logger for the client
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithPageSize specifies the number of messages requested per page (max 100)
func WithPageSize(size int) Option {
	return func(c *Client) {
		c.pageSize = size
	}
}

// WithPageWait specifies the delay between consecutive page requests
func WithPageWait(d time.Duration) Option {
	return func(c *Client) {
		c.pageWait = d
	}
}

// New creates a new channel reader, persisting the session
// at the given file
func New(creds Credentials, sessionFile string, opts ...Option) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		creds:       creds,
		sessionFile: sessionFile,
		pageSize:    maxPageSize,
		pageWait:    time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.pageSize <= 0 || c.pageSize > maxPageSize {
		return nil, fmt.Errorf("%w: %d", errInvalidPageSz, c.pageSize)
	}

	return c, nil
}

func (c *Client) newClient() (*telegram.Client, error) {
	if err := os.MkdirAll(filepath.Dir(c.sessionFile), 0o700); err != nil {
		return nil, fmt.Errorf("unable to create session dir: %w", err)
	}

	return telegram.NewClient(c.creds.AppID, c.creds.AppHash, telegram.Options{
		SessionStorage: &session.FileStorage{
			Path: c.sessionFile,
		},
	}), nil
}

// Login authorizes the session with the phone number, if not already authorized.
// The code callback receives the login code sent by Telegram
func (c *Client) Login(
	ctx context.Context,
	phone string,
	code func(ctx context.Context) (string, error),
) error {
	client, err := c.newClient()
	if err != nil {
		return err
	}

	flow := auth.NewFlow(
		auth.CodeOnly(
			phone,
			auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
				return code(ctx)
			}),
		),
		auth.SendCodeOptions{},
	)

	return client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("unable to authorize session: %w", err)
		}

		c.logger.Info("session authorized", "session", c.sessionFile)

		return nil
	})
}

// Messages lists the channel messages matching the search text, with an ID
// greater than after (all if nil), oldest first
func (c *Client) Messages(
	ctx context.Context,
	channel string,
	search string,
	after *int64,
) ([]ves.Message, error) {
	client, err := c.newClient()
	if err != nil {
		return nil, err
	}

	var messages []ves.Message

	runErr := client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("unable to check auth status: %w", err)
		}

		if !status.Authorized {
			return errUnauthorized
		}

		api := client.API()

		resolved, err := peer.DefaultResolver(api).ResolveDomain(ctx, channel)
		if err != nil {
			return fmt.Errorf("unable to resolve channel %q: %w", channel, err)
		}

		inputPeer, err := asChannel(resolved)
		if err != nil {
			return err
		}

		var minID int
		if after != nil {
			minID = int(*after)
		}

		searchPage := func(ctx context.Context, offsetID int) ([]tg.MessageClass, error) {
			res, err := api.MessagesSearch(ctx, &tg.MessagesSearchRequest{
				Peer:     inputPeer,
				Q:        search,
				Filter:   &tg.InputMessagesFilterEmpty{},
				OffsetID: offsetID,
				MinID:    minID,
				Limit:    c.pageSize,
			})
			if err != nil {
				return nil, err
			}

			return pageMessages(res), nil
		}

		messages, err = c.collect(ctx, searchPage)

		return err
	})
	if runErr != nil {
		return nil, runErr
	}

	return messages, nil
}

// searchFn fetches a single page of messages older than offsetID (0 means newest)
type searchFn func(ctx context.Context, offsetID int) ([]tg.MessageClass, error)

// collect pages backwards through the search results until exhausted,
// and returns the text messages oldest first
func (c *Client) collect(ctx context.Context, search searchFn) ([]ves.Message, error) {
	var (
		messages = make([]ves.Message, 0, c.pageSize)
		seen     = make(map[int]struct{})
		offsetID int
	)

	for {
		page, err := search(ctx, offsetID)
		if err != nil {
			return nil, fmt.Errorf("unable to search messages: %w", err)
		}

		lowest := offsetID

		for _, raw := range page {
			m, ok := raw.(*tg.Message)
			if !ok {
				continue // service or empty messages
			}

			if lowest == 0 || m.ID < lowest {
				lowest = m.ID
			}

			if _, dup := seen[m.ID]; dup {
				continue
			}

			seen[m.ID] = struct{}{}

			messages = append(messages, ves.Message{
				ID:   int64(m.ID),
				Text: m.Message,
			})
		}

		c.logger.Debug(
			"fetched message page",
			"page_size", len(page),
			"total", len(messages),
		)

		// A short page, or no progress, ends the listing
		if len(page) < c.pageSize || lowest == offsetID {
			break
		}

		offsetID = lowest

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pageWait):
		}
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ID < messages[j].ID
	})

	return messages, nil
}

// asChannel narrows the resolved peer to a single channel handle
func asChannel(p tg.InputPeerClass) (*tg.InputPeerChannel, error) {
	switch v := p.(type) {
	case *tg.InputPeerChannel:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %T", errNotAChannel, p)
	}
}

// pageMessages extracts the messages of any search result variant
func pageMessages(res tg.MessagesMessagesClass) []tg.MessageClass {
	switch v := res.(type) {
	case *tg.MessagesMessages:
		return v.Messages
	case *tg.MessagesMessagesSlice:
		return v.Messages
	case *tg.MessagesChannelMessages:
		return v.Messages
	default:
		return nil // not modified
	}
}
