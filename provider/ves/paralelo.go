package ves

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sig-0/vedollar/storage/types"
)

const (
	// DefaultParaleloChannel is the public channel the parallel rate is announced in
	DefaultParaleloChannel = "enparalelovzlatelegram"

	// DefaultParaleloSearch is the currency marker every announcement carries
	DefaultParaleloSearch = "Bs."
)

// Message is a single channel message
type Message struct {
	Text string
	ID   int64
}

// ChannelReader lists messages of a public channel
type ChannelReader interface {
	// Messages lists the channel messages containing the search text, with
	// IDs strictly greater than after (all messages if after is nil),
	// oldest first. It either returns the full listing or an error
	Messages(ctx context.Context, channel, search string, after *int64) ([]Message, error)
}

// ParaleloProvider is the parallel market channel provider
type ParaleloProvider struct {
	reader ChannelReader
	logger *slog.Logger

	channel  string
	search   string
	interval time.Duration
}

// ParaleloOption is a functional option for the parallel market provider
type ParaleloOption func(p *ParaleloProvider)

// WithParaleloLogger specifies the logger for the provider
func WithParaleloLogger(l *slog.Logger) ParaleloOption {
	return func(p *ParaleloProvider) {
		p.logger = l
	}
}

// WithParaleloChannel specifies the channel and the search marker
func WithParaleloChannel(channel, search string) ParaleloOption {
	return func(p *ParaleloProvider) {
		p.channel = channel
		p.search = search
	}
}

// WithParaleloInterval specifies the ingestion interval
func WithParaleloInterval(interval time.Duration) ParaleloOption {
	return func(p *ParaleloProvider) {
		p.interval = interval
	}
}

// NewParaleloProvider creates a new instance of the parallel market provider
func NewParaleloProvider(reader ChannelReader, opts ...ParaleloOption) *ParaleloProvider {
	p := &ParaleloProvider{
		reader:   reader,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		channel:  DefaultParaleloChannel,
		search:   DefaultParaleloSearch,
		interval: time.Hour,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *ParaleloProvider) Name() string {
	return "Paralelo"
}

func (p *ParaleloProvider) Source() types.Source {
	return types.SourceParalelo
}

func (p *ParaleloProvider) Interval() time.Duration {
	return p.interval
}

// Fetch fetches and parses every announcement newer than the cursor.
// The candidate cursor is only set once the full listing is known
func (p *ParaleloProvider) Fetch(ctx context.Context, cursor *types.Cursor) (*types.Batch, error) {
	var after *int64
	if cursor != nil {
		after = cursor.LastFetchedID
	}

	messages, err := p.reader.Messages(ctx, p.channel, p.search, after)
	if err != nil {
		return nil, fmt.Errorf("unable to list channel messages: %w", err)
	}

	p.logger.Info(
		"fetched channel messages",
		"channel", p.channel,
		"count", len(messages),
	)

	batch := &types.Batch{
		Source:       types.SourceParalelo,
		Observations: make([]*types.Observation, 0, len(messages)),
	}

	for _, msg := range messages {
		o, err := p.parse(msg)
		if err != nil {
			p.logger.Warn(
				"unable to parse message",
				"id", msg.ID,
				"message", excerpt(msg.Text),
				"err", err,
			)

			batch.Skipped++

			continue
		}

		batch.Observations = append(batch.Observations, o)
	}

	if len(messages) > 0 {
		last := messages[len(messages)-1].ID
		batch.NewCursor = &last
	}

	return batch, nil
}

// parse parses, normalizes and corrects a single announcement
func (p *ParaleloProvider) parse(msg Message) (*types.Observation, error) {
	at, raw, err := parseMessage(msg.Text)
	if err != nil {
		return nil, err
	}

	o := &types.Observation{
		Time:   at,
		Source: types.SourceParalelo,
		Rate:   Normalize(raw, at),
	}

	if rule, ok := Correct(o); ok {
		p.logger.Info(
			"corrected known bad record",
			"id", msg.ID,
			"rule", rule,
			"time", o.Time,
			"rate", o.Rate,
		)
	}

	if o.Rate <= 0 {
		return nil, fmt.Errorf("%w: non-positive value %d", errInvalidRate, o.Rate)
	}

	return o, nil
}
