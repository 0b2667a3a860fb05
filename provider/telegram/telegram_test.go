package telegram

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/vedollar/provider/ves"
)

func TestParseCredentials(t *testing.T) {
	t.Parallel()

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()

		_, err := ParseCredentials("", "secret")

		assert.ErrorIs(t, err, ErrMissingAppID)
		assert.NotErrorIs(t, err, ErrMissingAppHash)
	})

	t.Run("missing hash", func(t *testing.T) {
		t.Parallel()

		_, err := ParseCredentials("12345", " ")

		assert.ErrorIs(t, err, ErrMissingAppHash)
		assert.NotErrorIs(t, err, ErrMissingAppID)
	})

	t.Run("both missing", func(t *testing.T) {
		t.Parallel()

		_, err := ParseCredentials("", "")

		assert.ErrorIs(t, err, ErrMissingAppID)
		assert.ErrorIs(t, err, ErrMissingAppHash)
	})

	t.Run("non-numeric id", func(t *testing.T) {
		t.Parallel()

		_, err := ParseCredentials("abc", "secret")

		assert.ErrorIs(t, err, ErrInvalidAppID)
	})

	t.Run("valid credentials", func(t *testing.T) {
		t.Parallel()

		creds, err := ParseCredentials(" 12345 ", "secret")
		require.NoError(t, err)

		assert.Equal(t, Credentials{AppID: 12345, AppHash: "secret"}, creds)
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	sessionFile := filepath.Join(t.TempDir(), "session.json")

	t.Run("invalid credentials", func(t *testing.T) {
		t.Parallel()

		_, err := New(Credentials{AppHash: "secret"}, sessionFile)

		assert.ErrorIs(t, err, ErrMissingAppID)
	})

	t.Run("invalid page size", func(t *testing.T) {
		t.Parallel()

		_, err := New(Credentials{AppID: 1, AppHash: "secret"}, sessionFile, WithPageSize(maxPageSize+1))

		assert.ErrorIs(t, err, errInvalidPageSz)
	})

	t.Run("valid client", func(t *testing.T) {
		t.Parallel()

		c, err := New(Credentials{AppID: 1, AppHash: "secret"}, sessionFile, WithPageSize(10))
		require.NoError(t, err)

		assert.Equal(t, 10, c.pageSize)
		assert.Equal(t, sessionFile, c.sessionFile)
	})
}

// pages simulates a newest-first, offset-paged search
func pages(ids ...[]int) searchFn {
	byOffset := make(map[int][]tg.MessageClass)

	offset := 0

	for _, page := range ids {
		msgs := make([]tg.MessageClass, 0, len(page))

		for _, id := range page {
			msgs = append(msgs, &tg.Message{ID: id, Message: "msg"})
		}

		byOffset[offset] = msgs

		if len(page) > 0 {
			offset = page[len(page)-1]
		}
	}

	return func(_ context.Context, offsetID int) ([]tg.MessageClass, error) {
		return byOffset[offsetID], nil
	}
}

func newTestClient(t *testing.T, pageSize int) *Client {
	t.Helper()

	c, err := New(
		Credentials{AppID: 1, AppHash: "secret"},
		filepath.Join(t.TempDir(), "session.json"),
		WithPageSize(pageSize),
		WithPageWait(0),
	)
	require.NoError(t, err)

	return c
}

func TestClient_Collect(t *testing.T) {
	t.Parallel()

	t.Run("pages until short page, oldest first", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, 2)

		messages, err := c.collect(context.Background(), pages(
			[]int{9, 8},
			[]int{7, 5},
			[]int{4},
		))
		require.NoError(t, err)

		ids := make([]int64, 0, len(messages))
		for _, m := range messages {
			ids = append(ids, m.ID)
		}

		assert.Equal(t, []int64{4, 5, 7, 8, 9}, ids)
	})

	t.Run("empty listing", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, 2)

		messages, err := c.collect(context.Background(), pages())
		require.NoError(t, err)

		assert.Empty(t, messages)
	})

	t.Run("service messages skipped", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, 10)

		messages, err := c.collect(
			context.Background(),
			func(_ context.Context, _ int) ([]tg.MessageClass, error) {
				return []tg.MessageClass{
					&tg.MessageService{ID: 3},
					&tg.Message{ID: 2, Message: "Bs. 36,50"},
					&tg.MessageEmpty{ID: 1},
				}, nil
			},
		)
		require.NoError(t, err)

		assert.Equal(t, []ves.Message{{ID: 2, Text: "Bs. 36,50"}}, messages)
	})

	t.Run("interrupted listing yields nothing", func(t *testing.T) {
		t.Parallel()

		var (
			c        = newTestClient(t, 1)
			flood    = errors.New("FLOOD_WAIT")
			requests int
		)

		messages, err := c.collect(
			context.Background(),
			func(_ context.Context, offsetID int) ([]tg.MessageClass, error) {
				requests++

				if offsetID == 0 {
					return []tg.MessageClass{&tg.Message{ID: 10}}, nil
				}

				return nil, flood
			},
		)

		assert.ErrorIs(t, err, flood)
		assert.Nil(t, messages)
		assert.Equal(t, 2, requests)
	})

	t.Run("no progress ends the listing", func(t *testing.T) {
		t.Parallel()

		var (
			c        = newTestClient(t, 1)
			requests int
		)

		messages, err := c.collect(
			context.Background(),
			func(_ context.Context, _ int) ([]tg.MessageClass, error) {
				requests++

				return []tg.MessageClass{&tg.Message{ID: 10}}, nil
			},
		)
		require.NoError(t, err)

		assert.Len(t, messages, 1)
		assert.Equal(t, 2, requests)
	})
}

func TestAsChannel(t *testing.T) {
	t.Parallel()

	t.Run("channel", func(t *testing.T) {
		t.Parallel()

		in := &tg.InputPeerChannel{ChannelID: 1, AccessHash: 2}

		out, err := asChannel(in)
		require.NoError(t, err)

		assert.Same(t, in, out)
	})

	t.Run("user", func(t *testing.T) {
		t.Parallel()

		_, err := asChannel(&tg.InputPeerUser{UserID: 1})

		assert.ErrorIs(t, err, errNotAChannel)
	})
}

func TestPageMessages(t *testing.T) {
	t.Parallel()

	msgs := []tg.MessageClass{&tg.Message{ID: 1}}

	assert.Equal(t, msgs, pageMessages(&tg.MessagesMessages{Messages: msgs}))
	assert.Equal(t, msgs, pageMessages(&tg.MessagesMessagesSlice{Messages: msgs}))
	assert.Equal(t, msgs, pageMessages(&tg.MessagesChannelMessages{Messages: msgs}))
	assert.Nil(t, pageMessages(&tg.MessagesMessagesNotModified{}))
}
