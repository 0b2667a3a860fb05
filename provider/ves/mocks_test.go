package ves

import (
	"context"
	"errors"
)

type messagesDelegate func(context.Context, string, string, *int64) ([]Message, error)

type mockChannelReader struct {
	messagesFn messagesDelegate
}

func (m *mockChannelReader) Messages(
	ctx context.Context,
	channel string,
	search string,
	after *int64,
) ([]Message, error) {
	if m.messagesFn != nil {
		return m.messagesFn(ctx, channel, search, after)
	}

	return nil, nil
}

type openDelegate func(string) ([]Sheet, error)

type mockOpener struct {
	openFn openDelegate
}

func (m *mockOpener) Open(path string) ([]Sheet, error) {
	if m.openFn != nil {
		return m.openFn(path)
	}

	return nil, errors.New("not implemented")
}
