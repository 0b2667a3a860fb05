package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMissingAppID   = errors.New("missing Telegram client id")
	ErrMissingAppHash = errors.New("missing Telegram client secret (hash)")
	ErrInvalidAppID   = errors.New("invalid Telegram client id")
)

// Credentials are the Telegram API client credentials
type Credentials struct {
	AppHash string
	AppID   int
}

// ParseCredentials validates the raw client id and secret.
// Every missing value is reported
func ParseCredentials(rawID, hash string) (Credentials, error) {
	var (
		errs  []error
		creds Credentials
	)

	rawID = strings.TrimSpace(rawID)
	hash = strings.TrimSpace(hash)

	switch id, err := strconv.Atoi(rawID); {
	case rawID == "":
		errs = append(errs, ErrMissingAppID)
	case err != nil || id <= 0:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidAppID, rawID))
	default:
		creds.AppID = id
	}

	if hash == "" {
		errs = append(errs, ErrMissingAppHash)
	}

	creds.AppHash = hash

	if len(errs) != 0 {
		return Credentials{}, errors.Join(errs...)
	}

	return creds, nil
}

// Validate checks both credentials are set
func (c Credentials) Validate() error {
	var errs []error

	if c.AppID <= 0 {
		errs = append(errs, ErrMissingAppID)
	}

	if c.AppHash == "" {
		errs = append(errs, ErrMissingAppHash)
	}

	return errors.Join(errs...)
}
