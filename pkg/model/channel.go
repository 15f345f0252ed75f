package model

import (
	"errors"
	"strings"
	"time"
)

const MaxChannelNameLength = 50

var ErrChannelNameEmpty = errors.New("channel name must not be empty")
var ErrChannelNameTooLong = errors.New("channel name too long")
var ErrChannelNamePrefix = errors.New("channel name must start with '#' or '&'")
var ErrChannelNameInvalidChars = errors.New("channel name contains reserved characters")

// Channel is a catalog entry for a named group. Membership is runtime
// state and lives in the server's channel registry, not here.
type Channel struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateChannelName checks that name is a usable channel name.
func ValidateChannelName(name string) error {
	if name == "" {
		return ErrChannelNameEmpty
	}
	if len(name) > MaxChannelNameLength {
		return ErrChannelNameTooLong
	}
	if name[0] != '#' && name[0] != '&' {
		return ErrChannelNamePrefix
	}
	if len(name) < 2 || strings.ContainsAny(name, " ,\x00\x07\r\n") {
		return ErrChannelNameInvalidChars
	}
	return nil
}
