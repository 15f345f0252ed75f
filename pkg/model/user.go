package model

import (
	"errors"
	"fmt"
	"strings"
)

const MaxNicknameLength = 30

var ErrNicknameEmpty = errors.New("nickname must not be empty")
var ErrNicknameTooLong = fmt.Errorf("nickname must not exceed %d characters", MaxNicknameLength)
var ErrNicknameInvalidChars = errors.New("nickname contains reserved characters")

// Identity is the per-connection view of who a client claims to be. Fields
// stay empty until the matching NICK or USER command arrives.
type Identity struct {
	Nickname string
	Username string
	Hostname string
	Realname string
}

// HasNickname reports whether a nickname has been claimed.
func (id *Identity) HasNickname() bool { return id.Nickname != "" }

// HasUsername reports whether USER has been received.
func (id *Identity) HasUsername() bool { return id.Username != "" }

// Complete reports whether both nickname and username are set.
func (id *Identity) Complete() bool {
	return id.HasNickname() && id.HasUsername()
}

// ValidateNickname rejects nicknames that would be ambiguous on the wire:
// target lists are comma separated, channel names start with '#' or '&',
// and ':' introduces trailing parameters.
func ValidateNickname(nick string) error {
	if nick == "" {
		return ErrNicknameEmpty
	}
	if len(nick) > MaxNicknameLength {
		return ErrNicknameTooLong
	}
	if strings.ContainsAny(nick, " ,!@*?\x00\x07\r\n") {
		return ErrNicknameInvalidChars
	}
	switch nick[0] {
	case '#', '&', ':':
		return ErrNicknameInvalidChars
	}
	return nil
}
