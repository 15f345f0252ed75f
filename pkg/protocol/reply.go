package protocol

import (
	"fmt"
	"strings"
)

// Numeric replies used by the relay.
const (
	RplWelcome           = "001"
	RplChannelModeIs     = "324"
	RplNoTopic           = "331"
	RplNamReply          = "353"
	RplEndOfNames        = "366"
	ErrNoSuchNick        = "401"
	ErrNoSuchChannel     = "403"
	ErrNoNicknameGiven   = "431"
	ErrErroneusNickname  = "432"
	ErrNicknameInUse     = "433"
	ErrNotRegistered     = "451"
	ErrAlreadyRegistered = "462"
	ErrUnknownMode       = "472"
)

// CRLF terminates every outbound record.
const CRLF = "\r\n"

// Label is the sender prefix "nick!user@host" used on relayed messages.
func Label(nick, user, host string) string {
	return ":" + nick + "!" + user + "@" + host
}

// Numeric formats ":host code params...". The last parameter is written
// verbatim, so callers add the leading ':' for trailing text.
func Numeric(host, code string, params ...string) string {
	var b strings.Builder
	b.WriteString(":")
	b.WriteString(host)
	b.WriteString(" ")
	b.WriteString(code)
	for _, p := range params {
		b.WriteString(" ")
		b.WriteString(p)
	}
	b.WriteString(CRLF)
	return b.String()
}

// Welcome is the one-time greeting sent when registration completes.
func Welcome(host, nick string) string {
	return Numeric(host, RplWelcome, nick, fmt.Sprintf(":Welcome to the Internet Relay Network, %s!", nick))
}

// NicknameInUse rejects a nickname claim.
func NicknameInUse(host, nick string) string {
	return Numeric(host, ErrNicknameInUse, "*", nick, ":Nickname already in use")
}

// NotRegistered answers commands that need a completed registration.
func NotRegistered(host, nick string) string {
	return Numeric(host, ErrNotRegistered, orStar(nick), ":You have not registered")
}

// NoNicknameGiven answers a NICK with an empty nickname.
func NoNicknameGiven(host, nick string) string {
	return Numeric(host, ErrNoNicknameGiven, orStar(nick), ":No nickname given")
}

// ErroneusNickname rejects a nickname with reserved characters.
func ErroneusNickname(host, nick, rejected string) string {
	return Numeric(host, ErrErroneusNickname, orStar(nick), rejected, ":Erroneous nickname")
}

// AlreadyRegistered answers PASS after registration.
func AlreadyRegistered(host, nick string) string {
	return Numeric(host, ErrAlreadyRegistered, orStar(nick), ":You may not reregister")
}

// NoSuchNick reports an unknown private message recipient.
func NoSuchNick(host, nick, target string) string {
	return Numeric(host, ErrNoSuchNick, nick, target, ":No such nick/channel")
}

// NoSuchChannel reports an invalid or unknown channel.
func NoSuchChannel(host, nick, channel string) string {
	return Numeric(host, ErrNoSuchChannel, nick, channel, ":No such channel")
}

// ChannelModeIs answers a MODE query. Channels carry no modes.
func ChannelModeIs(host, nick, channel string) string {
	return Numeric(host, RplChannelModeIs, nick, channel, "+")
}

// UnknownMode rejects any attempt to set a mode.
func UnknownMode(host, nick, mode string) string {
	return Numeric(host, ErrUnknownMode, nick, mode, ":is unknown mode char to me")
}

// NoTopic is the first JOIN follow-up.
func NoTopic(host, nick, channel string) string {
	return Numeric(host, RplNoTopic, nick, channel, ":No topic is set")
}

// Names lists channel members after a JOIN.
func Names(host, nick, channel string, members []string) string {
	return Numeric(host, RplNamReply, nick, "=", channel, ":"+strings.Join(members, " "))
}

// EndOfNames closes a name list.
func EndOfNames(host, nick, channel string) string {
	return Numeric(host, RplEndOfNames, nick, channel, ":End of /NAMES list")
}

// Pong echoes a PING token back to the client.
func Pong(host, token string) string {
	return ":" + host + " " + host + " " + token + CRLF
}

// PrivMsg relays a message from label to target.
func PrivMsg(label, target, message string) string {
	return label + " PRIVMSG " + target + " " + message + CRLF
}

// JoinNotice announces that label joined channel.
func JoinNotice(label, channel string) string {
	return label + " JOIN " + channel + CRLF
}

// NickNotice announces a nickname change.
func NickNotice(label, nick string) string {
	return label + " NICK " + nick + CRLF
}

// QuitNotice tells channel peers that label left the network.
func QuitNotice(label, reason string) string {
	return label + " QUIT :" + reason + CRLF
}

// ClosingLink is the final record written before the server closes a
// connection.
func ClosingLink(reason string) string {
	return "ERROR :" + reason + CRLF
}

func orStar(nick string) string {
	if nick == "" {
		return "*"
	}
	return nick
}
