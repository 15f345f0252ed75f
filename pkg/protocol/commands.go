package protocol

// Command is one parsed client line. The set of implementations is closed;
// callers switch on the concrete type.
type Command interface {
	command()
}

// ----- Registration -----

// Nick is "NICK <nickname> [hopcount]".
type Nick struct {
	Nickname string
	HopCount int
}

// User is "USER <username> <hostname> <servername> <realname>".
type User struct {
	Username   string
	Hostname   string
	Servername string
	Realname   string
}

// Password is "PASS <password>".
type Password struct {
	Password string
}

// ----- Messaging -----

// PrivateMessage is a PRIVMSG addressed to one or more nicknames.
type PrivateMessage struct {
	Receivers []string
	Message   string
}

// ChannelMessage is a PRIVMSG whose target starts with '#'.
type ChannelMessage struct {
	Channel string
	Message string
}

// ----- Channels -----

// Join is "JOIN <chan>[,<chan>...] [key[,key...]]". Keys pair with
// channels by index.
type Join struct {
	Channels []string
	Keys     []string
}

// Key returns the key paired with the i-th channel, or "" when the
// channel is keyless.
func (j Join) Key(i int) string {
	if i < 0 || i >= len(j.Keys) {
		return ""
	}
	return j.Keys[i]
}

// Mode is "MODE <channel> [mode]". HasMode is false for a mode query.
type Mode struct {
	Channel string
	Mode    string
	HasMode bool
}

// ----- Connection -----

// Quit is "QUIT [message]".
type Quit struct {
	Message    string
	HasMessage bool
}

// Ping is "PING <server>".
type Ping struct {
	Server string
}

// Malformed stands for any line that is not a recognised, well-formed
// command. It is ignored by the router.
type Malformed struct {
	Line string
}

func (Nick) command()           {}
func (User) command()           {}
func (Password) command()       {}
func (PrivateMessage) command() {}
func (ChannelMessage) command() {}
func (Join) command()           {}
func (Mode) command()           {}
func (Quit) command()           {}
func (Ping) command()           {}
func (Malformed) command()      {}
