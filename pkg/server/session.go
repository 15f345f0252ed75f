package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NicolasHaas/gorelay/pkg/model"
	"github.com/NicolasHaas/gorelay/pkg/protocol"
)

// ErrQuit is returned by Handle after a QUIT; the connection should close.
var ErrQuit = errors.New("server: client quit")

// Session is one connection's registration state machine. Handle is called
// from the connection's reader goroutine only; the accessors may be called
// from anywhere.
type Session struct {
	hub       *Hub
	id        string
	addr      string
	transport string
	mb        *Mailbox
	log       *slog.Logger

	mu            sync.Mutex
	identity      model.Identity
	authenticated bool
	quitMessage   string
	closed        bool
}

// ID returns the connection ID.
func (s *Session) ID() string { return s.id }

// Mailbox returns the connection's outbound queue.
func (s *Session) Mailbox() *Mailbox { return s.mb }

// Identity returns a copy of the current identity.
func (s *Session) Identity() model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Authenticated reports whether registration has completed.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Handle dispatches one parsed command. A returned error means the
// connection must end: either ErrQuit or a failure to queue a reply on the
// session's own mailbox. Problems caused by the client are answered with
// error records, not errors.
func (s *Session) Handle(ctx context.Context, cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.Nick:
		return s.handleNick(ctx, c)
	case protocol.User:
		return s.handleUser(ctx, c)
	case protocol.Password:
		return s.handlePassword(ctx)
	case protocol.PrivateMessage:
		return s.handlePrivateMessage(ctx, c)
	case protocol.ChannelMessage:
		return s.handleChannelMessage(ctx, c)
	case protocol.Join:
		return s.handleJoin(ctx, c)
	case protocol.Mode:
		return s.handleMode(ctx, c)
	case protocol.Quit:
		return s.handleQuit(ctx, c)
	case protocol.Ping:
		return s.reply(ctx, protocol.Pong(s.hub.host, c.Server))
	case protocol.Malformed:
		s.hub.metrics.MalformedLines.Add(1)
		s.log.Debug("ignoring unrecognised line", "line", c.Line)
		return nil
	default:
		s.log.Debug("ignoring command", "type", fmt.Sprintf("%T", cmd))
		return nil
	}
}

func (s *Session) reply(ctx context.Context, record string) error {
	if err := s.mb.Send(ctx, record); err != nil {
		return fmt.Errorf("server: reply: %w", err)
	}
	return nil
}

// snapshot returns identity and registration state under the lock.
func (s *Session) snapshot() (model.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.authenticated
}

func (s *Session) label(id model.Identity) string {
	return protocol.Label(id.Nickname, id.Username, s.hub.host)
}

// ----- Registration -----

func (s *Session) handleNick(ctx context.Context, c protocol.Nick) error {
	id, registered := s.snapshot()
	host := s.hub.host
	nick := c.Nickname

	if nick == id.Nickname && nick != "" {
		return nil
	}
	if err := model.ValidateNickname(nick); err != nil {
		if errors.Is(err, model.ErrNicknameEmpty) {
			return s.reply(ctx, protocol.NoNicknameGiven(host, id.Nickname))
		}
		return s.reply(ctx, protocol.ErroneusNickname(host, id.Nickname, nick))
	}

	if !s.hub.conns.ClaimNickname(s.mb, nick) {
		s.hub.metrics.NicknameCollisions.Add(1)
		s.log.Debug("nickname in use", "nick", nick)
		return s.reply(ctx, protocol.NicknameInUse(host, nick))
	}

	s.mu.Lock()
	old := s.identity.Nickname
	s.identity.Nickname = nick
	s.mu.Unlock()

	if err := s.hub.store.SetConnectionNickname(ctx, s.id, nick); err != nil {
		s.log.Warn("connection audit nick failed", "err", err)
	}

	if old != "" {
		// Memberships move before old is released, so a newcomer claiming
		// old never finds or inherits them.
		s.hub.channels.RenameNick(old, nick)
		s.hub.conns.ReleaseNickname(s.mb, old)
		if registered {
			notice := protocol.NickNotice(s.label(id), nick)
			s.hub.conns.SendTo(ctx, s.hub.channels.Peers(nick), notice)
			if err := s.reply(ctx, notice); err != nil {
				return err
			}
		}
		s.log.Info("nickname changed", "old", old, "nick", nick)
	}
	return s.checkRegistration(ctx)
}

func (s *Session) handleUser(ctx context.Context, c protocol.User) error {
	s.mu.Lock()
	s.identity.Username = c.Username
	s.identity.Hostname = c.Hostname
	s.identity.Realname = c.Realname
	s.mu.Unlock()
	return s.checkRegistration(ctx)
}

// checkRegistration fires the welcome the first time both nickname and
// username are present.
func (s *Session) checkRegistration(ctx context.Context) error {
	s.mu.Lock()
	if s.authenticated || !s.identity.Complete() {
		s.mu.Unlock()
		return nil
	}
	s.authenticated = true
	nick := s.identity.Nickname
	s.mu.Unlock()

	s.hub.metrics.Registrations.Add(1)
	s.log.Info("client registered", "nick", nick)
	return s.reply(ctx, protocol.Welcome(s.hub.host, nick))
}

// handlePassword accepts PASS silently before registration; there is no
// password check.
func (s *Session) handlePassword(ctx context.Context) error {
	id, registered := s.snapshot()
	if registered {
		return s.reply(ctx, protocol.AlreadyRegistered(s.hub.host, id.Nickname))
	}
	return nil
}

// ----- Messaging -----

func (s *Session) handlePrivateMessage(ctx context.Context, c protocol.PrivateMessage) error {
	id, registered := s.snapshot()
	if !registered {
		return s.reply(ctx, protocol.NotRegistered(s.hub.host, id.Nickname))
	}

	receivers := make([]string, 0, len(c.Receivers))
	for _, r := range c.Receivers {
		if r != "" {
			receivers = append(receivers, r)
		}
	}

	delivered, skipped := s.hub.conns.Deliver(ctx, s.label(id), c.Message, receivers)
	s.hub.metrics.MessagesRelayed.Add(int64(delivered))
	for _, target := range skipped {
		s.hub.metrics.UnknownRecipients.Add(1)
		if err := s.reply(ctx, protocol.NoSuchNick(s.hub.host, id.Nickname, target)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handleChannelMessage(ctx context.Context, c protocol.ChannelMessage) error {
	id, registered := s.snapshot()
	host := s.hub.host
	if !registered {
		return s.reply(ctx, protocol.NotRegistered(host, id.Nickname))
	}
	if model.ValidateChannelName(c.Channel) != nil || !s.hub.channels.Exists(c.Channel) {
		return s.reply(ctx, protocol.NoSuchChannel(host, id.Nickname, c.Channel))
	}

	members := s.hub.channels.Members(c.Channel)
	recipients := members[:0]
	for _, m := range members {
		if m != id.Nickname {
			recipients = append(recipients, m)
		}
	}
	n := s.hub.conns.SendTo(ctx, recipients, protocol.PrivMsg(s.label(id), c.Channel, c.Message))
	s.hub.metrics.MessagesRelayed.Add(int64(n))
	return nil
}

// ----- Channels -----

// handleJoin adds the session to each channel in turn. The JOIN notice goes
// to every member, the joiner included, and the joiner then gets the topic
// and name list. Since all of the joiner's records pass through its own
// mailbox, its notice always precedes the follow-ups. Keys are accepted but
// not checked.
func (s *Session) handleJoin(ctx context.Context, c protocol.Join) error {
	id, registered := s.snapshot()
	host := s.hub.host
	if !registered {
		return s.reply(ctx, protocol.NotRegistered(host, id.Nickname))
	}

	label := s.label(id)
	for i, channel := range c.Channels {
		if err := model.ValidateChannelName(channel); err != nil {
			if err := s.reply(ctx, protocol.NoSuchChannel(host, id.Nickname, channel)); err != nil {
				return err
			}
			continue
		}

		res := s.hub.channels.Join(channel, id.Nickname)
		if res.Created {
			s.hub.metrics.ChannelsCreated.Add(1)
			s.hub.catalogChannel(ctx, channel)
		}
		if !res.Added {
			continue
		}
		s.hub.metrics.ChannelJoins.Add(1)
		s.log.Debug("joined channel", "channel", channel, "members", len(res.Members), "keyed", c.Key(i) != "")

		s.hub.conns.SendTo(ctx, res.Members, protocol.JoinNotice(label, channel))
		for _, record := range []string{
			protocol.NoTopic(host, id.Nickname, channel),
			protocol.Names(host, id.Nickname, channel, res.Members),
			protocol.EndOfNames(host, id.Nickname, channel),
		} {
			if err := s.reply(ctx, record); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleMode answers queries with an empty mode set and rejects changes.
func (s *Session) handleMode(ctx context.Context, c protocol.Mode) error {
	id, registered := s.snapshot()
	host := s.hub.host
	if !registered {
		return s.reply(ctx, protocol.NotRegistered(host, id.Nickname))
	}
	if c.HasMode {
		return s.reply(ctx, protocol.UnknownMode(host, id.Nickname, c.Mode))
	}
	if !s.hub.channels.Exists(c.Channel) {
		return s.reply(ctx, protocol.NoSuchChannel(host, id.Nickname, c.Channel))
	}
	return s.reply(ctx, protocol.ChannelModeIs(host, id.Nickname, c.Channel))
}

// ----- Connection -----

func (s *Session) handleQuit(ctx context.Context, c protocol.Quit) error {
	msg := "Client Quit"
	if c.HasMessage {
		msg = c.Message
	}
	s.mu.Lock()
	s.quitMessage = msg
	s.mu.Unlock()

	closing := fmt.Sprintf("Closing Link: %s (Quit: %s)", s.hub.host, msg)
	if err := s.reply(ctx, protocol.ClosingLink(closing)); err != nil {
		return err
	}
	return ErrQuit
}

// QuitReason is the reason peers see when this session ends because of
// the given loop error.
func (s *Session) QuitReason(err error) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.quitMessage != "":
		return "Quit: " + s.quitMessage
	case err == nil:
		return "Connection closed"
	case errors.Is(err, context.Canceled):
		return "Server shutting down"
	default:
		return "Connection error"
	}
}

// Close deregisters the session. Its nickname leaves every channel
// (channels stay) before the registry releases it, so a reconnect under
// the same nickname cannot lose a fresh membership. Channel peers get a
// QUIT notice and the audit record is closed. Safe to call more than once.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	id, registered := s.identity, s.authenticated
	s.mu.Unlock()

	ctx, cancel := s.hub.sendContext()
	defer cancel()

	var peers, left []string
	if id.HasNickname() {
		peers = s.hub.channels.Peers(id.Nickname)
		left = s.hub.channels.RemoveNick(id.Nickname)
	}
	s.hub.conns.Unregister(s.addr, s.mb)

	if registered && len(peers) > 0 {
		s.hub.conns.SendTo(ctx, peers, protocol.QuitNotice(s.label(id), reason))
	}
	if len(left) > 0 {
		s.log.Debug("left channels", "nick", id.Nickname, "channels", left)
	}

	if err := s.hub.store.CloseConnection(ctx, s.id, time.Now()); err != nil {
		s.log.Warn("connection audit close failed", "err", err)
	}
	s.log.Info("session closed", "nick", id.Nickname, "reason", reason)
}
