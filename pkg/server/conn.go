package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/NicolasHaas/gorelay/pkg/logging"
	"github.com/NicolasHaas/gorelay/pkg/protocol"
)

// LineConn is a line-oriented client transport. One goroutine reads and
// another writes; deadlines may be set from any goroutine.
type LineConn interface {
	ReadLine() (string, error)
	WriteLine(record string) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Transport() string
	Close() error
}

// tcpConn frames a stream socket into CRLF/LF terminated lines.
type tcpConn struct {
	conn  net.Conn
	lines *protocol.LineReader
}

func newTCPConn(conn net.Conn, maxLine int) *tcpConn {
	return &tcpConn{conn: conn, lines: protocol.NewLineReader(conn, maxLine)}
}

func (c *tcpConn) ReadLine() (string, error)          { return c.lines.ReadLine() }
func (c *tcpConn) WriteLine(record string) error      { return protocol.WriteLine(c.conn, record) }
func (c *tcpConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *tcpConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *tcpConn) RemoteAddr() string                 { return c.conn.RemoteAddr().String() }
func (c *tcpConn) Transport() string                  { return "tcp" }
func (c *tcpConn) Close() error                       { return c.conn.Close() }

// serveConn runs one connection until the client leaves, its transport fails
// or ctx is cancelled. The reader parses lines and drives the Session; the
// writer drains the mailbox to the socket. Neither ever waits on the other,
// so a client can always queue replies to itself.
func (s *Server) serveConn(ctx context.Context, lc LineConn) {
	id := ulid.Make().String()
	remote := lc.RemoteAddr()
	log := logging.ForConn(id, remote)
	m := s.hub.metrics

	m.TotalConnections.Add(1)
	m.ActiveConnections.Add(1)
	defer func() {
		m.ActiveConnections.Add(-1)
		m.TotalDisconnects.Add(1)
	}()
	log.Debug("connection opened", "transport", lc.Transport())

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	mb := NewMailbox(s.cfg.MailboxSize)
	sess := s.hub.Register(connCtx, id, remote, lc.Transport(), mb)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		if err := s.writeLoop(connCtx, lc, mb); err != nil && !isExpectedCloseError(err) {
			log.Warn("write failed", "err", err)
		}
	}()

	// unblock ReadLine once the connection is cancelled
	stop := context.AfterFunc(connCtx, func() { _ = lc.SetReadDeadline(time.Now()) })
	defer stop()

	err := s.readLoop(connCtx, lc, sess, log)
	if err != nil && !errors.Is(err, ErrQuit) && !errors.Is(err, context.Canceled) {
		log.Warn("connection ended", "err", err)
	}

	sess.Close(sess.QuitReason(err))
	mb.Close()
	<-writerDone

	if err := lc.Close(); err != nil && !isExpectedCloseError(err) {
		log.Debug("close failed", "err", err)
	}
}

// readLoop feeds parsed lines to the session. A panic in a handler ends
// this connection only.
func (s *Server) readLoop(ctx context.Context, lc LineConn, sess *Session, log *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("session panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("server: session panic: %v", r)
		}
	}()

	limiter := newFloodLimiter(s.cfg.FloodBurst, s.cfg.FloodInterval, nil)
	for {
		line, err := lc.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isExpectedCloseError(err) {
				return nil
			}
			return fmt.Errorf("server: read: %w", err)
		}
		if line == "" {
			continue
		}
		if !limiter.allow() {
			s.hub.metrics.FloodDrops.Add(1)
			log.Warn("flood limit exceeded, dropping line", "burst", s.cfg.FloodBurst, "interval", s.cfg.FloodInterval)
			continue
		}
		if err := sess.Handle(ctx, protocol.Parse(line)); err != nil {
			return err
		}
	}
}

// writeLoop writes mailbox records until the mailbox or ctx is done, then
// flushes whatever is still queued. It closes the mailbox on exit so
// senders stop waiting on a dead connection.
func (s *Server) writeLoop(ctx context.Context, lc LineConn, mb *Mailbox) error {
	defer mb.Close()
	for {
		select {
		case record := <-mb.Records():
			if err := s.writeRecord(lc, record); err != nil {
				return err
			}
		case <-mb.Done():
			return s.flush(lc, mb)
		case <-ctx.Done():
			return s.flush(lc, mb)
		}
	}
}

func (s *Server) flush(lc LineConn, mb *Mailbox) error {
	for {
		select {
		case record := <-mb.Records():
			if err := s.writeRecord(lc, record); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Server) writeRecord(lc LineConn, record string) error {
	if err := lc.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("server: set write deadline: %w", err)
	}
	return lc.WriteLine(record)
}

// isExpectedCloseError filters the errors a normal disconnect produces.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || isWebSocketClose(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe")
}
