package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn carries protocol lines over text frames. A frame may hold several
// newline separated lines; each outbound record is sent as its own frame
// without the CRLF.
type wsConn struct {
	conn    *websocket.Conn
	remote  string
	maxLine int
	pending []string
}

func newWSConn(conn *websocket.Conn, remote string, maxLine int) *wsConn {
	// room for a batch of lines in one frame
	conn.SetReadLimit(int64(maxLine+2) * 16)
	return &wsConn{conn: conn, remote: remote, maxLine: maxLine}
}

func (c *wsConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind != websocket.TextMessage {
			continue
		}
		text := strings.TrimRight(string(data), "\r\n")
		c.pending = strings.Split(text, "\n")
	}
	line := strings.TrimSuffix(c.pending[0], "\r")
	c.pending = c.pending[1:]
	if len(line) > c.maxLine {
		line = line[:c.maxLine]
	}
	return line, nil
}

func (c *wsConn) WriteLine(record string) error {
	return c.conn.WriteMessage(websocket.TextMessage, []byte(strings.TrimRight(record, "\r\n")))
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *wsConn) RemoteAddr() string                 { return c.remote }
func (c *wsConn) Transport() string                  { return "websocket" }

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

func isWebSocketClose(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) || errors.Is(err, websocket.ErrCloseSent)
}

// handleWebSocket upgrades the request and serves it as a relay connection
// until the client leaves.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	s.serveConn(s.ctx, newWSConn(conn, r.RemoteAddr, s.cfg.MaxLineLength))
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients) and otherwise requires a configured origin. An empty list or
// "*" allows everything.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	allowed := s.cfg.AllowedOrigins
	if origin == "" || len(allowed) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	normalized := strings.ToLower(u.Scheme + "://" + u.Host)
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimRight(strings.TrimSpace(a), "/"))
		if a == "*" || a == normalized {
			return true
		}
	}
	return false
}
