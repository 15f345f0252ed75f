package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultConnectionsLimit is the page size of /connections when no limit
// is given.
const DefaultConnectionsLimit = 50

// Handler returns the admin HTTP router: /metrics in Prometheus text
// format, /metrics.json, /healthz, /channels, the /connections audit log
// and, when enabled, the /ws line gateway.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/metrics", s.handleMetrics)
	r.Get("/metrics.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(s.hub.metrics.JSON()))
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/channels", s.handleChannels)
	r.Get("/connections", s.handleConnections)
	r.Get("/connections/{id}", s.handleConnection)
	if s.cfg.WebSocket {
		r.Get("/ws", s.handleWebSocket)
	}
	return r
}

// startHTTP binds HTTPAddr and serves Handler in the background. An empty
// address disables it.
func (s *Server) startHTTP() error {
	if s.cfg.HTTPAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("server: listen http: %w", err)
	}
	s.httpLn = ln
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("admin HTTP listening", "addr", ln.Addr().String(), "websocket", s.cfg.WebSocket)
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("admin HTTP error", "err", err)
		}
	}()
	return nil
}

// HTTPAddr returns the bound admin address, or "" when disabled.
func (s *Server) HTTPAddr() string {
	if s.httpLn == nil {
		return ""
	}
	return s.httpLn.Addr().String()
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.hub.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("gorelay_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("gorelay_connections_active", "Currently open connections.", "gauge",
		m.ActiveConnections.Load())
	write("gorelay_connections_total", "Lifetime connections accepted.", "counter",
		m.TotalConnections.Load())
	write("gorelay_disconnects_total", "Connections that ended.", "counter",
		m.TotalDisconnects.Load())
	write("gorelay_accept_errors_total", "Transient accept failures.", "counter",
		m.AcceptErrors.Load())

	write("gorelay_registrations_total", "Completed registrations.", "counter",
		m.Registrations.Load())
	write("gorelay_nickname_collisions_total", "Rejected nickname claims.", "counter",
		m.NicknameCollisions.Load())

	write("gorelay_messages_relayed_total", "Messages queued for recipients.", "counter",
		m.MessagesRelayed.Load())
	write("gorelay_unknown_recipients_total", "Messages addressed to unknown nicknames.", "counter",
		m.UnknownRecipients.Load())
	write("gorelay_malformed_lines_total", "Ignored unrecognised lines.", "counter",
		m.MalformedLines.Load())
	write("gorelay_flood_drops_total", "Lines dropped by flood control.", "counter",
		m.FloodDrops.Load())

	write("gorelay_channel_joins_total", "New channel memberships.", "counter",
		m.ChannelJoins.Load())
	write("gorelay_channels_created_total", "Channels created by JOIN.", "counter",
		m.ChannelsCreated.Load())
	write("gorelay_channels", "Known channels.", "gauge",
		int64(len(s.hub.channels.Names())))
	write("gorelay_registered_addresses", "Connections in the registry.", "gauge",
		int64(s.hub.conns.Count()))
	write("gorelay_nicknames", "Claimed nicknames.", "gauge",
		int64(len(s.hub.conns.Nicknames())))
}

// handleChannels reports channel name -> member count as JSON.
func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.hub.channels.MemberCounts())
}

// handleConnections lists the most recent audit records. ?limit=N caps the
// result; 0 returns everything.
func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	limit := DefaultConnectionsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.hub.Store().ListConnections(r.Context(), limit)
	if err != nil {
		slog.Error("list connections failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	rec, err := s.hub.Store().GetConnection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		slog.Error("get connection failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "unknown connection", http.StatusNotFound)
		return
	}
	writeJSON(w, rec)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("json response failed", "err", err)
	}
}
