// Package server implements the relay: the nickname and channel registries,
// per-connection sessions and the supervisor that accepts and runs
// connections.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/NicolasHaas/gorelay/pkg/datastore"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store datastore.DataStore
}

// Server is the connection supervisor.
type Server struct {
	cfg Config
	hub *Hub

	ln      net.Listener
	httpLn  net.Listener
	httpSrv *http.Server

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup // accept loop and connection goroutines

	shutdownOnce sync.Once
	shutdownErr  error

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server instance. A nil Store runs on an in-memory
// datastore.
func New(cfg Config, deps Dependencies) *Server {
	cfg = cfg.sanitize()
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		hub:    NewHub(cfg.ServerName, deps.Store, NewMetrics()),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Hub returns the shared registries.
func (s *Server) Hub() *Hub { return s.hub }

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics { return s.hub.metrics }

// Addr returns the bound relay address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start preloads channels, binds the listeners and begins accepting. It
// returns once the server is reachable.
func (s *Server) Start() error {
	if err := s.hub.Preload(s.ctx, s.cfg.Channels); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.ln = ln

	if err := s.startHTTP(); err != nil {
		_ = ln.Close()
		return err
	}

	s.track()
	go s.acceptLoop(ln)

	s.hub.metrics.StartPeriodicLog(s.cfg.MetricsLog, s.ctx.Done())
	slog.Info("relay listening", "addr", ln.Addr().String(), "server_name", s.cfg.ServerName)
	return nil
}

// track registers one more goroutine with the shutdown wait group. It
// fails once shutdown has begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

// acceptLoop hands every accepted socket to its own goroutine. Transient
// accept errors are retried with exponential backoff; the loop ends when
// the listener is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0 // retry for as long as the listener is open
	b.Reset()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.hub.metrics.AcceptErrors.Add(1)
			delay := b.NextBackOff()
			slog.Warn("accept error", "err", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-s.ctx.Done():
				return
			}
			continue
		}
		b.Reset()

		if !s.track() {
			_ = conn.Close()
			return
		}
		go func() {
			defer s.wg.Done()
			s.serveConn(s.ctx, newTCPConn(conn, s.cfg.MaxLineLength))
		}()
	}
}
