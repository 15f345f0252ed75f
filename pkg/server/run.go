package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicolasHaas/gorelay/pkg/protocol"
)

// DefaultShutdownTimeout bounds how long Shutdown waits for connections.
const DefaultShutdownTimeout = 10 * time.Second

// Run starts the server and blocks until a shutdown signal.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		_ = s.hub.store.Close()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down...", "signal", sig.String())
	case <-s.ctx.Done():
	}
	return s.Shutdown(DefaultShutdownTimeout)
}

// Shutdown gracefully stops the server: it stops accepting, tells every
// connection the server is going away, cancels the connection goroutines
// and waits up to timeout for them before closing the store.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		if s.ln != nil {
			_ = s.ln.Close()
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		n := s.hub.conns.Broadcast(ctx, protocol.ClosingLink("Server shutting down"))
		slog.Debug("shutdown notice queued", "connections", n)
		s.cancel()

		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				slog.Warn("admin HTTP shutdown", "err", err)
			}
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.shutdownErr = fmt.Errorf("server: shutdown: connections still open after %s", timeout)
			slog.Warn("shutdown timed out", "active", s.hub.metrics.ActiveConnections.Load())
		}

		if err := s.hub.store.Close(); err != nil && s.shutdownErr == nil {
			s.shutdownErr = fmt.Errorf("server: close store: %w", err)
		}
		s.hub.metrics.LogSummary()
	})
	return s.shutdownErr
}
