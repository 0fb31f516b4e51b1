// Package server wires all components and owns the server lifecycle.
//
// This is the composition root (DIP): it creates concrete implementations
// and injects them into the dispatcher and transport that depend on
// abstractions. No business logic lives here — only wiring and start/stop
// sequencing.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"membank/internal/bank"
	"membank/internal/config"
	"membank/internal/host"
	"membank/internal/memerr"
	"membank/internal/protocol"
	"membank/internal/security"
	"membank/internal/transport"
	"membank/internal/validation"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Name identifies the server in protocol handshakes.
const Name = "membank"

// shutdownTimeout bounds how long Stop waits for in-flight requests.
const shutdownTimeout = 5 * time.Second

// Status is a point-in-time snapshot of the server state.
type Status struct {
	Running  bool   `json:"running"`
	Port     int    `json:"port"`
	Platform string `json:"platform"`
}

// Server is the lifecycle controller: it binds the listener, runs the HTTP
// transport, and reports state transitions to the host.
type Server struct {
	opts    config.Options
	host    host.Host
	manager *transport.Manager
	handler http.Handler

	// mu serializes Start and Stop. It is held across blocking work
	// (bind, integration hooks, shutdown), so Status must never take it.
	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener

	// stateMu guards the snapshot Status reads. It is only ever held for
	// a field copy, never across a suspension point.
	stateMu sync.Mutex
	running bool
	port    int
}

// New resolves all dependencies and returns a stopped server. The returned
// cleanup function closes the document store and must be called on
// shutdown (typically via defer). It is always non-nil.
func New(opts config.Options, h host.Host) (*Server, func(), error) {
	store, err := bank.New(bank.Config{DataDir: opts.DataDir, SeedDefaults: opts.SeedDefaults})
	if err != nil {
		return nil, noop, fmt.Errorf("opening document store: %w", err)
	}

	policy := security.NewRulePolicy(opts.Security)
	gate := validation.NewGate(opts.MaxContentBytes)
	dispatcher := protocol.NewDispatcher(store, policy, gate, h, protocol.Info{Name: Name, Version: Version})
	manager := transport.NewManager(dispatcher, h, opts.AllowedOrigins)

	s := &Server{
		opts:    opts,
		host:    h,
		manager: manager,
		handler: transport.NewHandler(manager, Version, opts.Platform),
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			h.Log("warn", "closing document store", "error", err)
		}
	}
	return s, cleanup, nil
}

func noop() {}

// Start binds the listener and begins serving. Exactly one bind happens per
// running server: calling Start while running logs a warning and returns
// nil without touching the socket. A port conflict is reported as
// PortInUse; every other bind or integration failure as ServerStartError.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status().Running {
		s.host.Log("warn", "start requested while already running", "port", s.opts.Port)
		return nil
	}

	addr := fmt.Sprintf("127.0.0.1:%d", s.opts.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if isAddrInUse(err) {
			return memerr.Wrap(memerr.CodePortInUse, fmt.Sprintf("port %d is already in use", s.opts.Port), err)
		}
		return memerr.Wrap(memerr.CodeServerStart, "failed to bind listener", err)
	}

	// Configured port 0 means "pick one"; everything downstream sees the
	// port actually bound.
	port := ln.Addr().(*net.TCPAddr).Port

	if err := s.host.SetupPlatformIntegration(ctx, port); err != nil {
		ln.Close()
		return memerr.Wrap(memerr.CodeServerStart, "platform integration setup failed", err)
	}

	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.handler}
	s.setState(true, port)

	go func(srv *http.Server, ln net.Listener) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.host.Log("error", "http server terminated", "error", err)
		}
	}(s.httpSrv, ln)

	s.host.Log("info", "server started", "port", port, "platform", s.opts.Platform)
	s.host.EmitEvent("serverStarted", map[string]any{
		"port":     port,
		"platform": s.opts.Platform,
	})
	return nil
}

// Stop tears down platform integration, discards the active session, and
// drains in-flight requests. The session is closed before Shutdown: an open
// stream never goes idle on its own, so shutting down around a live SSE
// handler would wait out the full timeout. Calling Stop while stopped logs
// a warning and returns nil.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Status().Running {
		s.host.Log("warn", "stop requested while not running")
		return nil
	}

	if err := s.host.TeardownPlatformIntegration(ctx); err != nil {
		s.host.Log("warn", "platform integration teardown failed", "error", err)
	}

	s.manager.CloseActive()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.host.Log("warn", "http shutdown did not complete cleanly", "error", err)
	}

	s.httpSrv = nil
	s.listener = nil
	s.setState(false, 0)

	s.host.Log("info", "server stopped")
	s.host.EmitEvent("serverStopped", nil)
	return nil
}

func (s *Server) setState(running bool, port int) {
	s.stateMu.Lock()
	s.running = running
	s.port = port
	s.stateMu.Unlock()
}

// Status reports the current state without side effects. It never blocks on
// an in-progress Start or Stop.
func (s *Server) Status() Status {
	s.stateMu.Lock()
	running, port := s.running, s.port
	s.stateMu.Unlock()
	if !running {
		port = s.opts.Port
	}
	return Status{Running: running, Port: port, Platform: s.opts.Platform}
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
