// Package transport bridges the server's two HTTP channels: the long-lived
// SSE push stream and the request/response message endpoint.
//
// At most one streaming session is live at a time. Opening a new stream
// replaces the old session: the old transport is torn down first and any
// request still addressed to it is rejected. The outbound side of a session
// is a queue fed by completed responses, not a callback chain.
package transport

import (
	"bytes"
	"context"
	"sync"
	"time"

	"membank/internal/host"
	"membank/internal/memerr"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

// Session is one active streaming connection.
type Session struct {
	ID        string
	CreatedAt time.Time

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession() *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		outbound:  make(chan []byte, 16),
		done:      make(chan struct{}),
	}
}

// Send queues one message for delivery down the stream. It reports false
// when the session is already closed; the message is then discarded.
func (s *Session) Send(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.outbound <- msg:
		return true
	case <-s.done:
		return false
	}
}

// Outbound exposes the delivery queue to the stream writer.
func (s *Session) Outbound() <-chan []byte { return s.outbound }

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Dispatcher is the request handler a Manager routes inbound messages to.
type Dispatcher interface {
	Handle(ctx context.Context, raw []byte) []byte
}

// Manager owns the single active session. All transitions on the active
// session happen under one mutex, so two racing opens can never leave two
// transports live at once.
type Manager struct {
	dispatcher     Dispatcher
	host           host.Host
	allowedOrigins []string

	mu     sync.Mutex
	active *Session
}

// NewManager creates a session manager with a fixed origin allow-list.
func NewManager(d Dispatcher, h host.Host, allowedOrigins []string) *Manager {
	return &Manager{dispatcher: d, host: h, allowedOrigins: allowedOrigins}
}

// Open validates the Origin header and installs a new session, replacing
// and tearing down any session that was active. The origin check runs
// before any other work; a rejected open creates no session.
func (m *Manager) Open(origin string) (*Session, error) {
	if !m.originAllowed(origin) {
		return nil, memerr.Errorf(memerr.CodeSecurity, "origin %q is not allowed", origin)
	}

	s := newSession()

	m.mu.Lock()
	old := m.active
	m.active = s
	m.mu.Unlock()

	if old != nil {
		old.close()
		m.host.Log("info", "streaming session replaced", "old", old.ID, "new", s.ID)
	} else {
		m.host.Log("info", "streaming session opened", "session", s.ID)
	}
	return s, nil
}

// Release tears down s and clears it from the manager if it is still the
// active session. A session replaced earlier is just closed again (no-op).
func (m *Manager) Release(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()
	s.close()
}

// CloseActive tears down whatever session is active, if any.
func (m *Manager) CloseActive() {
	m.mu.Lock()
	s := m.active
	m.active = nil
	m.mu.Unlock()
	if s != nil {
		s.close()
	}
}

// ActiveID returns the active session's ID, or "" when none is live.
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.ID
}

// HandleMessage processes one inbound protocol request addressed to
// sessionID (empty means "the active session"). The response is pushed down
// the streaming channel, never returned on the request channel.
//
// A request bound to a replaced session fails with NoActiveSession. A
// request whose session is replaced mid-flight runs to completion and its
// response is discarded silently.
func (m *Manager) HandleMessage(ctx context.Context, sessionID string, body []byte) error {
	if !looksLikeObject(body) {
		return memerr.New(memerr.CodeSchema, "request body must be a JSON object")
	}

	m.mu.Lock()
	s := m.active
	m.mu.Unlock()

	if s == nil {
		return memerr.New(memerr.CodeNoSession, "no active streaming session")
	}
	if sessionID != "" && sessionID != s.ID {
		return memerr.Errorf(memerr.CodeNoSession, "session %s is no longer active", sessionID)
	}

	resp := m.dispatcher.Handle(ctx, body)
	if resp == nil {
		// Notification: nothing to deliver.
		return nil
	}

	m.mu.Lock()
	stillActive := m.active == s
	m.mu.Unlock()
	if !stillActive || !s.Send(resp) {
		m.host.Log("debug", "response discarded, session replaced", "session", s.ID)
	}
	return nil
}

// originAllowed matches origin against the allow-list. Entries may be
// doublestar patterns. Requests that declare no Origin header (non-browser
// clients) are allowed; the check gates cross-origin browser access.
func (m *Manager) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, pattern := range m.allowedOrigins {
		if pattern == origin {
			return true
		}
		if ok, err := doublestar.Match(pattern, origin); err == nil && ok {
			return true
		}
	}
	return false
}

// looksLikeObject reports whether body starts a JSON object. Anything else
// is rejected before the dispatcher parses it.
func looksLikeObject(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}
