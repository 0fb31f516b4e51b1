// Package hosttest provides a recording Host implementation for tests.
package hosttest

import (
	"context"
	"sync"

	"membank/internal/host"
)

// Event is one recorded EmitEvent call.
type Event struct {
	Name    string
	Payload any
}

// Recorder implements host.Host and records every call for assertions. Safe
// for concurrent use.
type Recorder struct {
	mu            sync.Mutex
	events        []Event
	logs          []string
	setupCalls    []int
	teardownCalls int

	// SetupErr, when set, is returned from SetupPlatformIntegration.
	SetupErr error
}

var _ host.Host = (*Recorder)(nil)

// New creates an empty Recorder.
func New() *Recorder { return &Recorder{} }

func (r *Recorder) Log(level, msg string, meta ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, level+": "+msg)
}

func (r *Recorder) EmitEvent(name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Name: name, Payload: payload})
}

func (r *Recorder) SetupPlatformIntegration(_ context.Context, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setupCalls = append(r.setupCalls, port)
	return r.SetupErr
}

func (r *Recorder) TeardownPlatformIntegration(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardownCalls++
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// EventsNamed returns the recorded events with the given name.
func (r *Recorder) EventsNamed(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// Logs returns a copy of the recorded log lines.
func (r *Recorder) Logs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.logs...)
}

// SetupCalls returns the ports passed to SetupPlatformIntegration.
func (r *Recorder) SetupCalls() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.setupCalls...)
}

// TeardownCalls returns how many times teardown ran.
func (r *Recorder) TeardownCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.teardownCalls
}
