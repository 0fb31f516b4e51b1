// Package host defines the platform collaborator the server reports to.
//
// The editor/host integration (command registration, panels, workspace
// discovery) lives outside this module; the server only needs a place to
// send logs and lifecycle events and two hooks bracketing the listening
// socket's lifetime.
package host

import (
	"context"

	"membank/internal/logging"
)

// Host is the platform-integration surface consumed by the server. A Host
// is constructed by the embedding application and may outlive the server.
type Host interface {
	// Log records a diagnostic message. Level is one of debug, info, warn,
	// error; unknown levels fall back to info.
	Log(level, msg string, meta ...any)
	// EmitEvent delivers a named lifecycle or activity event to the host.
	EmitEvent(name string, payload any)
	// SetupPlatformIntegration is invoked once per successful start, after
	// the socket is bound, with the bound port.
	SetupPlatformIntegration(ctx context.Context, port int) error
	// TeardownPlatformIntegration is invoked once per stop, before the
	// socket is closed.
	TeardownPlatformIntegration(ctx context.Context) error
}

// LoggerHost is the default Host for standalone use: events are logged and
// the platform hooks are no-ops.
type LoggerHost struct {
	Logger *logging.AppLogger
}

var _ Host = (*LoggerHost)(nil)

// NewLoggerHost creates a LoggerHost over the given logger.
func NewLoggerHost(logger *logging.AppLogger) *LoggerHost {
	return &LoggerHost{Logger: logger}
}

func (h *LoggerHost) Log(level, msg string, meta ...any) {
	switch level {
	case "debug":
		h.Logger.Debug(msg, meta...)
	case "warn":
		h.Logger.Warn(msg, meta...)
	case "error":
		h.Logger.Error(msg, meta...)
	default:
		h.Logger.Info(msg, meta...)
	}
}

func (h *LoggerHost) EmitEvent(name string, payload any) {
	h.Logger.Info("event", "name", name, "payload", payload)
}

func (h *LoggerHost) SetupPlatformIntegration(context.Context, int) error { return nil }

func (h *LoggerHost) TeardownPlatformIntegration(context.Context) error { return nil }
