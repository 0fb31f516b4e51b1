// Package security evaluates memory bank operations against a configurable
// policy. Every mutating or command-class operation passes through exactly
// one Check call; decisions are never cached, so each request is judged on
// its own.
package security

import (
	"context"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// OpKind classifies an operation for policy purposes.
type OpKind string

const (
	OpRead    OpKind = "read"
	OpWrite   OpKind = "write"
	OpCommand OpKind = "command"
)

// Operation describes one requested action. FileType is set for read/write,
// Command and Args for command-class operations.
type Operation struct {
	Kind          OpKind
	FileType      string
	ContentLength int
	Command       string
	Args          []string
}

// Decision is the outcome of a policy check. Reason is set when denied.
type Decision struct {
	Allowed bool
	Reason  string
}

// Policy is the interface the protocol server consumes. Implementations must
// be safe for concurrent use.
type Policy interface {
	Check(ctx context.Context, op Operation) Decision
}

// Config holds the rule set for the default policy.
type Config struct {
	// ReadOnly denies every write operation.
	ReadOnly bool `yaml:"read_only"`
	// MaxContentBytes caps write payload size. Zero means no cap.
	MaxContentBytes int `yaml:"max_content_bytes"`
	// DenyPatterns are doublestar globs matched against the file type of
	// read and write operations.
	DenyPatterns []string `yaml:"deny_patterns"`
	// AllowedCommands is the allow-list for command-class operations.
	AllowedCommands []string `yaml:"allowed_commands"`
}

// DefaultConfig permits normal memory bank use: writes capped at 1 MiB and
// export as the only command.
func DefaultConfig() Config {
	return Config{
		MaxContentBytes: 1 << 20,
		AllowedCommands: []string{"export_memory_bank"},
	}
}

// RulePolicy is the config-driven Policy implementation.
type RulePolicy struct {
	cfg Config
}

var _ Policy = (*RulePolicy)(nil)

// NewRulePolicy creates a policy from the given configuration.
func NewRulePolicy(cfg Config) *RulePolicy {
	return &RulePolicy{cfg: cfg}
}

func deny(reason string) Decision { return Decision{Reason: reason} }

func allow() Decision { return Decision{Allowed: true} }

// Check evaluates one operation. Pattern errors count as denials: a policy
// that cannot be evaluated must not grant access.
func (p *RulePolicy) Check(_ context.Context, op Operation) Decision {
	switch op.Kind {
	case OpRead:
		return p.checkPath(op.FileType)
	case OpWrite:
		if p.cfg.ReadOnly {
			return deny("memory bank is read-only")
		}
		if d := p.checkPath(op.FileType); !d.Allowed {
			return d
		}
		if p.cfg.MaxContentBytes > 0 && op.ContentLength > p.cfg.MaxContentBytes {
			return deny("content exceeds maximum allowed size")
		}
		return allow()
	case OpCommand:
		for _, name := range p.cfg.AllowedCommands {
			if name == op.Command {
				return allow()
			}
		}
		return deny("command " + op.Command + " is not allow-listed")
	default:
		return deny("unknown operation kind " + string(op.Kind))
	}
}

// checkPath rejects traversal shapes before consulting deny patterns. File
// types are bare names; anything that looks like a path is hostile.
func (p *RulePolicy) checkPath(fileType string) Decision {
	if fileType == "" {
		return deny("empty file type")
	}
	if strings.ContainsAny(fileType, `/\`) || strings.Contains(fileType, "..") {
		return deny("file type must not contain path separators")
	}
	for _, pattern := range p.cfg.DenyPatterns {
		matched, err := doublestar.Match(pattern, fileType)
		if err != nil {
			return deny("invalid deny pattern " + pattern)
		}
		if matched {
			return deny("file type " + fileType + " is denied by policy")
		}
	}
	return allow()
}
