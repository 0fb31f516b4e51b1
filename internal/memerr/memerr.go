// Package memerr defines the typed error taxonomy shared by every layer of
// the memory bank server.
//
// Each error carries a stable Code so that the transport boundary can map a
// failure to the right JSON-RPC error and HTTP status without inspecting
// message text. Collaborator failures are re-wrapped with a code before they
// reach the wire; nothing crosses the transport as a bare error.
package memerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure. Codes are part of the wire contract:
// clients branch on them, so they never change once published.
type Code string

const (
	// CodeSchema marks a malformed request shape. Never retried; the client
	// must fix its input.
	CodeSchema Code = "SCHEMA_ERROR"

	// CodeSecurity marks a policy denial, a rejected origin, or a rejected
	// resource URI prefix. Never retried without changing the request.
	CodeSecurity Code = "SECURITY_VIOLATION"

	// CodeNotFound marks a referenced document, tool, or prompt that does
	// not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeUnknownTool marks a call-tool request naming an unregistered tool.
	CodeUnknownTool Code = "UNKNOWN_TOOL"

	// CodeUnknownPrompt marks a get-prompt request naming an unregistered
	// prompt.
	CodeUnknownPrompt Code = "UNKNOWN_PROMPT"

	// CodeNoSession marks a protocol request that arrived while no streaming
	// session was active. Retryable: the client must reopen the stream.
	CodeNoSession Code = "NO_ACTIVE_SESSION"

	// CodePortInUse marks a bind failure caused by the configured port being
	// occupied. Callers may retry on a different port.
	CodePortInUse Code = "PORT_IN_USE"

	// CodeServerStart marks any other startup failure.
	CodeServerStart Code = "SERVER_START_ERROR"

	// CodeStoreUnavailable marks a document store failure. Surfaced as-is,
	// never retried internally.
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"

	// CodeInternal marks an unexpected failure, including recovered panics.
	CodeInternal Code = "INTERNAL_ERROR"
)

// Error is the concrete error type carried through the server. It wraps an
// optional cause and supports errors.Is/errors.As matching on the code.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that records cause for unwrapping. A nil cause is
// allowed and equivalent to New.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, memerr.New(memerr.CodeSecurity, "")) matches by code alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the Code from err, walking the wrap chain. Errors outside
// this taxonomy report CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps a code to the HTTP status used when the failure surfaces
// at the HTTP layer rather than inside a protocol response.
func HTTPStatus(code Code) int {
	switch code {
	case CodeSecurity:
		return http.StatusForbidden
	case CodeNoSession:
		return http.StatusServiceUnavailable
	case CodeSchema, CodeNotFound, CodeUnknownTool, CodeUnknownPrompt, CodeStoreUnavailable:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// JSON-RPC 2.0 error codes. The reserved range covers shape problems; domain
// failures use implementation-defined codes below -32000.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
	rpcSecurity       = -32001
	rpcNotFound       = -32002
	rpcNoSession      = -32003
	rpcStoreFailure   = -32004
)

// RPCCode maps a taxonomy code to the numeric JSON-RPC error code placed in
// protocol error responses. The stable string code travels in error data.
func RPCCode(code Code) int {
	switch code {
	case CodeSchema:
		return rpcInvalidParams
	case CodeUnknownTool, CodeUnknownPrompt:
		return rpcMethodNotFound
	case CodeSecurity:
		return rpcSecurity
	case CodeNotFound:
		return rpcNotFound
	case CodeNoSession:
		return rpcNoSession
	case CodeStoreUnavailable:
		return rpcStoreFailure
	default:
		return rpcInternalError
	}
}

// RPCParseError, RPCInvalidRequest, and RPCMethodNotFound are exposed for
// the dispatch layer, which rejects undecodable frames and unknown methods
// before a taxonomy code exists.
const (
	RPCParseError     = rpcParseError
	RPCInvalidRequest = rpcInvalidRequest
	RPCMethodNotFound = rpcMethodNotFound
)
