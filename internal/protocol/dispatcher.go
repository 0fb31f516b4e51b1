// Package protocol implements the MCP request dispatcher for the memory
// bank server.
//
// Incoming JSON-RPC requests are decoded into a closed set of verbs and
// routed to one handler per verb, registered once at construction. Handler
// failures always surface as structured protocol errors carrying a stable
// taxonomy code; a panic inside a handler is recovered and reported as an
// internal error rather than escaping to the transport.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"

	"membank/internal/bank"
	"membank/internal/host"
	"membank/internal/memerr"
	"membank/internal/security"
	"membank/internal/validation"
)

// verb enumerates the protocol surface. The dispatch switch over this set
// is exhaustive: adding a verb without a handler is a compile-time-visible
// change, not a silent fallthrough.
type verb int

const (
	verbInitialize verb = iota
	verbInitialized
	verbPing
	verbListResources
	verbReadResource
	verbListTools
	verbCallTool
	verbListPrompts
	verbGetPrompt
)

// parseVerb maps a JSON-RPC method name onto the verb union.
func parseVerb(method string) (verb, bool) {
	switch method {
	case "initialize":
		return verbInitialize, true
	case "notifications/initialized":
		return verbInitialized, true
	case "ping":
		return verbPing, true
	case "resources/list":
		return verbListResources, true
	case "resources/read":
		return verbReadResource, true
	case "tools/list":
		return verbListTools, true
	case "tools/call":
		return verbCallTool, true
	case "prompts/list":
		return verbListPrompts, true
	case "prompts/get":
		return verbGetPrompt, true
	default:
		return 0, false
	}
}

// Info identifies the server in the initialize handshake.
type Info struct {
	Name    string
	Version string
}

// Dispatcher routes decoded protocol requests to their handlers. It holds
// its collaborators by reference and adds no locking of its own: the store
// is safe for concurrent use per its contract, and policy and validation
// are stateless.
type Dispatcher struct {
	store  bank.Store
	policy security.Policy
	gate   *validation.Gate
	host   host.Host
	info   Info
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(store bank.Store, policy security.Policy, gate *validation.Gate, h host.Host, info Info) *Dispatcher {
	return &Dispatcher{store: store, policy: policy, gate: gate, host: h, info: info}
}

// Handle processes one raw protocol request and returns the encoded
// response, or nil when the request is a notification.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) []byte {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return rawErrorResponse(nil, memerr.RPCParseError, "parse error: "+err.Error(), memerr.CodeSchema)
	}
	if req.JSONRPC != "2.0" {
		return rawErrorResponse(req.ID, memerr.RPCInvalidRequest, "unsupported JSON-RPC version", memerr.CodeSchema)
	}

	v, ok := parseVerb(req.Method)
	if !ok {
		if req.isNotification() {
			// Unknown notifications are ignored per JSON-RPC semantics.
			return nil
		}
		return rawErrorResponse(req.ID, memerr.RPCMethodNotFound, "method not found: "+req.Method, memerr.CodeNotFound)
	}

	result, err := d.dispatch(ctx, v, req.Params)
	if req.isNotification() {
		return nil
	}
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return successResponse(req.ID, result)
}

// dispatch runs the handler for one verb, converting panics into internal
// errors so no handler failure escapes unstructured.
func (d *Dispatcher) dispatch(ctx context.Context, v verb, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.host.Log("error", "handler panic recovered", "panic", fmt.Sprintf("%v", r))
			result = nil
			err = memerr.Errorf(memerr.CodeInternal, "internal error handling request")
		}
	}()

	switch v {
	case verbInitialize:
		return d.handleInitialize(ctx)
	case verbInitialized:
		return map[string]any{}, nil
	case verbPing:
		return map[string]any{}, nil
	case verbListResources:
		return d.handleListResources(ctx)
	case verbReadResource:
		return d.handleReadResource(ctx, params)
	case verbListTools:
		return d.handleListTools(ctx)
	case verbCallTool:
		return d.handleCallTool(ctx, params)
	case verbListPrompts:
		return d.handleListPrompts(ctx)
	case verbGetPrompt:
		return d.handleGetPrompt(ctx, params)
	}
	return nil, memerr.Errorf(memerr.CodeInternal, "unhandled verb %d", v)
}

// protocolVersion is the MCP revision this server speaks.
const protocolVersion = "2024-11-05"

func (d *Dispatcher) handleInitialize(context.Context) (any, error) {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"resources": map[string]any{},
			"tools":     map[string]any{},
			"prompts":   map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    d.info.Name,
			"version": d.info.Version,
		},
	}, nil
}

// decodeParams unmarshals params into dst, mapping any shape mismatch to a
// schema error.
func decodeParams(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		return memerr.New(memerr.CodeSchema, "missing params")
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return memerr.Wrap(memerr.CodeSchema, "malformed params", err)
	}
	return nil
}
