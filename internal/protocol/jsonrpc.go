package protocol

import (
	"encoding/json"

	"membank/internal/memerr"
)

// request is the inbound JSON-RPC 2.0 envelope. ID is kept raw so numeric
// and string identifiers round-trip untouched.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request carries no id and therefore
// expects no response.
func (r request) isNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// response is the outbound JSON-RPC 2.0 envelope.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    *rpcErrorData `json:"data,omitempty"`
}

// rpcErrorData carries the stable taxonomy code so clients can branch on a
// failure class without parsing message text.
type rpcErrorData struct {
	Code memerr.Code `json:"code"`
}

func successResponse(id json.RawMessage, result any) []byte {
	return mustMarshal(response{JSONRPC: "2.0", ID: normalizeID(id), Result: result})
}

// errorResponse renders err as a protocol error. The numeric code follows
// JSON-RPC conventions; the taxonomy code travels in error data.
func errorResponse(id json.RawMessage, err error) []byte {
	code := memerr.CodeOf(err)
	return mustMarshal(response{
		JSONRPC: "2.0",
		ID:      normalizeID(id),
		Error: &rpcError{
			Code:    memerr.RPCCode(code),
			Message: err.Error(),
			Data:    &rpcErrorData{Code: code},
		},
	})
}

// rawErrorResponse is used before a request envelope exists, e.g. for frames
// that do not decode at all.
func rawErrorResponse(id json.RawMessage, numericCode int, message string, code memerr.Code) []byte {
	return mustMarshal(response{
		JSONRPC: "2.0",
		ID:      normalizeID(id),
		Error: &rpcError{
			Code:    numericCode,
			Message: message,
			Data:    &rpcErrorData{Code: code},
		},
	})
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// mustMarshal encodes a response assembled from known-marshalable parts. A
// failure here is a programming error, not an input error.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"response encoding failed"}}`)
	}
	return data
}
