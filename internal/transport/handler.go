package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"membank/internal/memerr"
)

// maxBodyBytes bounds how much of a POST body we read before handing it to
// the dispatcher. Memory bank payloads are small; 4 MiB is generous.
const maxBodyBytes = 4 << 20

// Handler serves the three HTTP endpoints: the SSE stream, the message
// channel, and the health probe.
type Handler struct {
	manager  *Manager
	version  string
	platform string
	mux      *http.ServeMux
}

// NewHandler wires the routes onto a fresh mux.
func NewHandler(m *Manager, version, platform string) *Handler {
	h := &Handler{manager: m, version: version, platform: platform, mux: http.NewServeMux()}
	h.mux.HandleFunc("/sse", h.handleSSE)
	h.mux.HandleFunc("/messages", h.handleMessages)
	h.mux.HandleFunc("/health", h.handleHealth)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleSSE opens a streaming session and pumps outbound messages until the
// client disconnects or the session is replaced. The first event names the
// endpoint the client must POST requests to.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	session, err := h.manager.Open(r.Header.Get("Origin"))
	if err != nil {
		writeJSONError(w, memerr.HTTPStatus(memerr.CodeOf(err)), err.Error())
		return
	}
	defer h.manager.Release(session)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: endpoint\ndata: /messages?sessionId=%s\n\n", session.ID)
	flusher.Flush()

	for {
		select {
		case msg := <-session.Outbound():
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-session.Done():
			return
		case <-r.Context().Done():
			return
		}
	}
}

// handleMessages accepts one protocol request. The response travels down the
// SSE stream; a successful POST is acknowledged with 202.
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if err := h.manager.HandleMessage(r.Context(), sessionID, body); err != nil {
		code := memerr.CodeOf(err)
		if code == memerr.CodeNoSession {
			// Exact body contract for clients probing without a stream.
			writeJSONError(w, http.StatusServiceUnavailable, "No active SSE connection")
			return
		}
		writeJSONError(w, memerr.HTTPStatus(code), err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
	io.WriteString(w, "Accepted")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"version":   h.version,
		"platform":  h.platform,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
