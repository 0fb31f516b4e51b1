package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"membank/internal/bank"
	"membank/internal/host/hosttest"
	"membank/internal/security"
	"membank/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

type testEnv struct {
	dispatcher *Dispatcher
	store      *bank.SQLiteStore
	recorder   *hosttest.Recorder
}

func newTestEnv(t *testing.T, seed bool, secCfg security.Config) *testEnv {
	t.Helper()
	store, err := bank.New(bank.Config{DataDir: t.TempDir(), SeedDefaults: seed})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rec := hosttest.New()
	d := NewDispatcher(
		store,
		security.NewRulePolicy(secCfg),
		validation.NewGate(1<<20),
		rec,
		Info{Name: "membank", Version: "test"},
	)
	return &testEnv{dispatcher: d, store: store, recorder: rec}
}

// envelope mirrors the JSON-RPC response wire shape for assertions.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    *struct {
			Code string `json:"code"`
		} `json:"data"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, raw string) envelope {
	t.Helper()
	out := e.dispatcher.Handle(context.Background(), []byte(raw))
	require.NotNil(t, out, "expected a response for %s", raw)

	var env envelope
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Equal(t, "2.0", env.JSONRPC)
	return env
}

// toolCall builds a tools/call request with JSON-encoded arguments.
func toolCall(id int, tool, args string) string {
	if args == "" {
		args = "{}"
	}
	return fmt.Sprintf(
		`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":%q,"arguments":%s}}`,
		id, tool, args,
	)
}

// toolText extracts the text content from a tool call result.
func toolText(t *testing.T, env envelope) string {
	t.Helper()
	require.Nil(t, env.Error, "tool call failed: %+v", env.Error)
	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &result))
	require.NotEmpty(t, result.Content)
	return result.Content[0].Text
}

// ─── Envelope handling ───────────────────────────────────────────────────────

func TestHandleParseError(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, `{not json`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
	assert.Equal(t, "SCHEMA_ERROR", resp.Error.Data.Code)
	assert.Equal(t, "null", string(resp.ID))
}

func TestHandleWrongVersion(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, `{"jsonrpc":"1.0","id":1,"method":"ping"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
}

func TestHandleUnknownMethod(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, `{"jsonrpc":"2.0","id":7,"method":"tools/destroy"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
	assert.Equal(t, "7", string(resp.ID))
}

func TestHandleUnknownNotificationIgnored(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	out := env.dispatcher.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/unknown"}`))
	assert.Nil(t, out)
}

func TestHandleNotificationProducesNoResponse(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	out := env.dispatcher.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.Nil(t, out)
}

func TestHandlePreservesStringID(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, `{"jsonrpc":"2.0","id":"req-abc","method":"ping"}`)
	assert.Equal(t, `"req-abc"`, string(resp.ID))
	assert.Nil(t, resp.Error)
}

// ─── Handshake ───────────────────────────────────────────────────────────────

func TestInitialize(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`)
	require.Nil(t, resp.Error)

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		Capabilities    map[string]json.RawMessage `json:"capabilities"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "2024-11-05", result.ProtocolVersion)
	assert.Equal(t, "membank", result.ServerInfo.Name)
	assert.Equal(t, "test", result.ServerInfo.Version)
	for _, cap := range []string{"resources", "tools", "prompts"} {
		assert.Contains(t, result.Capabilities, cap)
	}
}

func TestPing(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "{}", string(resp.Result))
}

// ─── Resources ───────────────────────────────────────────────────────────────

func TestListResources(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
	require.Nil(t, resp.Error)

	var result struct {
		Resources []struct {
			URI      string `json:"uri"`
			Name     string `json:"name"`
			MIMEType string `json:"mimeType"`
		} `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Resources, len(bank.AllFileTypes))
	for i, res := range result.Resources {
		assert.Equal(t, URIPrefix+string(bank.AllFileTypes[i]), res.URI)
		assert.Equal(t, "text/markdown", res.MIMEType)
	}
}

func TestReadResource(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())
	require.NoError(t, env.store.Update(context.Background(), bank.ActiveContext, "current focus"))

	resp := env.do(t, `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"memory-bank://activeContext.md"}}`)
	require.Nil(t, resp.Error)

	var result struct {
		Contents []struct {
			URI      string `json:"uri"`
			MIMEType string `json:"mimeType"`
			Text     string `json:"text"`
		} `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "memory-bank://activeContext.md", result.Contents[0].URI)
	assert.Equal(t, "text/markdown", result.Contents[0].MIMEType)
	assert.Equal(t, "current focus", result.Contents[0].Text)
}

func TestReadResourceForeignScheme(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"file:///etc/passwd"}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32001, resp.Error.Code)
	assert.Equal(t, "SECURITY_VIOLATION", resp.Error.Data.Code)
}

func TestReadResourceUnknownFile(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"memory-bank://secrets.md"}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32002, resp.Error.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Data.Code)
}

func TestReadResourceMissingParams(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, `{"jsonrpc":"2.0","id":1,"method":"resources/read"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

// ─── Tools ───────────────────────────────────────────────────────────────────

func TestListTools(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Nil(t, resp.Error)

	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	assert.Equal(t, []string{"update_memory_file", "get_memory_status", "export_memory_bank"}, names)
}

func TestUpdateMemoryFile(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, toolCall(1, "update_memory_file", `{"fileType":"activeContext.md","content":"y"}`))
	assert.Equal(t, "Successfully updated activeContext.md", toolText(t, resp))

	// Clean content reads back byte for byte.
	doc, err := env.store.Get(context.Background(), bank.ActiveContext)
	require.NoError(t, err)
	assert.Equal(t, "y", doc.Content)

	events := env.recorder.EventsNamed("fileUpdated")
	require.Len(t, events, 1)
	payload, ok := events[0].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "activeContext.md", payload["fileType"])
	assert.Equal(t, 1, payload["contentLength"])
}

func TestUpdateMemoryFileSanitizes(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, toolCall(1, "update_memory_file", `{"fileType":"progress.md","content":"a \r\nb"}`))
	require.Nil(t, resp.Error)

	doc, err := env.store.Get(context.Background(), bank.Progress)
	require.NoError(t, err)
	assert.Equal(t, "a\nb", doc.Content)
}

func TestUpdateThenReadResourceRoundTrip(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	readBack := func(t *testing.T, id int) string {
		t.Helper()
		resp := env.do(t, fmt.Sprintf(
			`{"jsonrpc":"2.0","id":%d,"method":"resources/read","params":{"uri":"memory-bank://activeContext.md"}}`, id))
		require.Nil(t, resp.Error)
		var result struct {
			Contents []struct {
				Text string `json:"text"`
			} `json:"contents"`
		}
		require.NoError(t, json.Unmarshal(resp.Result, &result))
		require.Len(t, result.Contents, 1)
		return result.Contents[0].Text
	}

	// Clean content written through the tool surfaces unchanged over the
	// resource channel.
	resp := env.do(t, toolCall(1, "update_memory_file", `{"fileType":"activeContext.md","content":"y"}`))
	require.Nil(t, resp.Error)
	assert.Equal(t, "y", readBack(t, 2))

	// Sanitized content surfaces in its sanitized form.
	resp = env.do(t, toolCall(3, "update_memory_file", `{"fileType":"activeContext.md","content":"line one \r\nline two"}`))
	require.Nil(t, resp.Error)
	assert.Equal(t, "line one\nline two", readBack(t, 4))
}

func TestUpdateMemoryFileRejectsInvalidContent(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())
	before, err := env.store.Get(context.Background(), bank.Progress)
	require.NoError(t, err)

	badContent, err := json.Marshal("bad\x00and\x01worse")
	require.NoError(t, err)
	resp := env.do(t, toolCall(1, "update_memory_file", `{"fileType":"progress.md","content":`+string(badContent)+`}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SECURITY_VIOLATION", resp.Error.Data.Code)
	// Every violation is reported, not just the first.
	assert.Contains(t, resp.Error.Message, "NUL byte")
	assert.Contains(t, resp.Error.Message, "control characters")

	// A rejected write leaves the document untouched.
	after, err := env.store.Get(context.Background(), bank.Progress)
	require.NoError(t, err)
	assert.Equal(t, before.Content, after.Content)
	assert.Empty(t, env.recorder.EventsNamed("fileUpdated"))
}

func TestUpdateMemoryFileReadOnlyPolicy(t *testing.T) {
	cfg := security.DefaultConfig()
	cfg.ReadOnly = true
	env := newTestEnv(t, true, cfg)

	resp := env.do(t, toolCall(1, "update_memory_file", `{"fileType":"progress.md","content":"x"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32001, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "read-only")
}

func TestUpdateMemoryFileSchemaErrors(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	tests := []struct {
		name string
		args string
	}{
		{"missing content", `{"fileType":"progress.md"}`},
		{"missing fileType", `{"content":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, toolCall(1, "update_memory_file", tt.args))
			require.NotNil(t, resp.Error)
			assert.Equal(t, -32602, resp.Error.Code)
			assert.Equal(t, "SCHEMA_ERROR", resp.Error.Data.Code)
		})
	}
}

func TestUpdateMemoryFileUnknownType(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, toolCall(1, "update_memory_file", `{"fileType":"notes.md","content":"x"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Data.Code)
}

func TestUnknownTool(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, toolCall(1, "delete_everything", `{}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
	assert.Equal(t, "UNKNOWN_TOOL", resp.Error.Data.Code)
}

func TestGetMemoryStatus(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())
	require.NoError(t, env.store.Update(context.Background(), bank.Progress, "done: tests"))

	resp := env.do(t, toolCall(1, "get_memory_status", ""))
	var status struct {
		FileCount    int    `json:"fileCount"`
		TotalSize    int    `json:"totalSize"`
		LastModified string `json:"lastModified"`
		Files        []struct {
			FileType string `json:"fileType"`
			Size     int    `json:"size"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, resp)), &status))
	assert.Equal(t, len(bank.AllFileTypes), status.FileCount)
	assert.Positive(t, status.TotalSize)
	assert.Len(t, status.Files, len(bank.AllFileTypes))
	assert.NotEqual(t, "1970-01-01T00:00:00Z", status.LastModified)
}

func TestGetMemoryStatusEmptyBank(t *testing.T) {
	env := newTestEnv(t, false, security.DefaultConfig())

	resp := env.do(t, toolCall(1, "get_memory_status", ""))
	var status struct {
		FileCount    int    `json:"fileCount"`
		TotalSize    int    `json:"totalSize"`
		LastModified string `json:"lastModified"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, resp)), &status))
	assert.Zero(t, status.FileCount)
	assert.Zero(t, status.TotalSize)
	// The epoch stands in for "never modified".
	assert.Equal(t, "1970-01-01T00:00:00Z", status.LastModified)
}

func TestExportMemoryBankDefaults(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, toolCall(1, "export_memory_bank", ""))
	var payload struct {
		Metadata map[string]any    `json:"metadata"`
		Files    []json.RawMessage `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, resp)), &payload))
	assert.NotNil(t, payload.Metadata)
	assert.Len(t, payload.Files, len(bank.AllFileTypes))
}

func TestExportMemoryBankMarkdown(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, toolCall(1, "export_memory_bank", `{"format":"markdown","includeMetadata":false}`))
	text := toolText(t, resp)
	assert.True(t, strings.HasPrefix(text, "# Memory Bank Export"))
	assert.NotContains(t, text, "_Last updated:")
}

func TestExportMemoryBankBadFormat(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, toolCall(1, "export_memory_bank", `{"format":"xml"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestExportMemoryBankDeniedCommand(t *testing.T) {
	cfg := security.DefaultConfig()
	cfg.AllowedCommands = nil
	env := newTestEnv(t, true, cfg)

	resp := env.do(t, toolCall(1, "export_memory_bank", ""))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SECURITY_VIOLATION", resp.Error.Data.Code)
}

// ─── Prompts ─────────────────────────────────────────────────────────────────

func TestListPrompts(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, `{"jsonrpc":"2.0","id":1,"method":"prompts/list"}`)
	require.Nil(t, resp.Error)

	var result struct {
		Prompts []struct {
			Name string `json:"name"`
		} `json:"prompts"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Prompts, 1)
	assert.Equal(t, "memory_context", result.Prompts[0].Name)
}

func TestGetPromptMemoryContext(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())
	require.NoError(t, env.store.Update(context.Background(), bank.TechContext, "sqlite and sse"))

	resp := env.do(t, `{"jsonrpc":"2.0","id":1,"method":"prompts/get","params":{"name":"memory_context"}}`)
	require.Nil(t, resp.Error)

	var result struct {
		Description string `json:"description"`
		Messages    []struct {
			Role    string `json:"role"`
			Content struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "assistant", result.Messages[0].Role)

	text := result.Messages[0].Content.Text
	assert.Contains(t, text, "sqlite and sse")
	// Sections follow the fixed enumeration order.
	prev := -1
	for _, ft := range bank.AllFileTypes {
		idx := strings.Index(text, "# "+ft.Title()+"\n")
		require.GreaterOrEqual(t, idx, 0, "missing section for %s", ft)
		assert.Greater(t, idx, prev)
		prev = idx
	}
}

func TestGetPromptUnknownName(t *testing.T) {
	env := newTestEnv(t, true, security.DefaultConfig())

	resp := env.do(t, `{"jsonrpc":"2.0","id":1,"method":"prompts/get","params":{"name":"evil"}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
	assert.Equal(t, "UNKNOWN_PROMPT", resp.Error.Data.Code)
}
