package protocol

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"membank/internal/bank"
	"membank/internal/memerr"
	"membank/internal/security"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names exposed through the protocol.
const (
	toolUpdateMemoryFile = "update_memory_file"
	toolGetMemoryStatus  = "get_memory_status"
	toolExportMemoryBank = "export_memory_bank"
)

// validationErrDelimiter joins all collected validation violations into one
// rejection message.
const validationErrDelimiter = "; "

// toolDefinitions builds the static tool descriptors. The declared input
// schemas are validation hints for clients; the server re-validates every
// argument itself regardless of client compliance.
func toolDefinitions() []mcp.Tool {
	fileTypes := make([]string, len(bank.AllFileTypes))
	for i, ft := range bank.AllFileTypes {
		fileTypes[i] = string(ft)
	}

	update := mcp.NewTool(toolUpdateMemoryFile,
		mcp.WithDescription(
			"Update the content of a memory bank file. "+
				"The content is validated and sanitized before it is written.",
		),
		mcp.WithString("fileType",
			mcp.Required(),
			mcp.Description("Which memory bank file to update"),
			mcp.Enum(fileTypes...),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("New markdown content for the file"),
		),
	)

	status := mcp.NewTool(toolGetMemoryStatus,
		mcp.WithDescription(
			"Get the current status of the memory bank: file count, total size, "+
				"and per-file timestamps.",
		),
	)

	export := mcp.NewTool(toolExportMemoryBank,
		mcp.WithDescription("Export the entire memory bank as JSON or markdown."),
		mcp.WithString("format",
			mcp.Description("Export format"),
			mcp.DefaultString("json"),
			mcp.Enum("json", "markdown"),
		),
		mcp.WithBoolean("includeMetadata",
			mcp.Description("Include export metadata (timestamps, sizes)"),
			mcp.DefaultBool(true),
		),
	)

	return []mcp.Tool{update, status, export}
}

func (d *Dispatcher) handleListTools(context.Context) (any, error) {
	return mcp.ListToolsResult{Tools: toolDefinitions()}, nil
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (d *Dispatcher) handleCallTool(ctx context.Context, params json.RawMessage) (any, error) {
	var p callToolParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	switch p.Name {
	case toolUpdateMemoryFile:
		return d.callUpdateMemoryFile(ctx, p.Arguments)
	case toolGetMemoryStatus:
		return d.callGetMemoryStatus(ctx)
	case toolExportMemoryBank:
		return d.callExportMemoryBank(ctx, p.Arguments)
	default:
		return nil, memerr.Errorf(memerr.CodeUnknownTool, "unknown tool: %s", p.Name)
	}
}

type updateMemoryFileArgs struct {
	FileType string  `json:"fileType"`
	Content  *string `json:"content"`
}

// callUpdateMemoryFile writes one document. Order is fixed: schema parse,
// security check, validation gate, then the store write. A validation
// failure rejects the whole write; there is no partial update.
func (d *Dispatcher) callUpdateMemoryFile(ctx context.Context, rawArgs json.RawMessage) (any, error) {
	var args updateMemoryFileArgs
	if err := decodeParams(rawArgs, &args); err != nil {
		return nil, err
	}
	if args.FileType == "" {
		return nil, memerr.New(memerr.CodeSchema, "fileType is required")
	}
	if args.Content == nil {
		return nil, memerr.New(memerr.CodeSchema, "content is required")
	}
	content := *args.Content

	decision := d.policy.Check(ctx, security.Operation{
		Kind:          security.OpWrite,
		FileType:      args.FileType,
		ContentLength: len(content),
	})
	if !decision.Allowed {
		return nil, memerr.Errorf(memerr.CodeSecurity, "write denied: %s", decision.Reason)
	}

	ft, err := bank.ParseFileType(args.FileType)
	if err != nil {
		return nil, err
	}

	result := d.gate.Validate(content)
	if !result.IsValid {
		return nil, memerr.Errorf(memerr.CodeSecurity,
			"content validation failed: %s", strings.Join(result.Errors, validationErrDelimiter))
	}
	if result.Sanitized() {
		content = result.SanitizedContent
	}

	if err := d.store.Update(ctx, ft, content); err != nil {
		return nil, err
	}

	d.host.EmitEvent("fileUpdated", map[string]any{
		"fileType":      string(ft),
		"contentLength": len(content),
	})

	return mcp.NewToolResultText("Successfully updated " + string(ft)), nil
}

// memoryStatus is the structured payload returned by get_memory_status.
type memoryStatus struct {
	FileCount    int              `json:"fileCount"`
	TotalSize    int              `json:"totalSize"`
	LastModified time.Time        `json:"lastModified"`
	Files        []fileStatusItem `json:"files"`
}

type fileStatusItem struct {
	FileType    string    `json:"fileType"`
	Size        int       `json:"size"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// callGetMemoryStatus aggregates store state. This is a read-only aggregate
// and deliberately skips the security policy.
func (d *Dispatcher) callGetMemoryStatus(ctx context.Context) (any, error) {
	docs, err := d.store.List(ctx)
	if err != nil {
		return nil, memerr.Wrap(memerr.CodeStoreUnavailable, "reading memory bank status", err)
	}

	status := memoryStatus{
		FileCount:    len(docs),
		LastModified: time.Unix(0, 0).UTC(),
		Files:        make([]fileStatusItem, 0, len(docs)),
	}
	for _, doc := range docs {
		status.TotalSize += len(doc.Content)
		if doc.LastUpdated.After(status.LastModified) {
			status.LastModified = doc.LastUpdated
		}
		status.Files = append(status.Files, fileStatusItem{
			FileType:    string(doc.Type),
			Size:        len(doc.Content),
			LastUpdated: doc.LastUpdated,
		})
	}

	return mcp.NewToolResultJSON(status)
}

type exportMemoryBankArgs struct {
	Format          string `json:"format"`
	IncludeMetadata *bool  `json:"includeMetadata"`
}

// callExportMemoryBank runs the export command. Export is command-class for
// the policy, distinct from file reads and writes.
func (d *Dispatcher) callExportMemoryBank(ctx context.Context, rawArgs json.RawMessage) (any, error) {
	args := exportMemoryBankArgs{Format: "json"}
	if len(rawArgs) > 0 && string(rawArgs) != "null" {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, memerr.Wrap(memerr.CodeSchema, "malformed export arguments", err)
		}
	}
	if args.Format == "" {
		args.Format = "json"
	}
	if args.Format != "json" && args.Format != "markdown" {
		return nil, memerr.Errorf(memerr.CodeSchema, "format must be json or markdown, got %q", args.Format)
	}
	includeMetadata := true
	if args.IncludeMetadata != nil {
		includeMetadata = *args.IncludeMetadata
	}

	decision := d.policy.Check(ctx, security.Operation{
		Kind:    security.OpCommand,
		Command: toolExportMemoryBank,
		Args:    []string{args.Format},
	})
	if !decision.Allowed {
		return nil, memerr.Errorf(memerr.CodeSecurity, "export denied: %s", decision.Reason)
	}

	payload, err := d.store.Export(ctx, bank.ExportOptions{
		Format:           args.Format,
		IncludeMetadata:  includeMetadata,
		IncludeTemplates: false,
		Compression:      false,
	})
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(payload), nil
}
