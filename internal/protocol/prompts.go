package protocol

import (
	"context"
	"encoding/json"
	"strings"

	"membank/internal/memerr"

	"github.com/mark3labs/mcp-go/mcp"
)

const promptMemoryContext = "memory_context"

func promptDefinitions() []mcp.Prompt {
	return []mcp.Prompt{
		mcp.NewPrompt(promptMemoryContext,
			mcp.WithPromptDescription(
				"The complete memory bank as one context block: every file "+
					"rendered as a heading plus its current content.",
			),
		),
	}
}

func (d *Dispatcher) handleListPrompts(context.Context) (any, error) {
	return mcp.ListPromptsResult{Prompts: promptDefinitions()}, nil
}

type getPromptParams struct {
	Name string `json:"name"`
}

// handleGetPrompt assembles the memory_context prompt. Documents appear in
// file type enumeration order, not alphabetical or last-modified order.
func (d *Dispatcher) handleGetPrompt(ctx context.Context, params json.RawMessage) (any, error) {
	var p getPromptParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name != promptMemoryContext {
		return nil, memerr.Errorf(memerr.CodeUnknownPrompt, "unknown prompt: %s", p.Name)
	}

	docs, err := d.store.List(ctx)
	if err != nil {
		return nil, memerr.Wrap(memerr.CodeStoreUnavailable, "assembling memory context", err)
	}

	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("# " + doc.Type.Title() + "\n\n")
		b.WriteString(strings.TrimRight(doc.Content, "\n"))
	}

	return mcp.GetPromptResult{
		Description: "Current memory bank contents",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleAssistant,
				Content: mcp.NewTextContent(b.String()),
			},
		},
	}, nil
}
