package protocol

import (
	"context"
	"encoding/json"
	"strings"

	"membank/internal/bank"
	"membank/internal/memerr"
	"membank/internal/security"

	"github.com/mark3labs/mcp-go/mcp"
)

// URIPrefix addresses memory bank documents as protocol resources.
const URIPrefix = "memory-bank://"

const resourceMIMEType = "text/markdown"

// handleListResources returns one resource descriptor per stored document.
func (d *Dispatcher) handleListResources(ctx context.Context) (any, error) {
	docs, err := d.store.List(ctx)
	if err != nil {
		return nil, memerr.Wrap(memerr.CodeStoreUnavailable, "listing memory bank resources", err)
	}

	resources := make([]mcp.Resource, 0, len(docs))
	for _, doc := range docs {
		resources = append(resources, mcp.NewResource(
			URIPrefix+string(doc.Type),
			string(doc.Type),
			mcp.WithResourceDescription(doc.Type.Title()+" memory bank file"),
			mcp.WithMIMEType(resourceMIMEType),
		))
	}

	return mcp.ListResourcesResult{Resources: resources}, nil
}

type readResourceParams struct {
	URI string `json:"uri"`
}

// handleReadResource reads one document by URI. The URI prefix gate runs
// before anything else: a foreign scheme never reaches the store or the
// policy with a fabricated file type.
func (d *Dispatcher) handleReadResource(ctx context.Context, params json.RawMessage) (any, error) {
	var p readResourceParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.URI == "" {
		return nil, memerr.New(memerr.CodeSchema, "uri is required")
	}

	if !strings.HasPrefix(p.URI, URIPrefix) {
		return nil, memerr.Errorf(memerr.CodeSecurity, "resource URI %q is outside the memory bank", p.URI)
	}
	name := strings.TrimPrefix(p.URI, URIPrefix)

	decision := d.policy.Check(ctx, security.Operation{Kind: security.OpRead, FileType: name})
	if !decision.Allowed {
		return nil, memerr.Errorf(memerr.CodeSecurity, "read denied: %s", decision.Reason)
	}

	ft, err := bank.ParseFileType(name)
	if err != nil {
		return nil, err
	}

	doc, err := d.store.Get(ctx, ft)
	if err != nil {
		return nil, err
	}

	return mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      p.URI,
				MIMEType: resourceMIMEType,
				Text:     doc.Content,
			},
		},
	}, nil
}
