// Package bank implements the memory bank document store.
//
// The bank holds a fixed set of six named markdown documents. Each document
// has exactly one live instance, identified by its file type; documents are
// only ever overwritten, never deleted. The store is backed by SQLite with
// WAL mode so concurrent protocol requests can read and write safely.
package bank

import (
	"context"
	"time"

	"membank/internal/memerr"
)

// FileType identifies one of the six fixed memory bank documents. The order
// of AllFileTypes is the canonical enumeration order used by listings and by
// the memory_context prompt.
type FileType string

const (
	ProjectBrief   FileType = "projectbrief.md"
	ProductContext FileType = "productContext.md"
	ActiveContext  FileType = "activeContext.md"
	SystemPatterns FileType = "systemPatterns.md"
	TechContext    FileType = "techContext.md"
	Progress       FileType = "progress.md"
)

// AllFileTypes lists every document type in enumeration order.
var AllFileTypes = []FileType{
	ProjectBrief,
	ProductContext,
	ActiveContext,
	SystemPatterns,
	TechContext,
	Progress,
}

// ParseFileType maps a raw string onto a known file type.
func ParseFileType(s string) (FileType, error) {
	for _, ft := range AllFileTypes {
		if string(ft) == s {
			return ft, nil
		}
	}
	return "", memerr.Errorf(memerr.CodeNotFound, "unknown memory bank file %q", s)
}

// Title returns the human heading used in exports and the context prompt.
func (ft FileType) Title() string {
	switch ft {
	case ProjectBrief:
		return "Project Brief"
	case ProductContext:
		return "Product Context"
	case ActiveContext:
		return "Active Context"
	case SystemPatterns:
		return "System Patterns"
	case TechContext:
		return "Tech Context"
	case Progress:
		return "Progress"
	default:
		return string(ft)
	}
}

// Document is one live memory bank file.
type Document struct {
	Type        FileType  `json:"type"`
	Content     string    `json:"content"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// ExportOptions controls Export output. Format is "json" or "markdown".
type ExportOptions struct {
	Format           string
	IncludeMetadata  bool
	IncludeTemplates bool
	Compression      bool
}

// Store is the narrow interface the protocol server consumes. The concrete
// store is constructed by the host and may outlive the server.
type Store interface {
	// List returns every document in enumeration order.
	List(ctx context.Context) ([]Document, error)
	// Get returns the document of the given type, or CodeNotFound.
	Get(ctx context.Context, ft FileType) (Document, error)
	// Update overwrites the document's content and bumps its timestamp.
	Update(ctx context.Context, ft FileType, content string) error
	// Export renders the whole bank in the requested format.
	Export(ctx context.Context, opts ExportOptions) (string, error)
}
