package bank

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"membank/internal/memerr"

	_ "modernc.org/sqlite"
)

// openDB and now are package-level vars to allow test injection.
var (
	openDB = sql.Open
	now    = func() time.Time { return time.Now().UTC() }
)

// Config holds document store configuration.
type Config struct {
	// DataDir is where the SQLite database lives. Created if missing.
	DataDir string
	// SeedDefaults populates every missing document with its starter
	// template on startup.
	SeedDefaults bool
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:      filepath.Join(home, ".membank"),
		SeedDefaults: true,
	}
}

// SQLiteStore is the persistent document store. It implements Store.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

var _ Store = (*SQLiteStore)(nil)

// New creates a SQLiteStore. It creates the data directory if needed, opens
// SQLite with WAL mode, runs migrations, and seeds default templates when
// configured.
func New(cfg Config) (*SQLiteStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("bank: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "membank.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("bank: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("bank: pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("bank: migration: %w", err)
	}
	if cfg.SeedDefaults {
		if err := s.seed(); err != nil {
			return nil, fmt.Errorf("bank: seed defaults: %w", err)
		}
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memory_files (
			type       TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// seed inserts the starter template for every document type that does not
// exist yet. Existing content is never touched.
func (s *SQLiteStore) seed() error {
	ts := now().Format(time.RFC3339Nano)
	for _, ft := range AllFileTypes {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO memory_files (type, content, updated_at) VALUES (?, ?, ?)",
			string(ft), DefaultTemplate(ft), ts,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// List returns every stored document in enumeration order. Document types
// without a row are skipped, so an unseeded store lists nothing.
func (s *SQLiteStore) List(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT type, content, updated_at FROM memory_files")
	if err != nil {
		return nil, memerr.Wrap(memerr.CodeStoreUnavailable, "listing memory files", err)
	}
	defer func() { _ = rows.Close() }()

	byType := make(map[FileType]Document, len(AllFileTypes))
	for rows.Next() {
		var (
			typ, content, updated string
		)
		if err := rows.Scan(&typ, &content, &updated); err != nil {
			return nil, memerr.Wrap(memerr.CodeStoreUnavailable, "scanning memory file", err)
		}
		ft, err := ParseFileType(typ)
		if err != nil {
			// Rows written by a newer schema are ignored rather than fatal.
			continue
		}
		byType[ft] = Document{Type: ft, Content: content, LastUpdated: parseTime(updated)}
	}
	if err := rows.Err(); err != nil {
		return nil, memerr.Wrap(memerr.CodeStoreUnavailable, "listing memory files", err)
	}

	docs := make([]Document, 0, len(byType))
	for _, ft := range AllFileTypes {
		if doc, ok := byType[ft]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Get returns the document of the given type.
func (s *SQLiteStore) Get(ctx context.Context, ft FileType) (Document, error) {
	var (
		content, updated string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT content, updated_at FROM memory_files WHERE type = ?", string(ft),
	).Scan(&content, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, memerr.Errorf(memerr.CodeNotFound, "memory bank file %s not found", ft)
	}
	if err != nil {
		return Document{}, memerr.Wrap(memerr.CodeStoreUnavailable, "reading memory file", err)
	}
	return Document{Type: ft, Content: content, LastUpdated: parseTime(updated)}, nil
}

// Update overwrites the document's content. The document is created if the
// store was never seeded; there is exactly one live row per type either way.
func (s *SQLiteStore) Update(ctx context.Context, ft FileType, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_files (type, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(type) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		string(ft), content, now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return memerr.Wrap(memerr.CodeStoreUnavailable, "updating memory file", err)
	}
	return nil
}

// Export renders the whole bank as JSON or markdown.
func (s *SQLiteStore) Export(ctx context.Context, opts ExportOptions) (string, error) {
	docs, err := s.List(ctx)
	if err != nil {
		return "", err
	}

	switch opts.Format {
	case "", "json":
		return exportJSON(docs, opts)
	case "markdown":
		return exportMarkdown(docs, opts), nil
	default:
		return "", memerr.Errorf(memerr.CodeSchema, "unsupported export format %q", opts.Format)
	}
}

type exportMetadata struct {
	ExportedAt time.Time `json:"exportedAt"`
	FileCount  int       `json:"fileCount"`
	TotalSize  int       `json:"totalSize"`
}

func exportJSON(docs []Document, opts ExportOptions) (string, error) {
	if !opts.IncludeMetadata {
		files := make(map[string]string, len(docs))
		for _, d := range docs {
			files[string(d.Type)] = d.Content
		}
		data, err := json.MarshalIndent(map[string]any{"files": files}, "", "  ")
		if err != nil {
			return "", memerr.Wrap(memerr.CodeStoreUnavailable, "encoding export", err)
		}
		return string(data), nil
	}

	total := 0
	for _, d := range docs {
		total += len(d.Content)
	}
	payload := map[string]any{
		"metadata": exportMetadata{ExportedAt: now(), FileCount: len(docs), TotalSize: total},
		"files":    docs,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", memerr.Wrap(memerr.CodeStoreUnavailable, "encoding export", err)
	}
	return string(data), nil
}

func exportMarkdown(docs []Document, opts ExportOptions) string {
	var b strings.Builder
	b.WriteString("# Memory Bank Export\n\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "## %s\n\n", d.Type.Title())
		if opts.IncludeMetadata {
			fmt.Fprintf(&b, "_Last updated: %s_\n\n", d.LastUpdated.Format(time.RFC3339))
		}
		b.WriteString(strings.TrimRight(d.Content, "\n"))
		b.WriteString("\n\n")
	}
	return b.String()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Unix(0, 0).UTC()
	}
	return t
}
