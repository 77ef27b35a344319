// Package sqlite stores documents, embedded chunks and the chat transcript
// in a local SQLite file using the pure-Go driver. Vector search is a
// brute-force cosine scan.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/docqa/internal/element"
	"github.com/dgallion1/docqa/internal/index"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements index.VectorStore and the transcript log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ index.VectorStore = (*Store)(nil)

var nopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Open opens the database at path. All goroutines share one connection so
// writers never race each other into SQLITE_BUSY.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			format TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			text_chunks INTEGER NOT NULL DEFAULT 0,
			table_chunks INTEGER NOT NULL DEFAULT 0,
			chart_chunks INTEGER NOT NULL DEFAULT 0,
			formula_chunks INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			page INTEGER NOT NULL,
			type_index INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			metadata TEXT,
			embedding TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			content TEXT NOT NULL,
			is_bot INTEGER NOT NULL,
			sources TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at)`,
	}
	for _, q := range ddl {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertDocument replaces the document row and its chunk set in one
// transaction.
func (s *Store) UpsertDocument(ctx context.Context, doc index.Document, records []index.Record) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, name, path, format, content_hash,
			text_chunks, table_chunks, chart_chunks, formula_chunks, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.Path, doc.Format, doc.ContentHash,
		doc.TextChunks, doc.TableChunks, doc.ChartChunks, doc.FormulaChunks, doc.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, seq, kind, page, type_index, content, metadata, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		c := r.Chunk
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for chunk %s: %w", c.ID, err)
		}
		_, err = stmt.ExecContext(ctx, c.ID, doc.ID, i, string(c.Kind), c.Page, c.TypeIndex,
			c.Text, string(meta), serializeEmbedding(r.Vector))
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: upsert document ok", "id", doc.ID, "chunks", len(records), "duration", time.Since(start))
	return nil
}

// Query performs brute-force cosine similarity search over the chunks
// passing f.
func (s *Store) Query(ctx context.Context, vec []float32, k int, f index.Filter) ([]index.Hit, error) {
	start := time.Now()
	query := `SELECT c.id, c.document_id, c.kind, c.page, c.type_index, c.content, c.metadata, c.embedding
		 FROM chunks c JOIN documents d ON d.id = c.document_id WHERE 1 = 1`
	var args []any
	if f.DocumentID != "" {
		query += ` AND c.document_id = ?`
		args = append(args, f.DocumentID)
	}
	if len(f.Kinds) > 0 {
		query += ` AND c.kind IN (?` + strings.Repeat(`, ?`, len(f.Kinds)-1) + `)`
		for _, k := range f.Kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY d.created_at, c.seq`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var hits []index.Hit
	scanned := 0
	for rows.Next() {
		var c element.Chunk
		var kind, embJSON string
		var metaJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &kind, &c.Page, &c.TypeIndex, &c.Text, &metaJSON, &embJSON); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		scanned++
		c.Kind = element.Kind(kind)
		if metaJSON.Valid {
			c.Metadata = decodeMetadata(metaJSON.String)
		}
		stored, err := deserializeEmbedding(embJSON)
		if err != nil {
			s.logger.Warn("sqlite: bad embedding", "chunk_id", c.ID, "error", err)
			continue
		}
		hits = append(hits, index.Hit{Chunk: c, Score: index.Cosine(vec, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	hits = index.TopK(hits, k)
	s.logger.Debug("sqlite: query ok", "scanned", scanned, "returned", len(hits), "duration", time.Since(start))
	return hits, nil
}

const documentColumns = `id, name, path, format, content_hash,
	text_chunks, table_chunks, chart_chunks, formula_chunks, created_at`

func scanDocument(sc interface{ Scan(...any) error }) (index.Document, error) {
	var d index.Document
	var created int64
	err := sc.Scan(&d.ID, &d.Name, &d.Path, &d.Format, &d.ContentHash,
		&d.TextChunks, &d.TableChunks, &d.ChartChunks, &d.FormulaChunks, &created)
	d.CreatedAt = time.Unix(0, created).UTC()
	return d, err
}

// FindByHash returns the most recent document with the given content hash.
func (s *Store) FindByHash(ctx context.Context, hash string) (index.Document, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_hash = ? ORDER BY created_at DESC LIMIT 1`, hash)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return index.Document{}, false, nil
	}
	if err != nil {
		return index.Document{}, false, fmt.Errorf("find document by hash: %w", err)
	}
	return d, true, nil
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]index.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []index.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and its chunks.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("delete document chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return index.ErrDocumentNotFound
	}
	return tx.Commit()
}

// serializeEmbedding converts []float32 to a JSON array string.
func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

// deserializeEmbedding parses a JSON array string back to []float32.
func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}

// decodeMetadata restores scalar metadata. Whole numbers come back as int so
// values compare equal to what was stored.
func decodeMetadata(s string) map[string]any {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil
	}
	for k, v := range raw {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			raw[k] = int(i)
		} else if f, err := n.Float64(); err == nil {
			raw[k] = f
		}
	}
	return raw
}
