package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DavidOlmos03/rag-base/internal/rag"
	"github.com/DavidOlmos03/rag-base/internal/store/migrations"
)

// SQLite is the production Store, backed by a single database file.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the database at path and applies
// migrations. ":memory:" gives an ephemeral database.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}

	// modernc sqlite serialises writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &SQLite{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	entries, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(entries)

	for _, name := range entries {
		raw, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(raw)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		s.logger.Debug("applied migration", "file", name)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) CreateDocument(ctx context.Context, doc *rag.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = doc.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, filename, content, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.TenantID, doc.Filename, doc.Content, string(doc.Status), doc.Error,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *SQLite) GetDocument(ctx context.Context, tenantID, id string) (*rag.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, filename, content, status, error, created_at, updated_at
		FROM documents WHERE tenant_id = ? AND id = ?`, tenantID, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", rag.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *SQLite) ListDocuments(ctx context.Context, tenantID string) ([]rag.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, filename, content, status, error, created_at, updated_at
		FROM documents WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []rag.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (s *SQLite) UpdateDocumentStatus(ctx context.Context, tenantID, id string, status rag.DocumentStatus, errMsg string) error {
	if status != rag.StatusFailed {
		errMsg = ""
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, error = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		string(status), errMsg, time.Now().UTC(), tenantID, id)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %s", rag.ErrNotFound, id)
	}
	return nil
}

func (s *SQLite) DeleteDocument(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %s", rag.ErrNotFound, id)
	}
	return nil
}

func (s *SQLite) SaveQuery(ctx context.Context, rec *rag.QueryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	contexts, err := json.Marshal(rec.Contexts)
	if err != nil {
		return fmt.Errorf("marshal contexts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_records
			(id, tenant_id, query, answer, contexts, provider, model,
			 prompt_tokens, completion_tokens, latency_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.Query, rec.Answer, string(contexts),
		rec.Provider, rec.Model, rec.PromptTokens, rec.CompletionTokens,
		rec.LatencyMS, rec.Error, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert query record: %w", err)
	}
	return nil
}

func (s *SQLite) ListQueries(ctx context.Context, tenantID string, limit int) ([]rag.QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, query, answer, contexts, provider, model,
		       prompt_tokens, completion_tokens, latency_ms, error, created_at
		FROM query_records WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	var recs []rag.QueryRecord
	for rows.Next() {
		var rec rag.QueryRecord
		var contexts string
		err := rows.Scan(&rec.ID, &rec.TenantID, &rec.Query, &rec.Answer, &contexts,
			&rec.Provider, &rec.Model, &rec.PromptTokens, &rec.CompletionTokens,
			&rec.LatencyMS, &rec.Error, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan query record: %w", err)
		}
		if err := json.Unmarshal([]byte(contexts), &rec.Contexts); err != nil {
			return nil, fmt.Errorf("unmarshal contexts: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLite) SetConfig(ctx context.Context, cfg *rag.GenerationConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if cfg.Active {
		_, err = tx.ExecContext(ctx,
			`UPDATE generation_configs SET active = 0 WHERE tenant_id = ? AND active = 1`,
			cfg.TenantID)
		if err != nil {
			return fmt.Errorf("deactivate configs: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO generation_configs
			(tenant_id, provider, model, temperature, max_tokens, api_key, base_url, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.TenantID, cfg.Provider, cfg.Model, cfg.Temperature, cfg.MaxTokens,
		cfg.APIKey, cfg.BaseURL, boolToInt(cfg.Active))
	if err != nil {
		return fmt.Errorf("insert config: %w", err)
	}

	return tx.Commit()
}

func (s *SQLite) GetActiveConfig(ctx context.Context, tenantID string) (*rag.GenerationConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, provider, model, temperature, max_tokens, api_key, base_url, active
		FROM generation_configs WHERE tenant_id = ? AND active = 1`, tenantID)

	var cfg rag.GenerationConfig
	var active int
	err := row.Scan(&cfg.TenantID, &cfg.Provider, &cfg.Model, &cfg.Temperature,
		&cfg.MaxTokens, &cfg.APIKey, &cfg.BaseURL, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no active generation config for tenant %s", rag.ErrNotFound, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("get active config: %w", err)
	}
	cfg.Active = active == 1
	return &cfg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*rag.Document, error) {
	var doc rag.Document
	var status string
	err := row.Scan(&doc.ID, &doc.TenantID, &doc.Filename, &doc.Content,
		&status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Status = rag.DocumentStatus(status)
	return &doc, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
