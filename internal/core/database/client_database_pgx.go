package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/Excerpta/internal/config"
	"github.com/markdave123-py/Excerpta/internal/core"
	"github.com/markdave123-py/Excerpta/internal/models"
)

var _ core.DbClient = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// buildDSN appends verify-ca SSL params when a root cert is configured.
func buildDSN(cfg *config.Config) (string, error) {
	if cfg.DatabaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	if cfg.SslCertPath == "" {
		return cfg.DatabaseURL, nil
	}
	if _, err := os.Stat(cfg.SslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
	}

	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", cfg.SslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, user_id, file_name, storage_url, source_type, content_type, status, page_count, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()), COALESCE($10, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.FileName, doc.StorageURL, doc.SourceType, doc.ContentType, doc.Status, doc.PageCount,
		nullTime(doc.CreatedAt), nullTime(doc.UpdatedAt))
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, user_id, file_name, storage_url, source_type, content_type, status, page_count, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.SourceType, &d.ContentType, &d.Status, &d.PageCount, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	const q = `
		SELECT id, user_id, file_name, storage_url, source_type, content_type, status, page_count, created_at, updated_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.SourceType, &d.ContentType, &d.Status, &d.PageCount, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	return c.execOne(ctx, q, id, status)
}

func (c *DatabaseClient) UpdateDocumentPageCount(ctx context.Context, id string, pages int) error {
	const q = `
		UPDATE documents
		SET page_count = $2, updated_at = now()
		WHERE id = $1
	`
	return c.execOne(ctx, q, id, pages)
}

func (c *DatabaseClient) execOne(ctx context.Context, q string, id string, arg any) error {
	res, err := c.db.ExecContext(ctx, q, id, arg)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// Document chunks

// InsertDocumentChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, position, page_number, text, embedding, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.Position, ch.PageNumber, ch.Text, pgvector.NewVector(ch.Embedding), ch.TokenCount,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SearchDocumentChunks finds top-k similar chunks within a document for a query embedding.
func (c *DatabaseClient) SearchDocumentChunks(ctx context.Context, docID string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, position, page_number, text, token_count
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY embedding <-> $2
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, docID, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Position, &ch.PageNumber, &ch.Text, &ch.TokenCount); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Context snippets

// AppendContextSnippet stores the snippet at the end of the user's list and
// sets its Position. Appends for one user are serialized by a transaction
// scoped advisory lock; the unique (user_id, position) index backs it up.
func (c *DatabaseClient) AppendContextSnippet(ctx context.Context, s *models.ContextSnippet) error {
	if s == nil {
		return errors.New("nil context snippet")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, snippetLockKey(s.UserID)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("lock context list: %w", err)
	}

	const q = `
		INSERT INTO context_snippets (id, user_id, document_id, position, text, created_at)
		SELECT $1, $2, NULLIF($3, ''), COALESCE(MAX(position) + 1, 0), $4, now()
		FROM context_snippets
		WHERE user_id = $2
		RETURNING position, created_at
	`
	if err := tx.QueryRowContext(ctx, q, s.ID, s.UserID, s.DocumentID, s.Text).Scan(&s.Position, &s.CreatedAt); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func snippetLockKey(userID string) string {
	return "context_snippets:" + userID
}

func (c *DatabaseClient) ListContextSnippets(ctx context.Context, userID string) ([]models.ContextSnippet, error) {
	const q = `
		SELECT id, user_id, COALESCE(document_id, ''), position, text, created_at
		FROM context_snippets
		WHERE user_id = $1
		ORDER BY position ASC, created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ContextSnippet{}
	for rows.Next() {
		var s models.ContextSnippet
		if err := rows.Scan(&s.ID, &s.UserID, &s.DocumentID, &s.Position, &s.Text, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteContextSnippetAt removes the index-th snippet (0-based, list order).
func (c *DatabaseClient) DeleteContextSnippetAt(ctx context.Context, userID string, index int) error {
	if index < 0 {
		return core.ErrNotFound
	}
	const q = `
		DELETE FROM context_snippets
		WHERE id = (
			SELECT id FROM context_snippets
			WHERE user_id = $1
			ORDER BY position ASC, created_at ASC
			OFFSET $2 LIMIT 1
		)
	`
	res, err := c.db.ExecContext(ctx, q, userID, index)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("context snippet %d: %w", index, core.ErrNotFound)
	}
	return nil
}

// DeleteContextSnippets removes the given snippets of userID. Unknown ids are
// ignored.
func (c *DatabaseClient) DeleteContextSnippets(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `DELETE FROM context_snippets WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	return err
}

func (c *DatabaseClient) ClearContextSnippets(ctx context.Context, userID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM context_snippets WHERE user_id = $1`, userID)
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
