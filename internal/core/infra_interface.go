package core

import (
	"context"
	"errors"
	"io"

	"github.com/markdave123-py/Excerpta/internal/models"
)

// ErrNotFound is returned by DbClient lookups that match no row.
var ErrNotFound = errors.New("not found")

// DbClient defines all persistence operations your services will need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error
	UpdateDocumentPageCount(ctx context.Context, id string, pages int) error

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	SearchDocumentChunks(ctx context.Context, docID string, queryVec []float32, limit int) ([]models.DocumentChunk, error)

	AppendContextSnippet(ctx context.Context, snippet *models.ContextSnippet) error
	ListContextSnippets(ctx context.Context, userID string) ([]models.ContextSnippet, error)
	DeleteContextSnippetAt(ctx context.Context, userID string, index int) error
	DeleteContextSnippets(ctx context.Context, userID string, ids []string) error
	ClearContextSnippets(ctx context.Context, userID string) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
