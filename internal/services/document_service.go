package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Excerpta/internal/core"
	"github.com/markdave123-py/Excerpta/internal/core/selection"
	"github.com/markdave123-py/Excerpta/internal/models"
)

// Enqueuer schedules a stored document for ingestion.
type Enqueuer interface {
	Enqueue(ctx context.Context, docID string) error
}

type DocumentService struct {
	db      core.DbClient
	storage core.ObjectClient
	pages   core.PageSource
	ingest  Enqueuer
	bucket  string
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, pages core.PageSource, ingest Enqueuer, bucket string) *DocumentService {
	return &DocumentService{db: db, storage: storage, pages: pages, ingest: ingest, bucket: bucket}
}

// UploadAndCreate stores the file, records its metadata and queues it for
// ingestion. A failed enqueue is logged; the document stays "uploaded".
func (s *DocumentService) UploadAndCreate(ctx context.Context, userID, filename, contentType string, data io.Reader) (*models.Document, error) {
	docID := uuid.NewString()
	filename = filepath.Base(strings.TrimSpace(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := s.objectKey(userID, docID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}

	now := time.Now()
	doc := &models.Document{
		ID:          docID,
		UserID:      userID,
		FileName:    filename,
		StorageURL:  url,
		SourceType:  "upload",
		ContentType: contentType,
		Status:      models.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		if derr := s.storage.DeleteFile(context.WithoutCancel(ctx), s.bucket, key); derr != nil {
			log.Printf("DocumentService: orphaned object %s: %v", key, derr)
		}
		return nil, fmt.Errorf("store document metadata: %w", err)
	}

	if s.ingest != nil {
		if err := s.ingest.Enqueue(ctx, doc.ID); err != nil {
			log.Printf("DocumentService: enqueue %s: %v", doc.ID, err)
		}
	}
	return doc, nil
}

// Get returns the document when it exists and belongs to userID.
func (s *DocumentService) Get(ctx context.Context, userID, id string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *DocumentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	docs, err := s.db.ListDocumentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// PageText is the text layer of one page.
type PageText struct {
	DocumentID string                   `json:"document_id"`
	Page       int                      `json:"page"`
	PageCount  int                      `json:"page_count"`
	Text       string                   `json:"text"`
	Fragments  []selection.TextFragment `json:"fragments"`
}

// PageText returns the positioned fragments of a page together with the
// whole page as one string. Out-of-range pages return core.ErrPageOutOfRange.
func (s *DocumentService) PageText(ctx context.Context, userID, id string, page int) (*PageText, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	pd := s.pages.Open(doc)
	count, err := pd.PageCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	frags, err := pd.PageText(ctx, page)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(frags))
	for _, f := range frags {
		texts = append(texts, f.Text)
	}
	if frags == nil {
		frags = []selection.TextFragment{}
	}
	return &PageText{
		DocumentID: doc.ID,
		Page:       page,
		PageCount:  count,
		Text:       strings.Join(strings.Fields(strings.Join(texts, " ")), " "),
		Fragments:  frags,
	}, nil
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(userID, docID, filename string) string {
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "documents", docID, filename)
}
