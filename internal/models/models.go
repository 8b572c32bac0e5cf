package models

import (
	"time"
)

// Document status values.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Document represents a user-uploaded document.
type Document struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	StorageURL  string    `db:"storage_url" json:"storage_url"` // S3 URL
	SourceType  string    `db:"source_type" json:"source_type"` // "upload"
	ContentType string    `db:"content_type" json:"content_type"`
	Status      string    `db:"status" json:"status"` // uploaded | processing | ready | failed
	PageCount   int       `db:"page_count" json:"page_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// IsPDF reports whether the document is rendered page by page.
func (d *Document) IsPDF() bool {
	return d.ContentType == "application/pdf"
}

// DocumentChunk represents one text chunk from a document.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
	Position   int       `db:"position" json:"position"`
	PageNumber int       `db:"page_number" json:"page_number"` // page the chunk starts on
	TokenCount int       `db:"token_count" json:"token_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ContextSnippet is one entry of a user's context list.
type ContextSnippet struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	DocumentID string    `db:"document_id" json:"document_id,omitempty"` // empty when added by hand
	Position   int       `db:"position" json:"position"`
	Text       string    `db:"text" json:"text"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ChatMessage represents an individual chat message (user or assistant).
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`    // "user" or "assistant"
	Content   string    `json:"content"` // message text
	Agent     string    `json:"agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
