// Package coretest provides in-memory implementations of the core
// interfaces for tests.
package coretest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Excerpta/internal/core"
	"github.com/markdave123-py/Excerpta/internal/models"
)

var _ core.DbClient = (*MemDB)(nil)

// MemDB is a goroutine-safe in-memory core.DbClient. Search returns chunks
// in position order and ignores the query vector.
type MemDB struct {
	mu       sync.Mutex
	docs     map[string]models.Document
	chunks   map[string][]models.DocumentChunk
	snippets map[string][]models.ContextSnippet

	// Err, when set, is returned by every call.
	Err error
}

func NewMemDB() *MemDB {
	return &MemDB{
		docs:     map[string]models.Document{},
		chunks:   map[string][]models.DocumentChunk{},
		snippets: map[string][]models.ContextSnippet{},
	}
}

func (m *MemDB) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.docs[doc.ID]; ok {
		return fmt.Errorf("document %s exists", doc.ID)
	}
	m.docs[doc.ID] = *doc
	return nil
}

func (m *MemDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	d, ok := m.docs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &d, nil
}

func (m *MemDB) ListDocumentsByUser(_ context.Context, userID string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []models.Document
	for _, d := range m.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemDB) UpdateDocumentStatus(_ context.Context, id string, status string) error {
	return m.updateDoc(id, func(d *models.Document) { d.Status = status })
}

func (m *MemDB) UpdateDocumentPageCount(_ context.Context, id string, pages int) error {
	return m.updateDoc(id, func(d *models.Document) { d.PageCount = pages })
}

func (m *MemDB) updateDoc(id string, fn func(*models.Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	d, ok := m.docs[id]
	if !ok {
		return core.ErrNotFound
	}
	fn(&d)
	d.UpdatedAt = time.Now()
	m.docs[id] = d
	return nil
}

func (m *MemDB) InsertDocumentChunks(_ context.Context, chunks []models.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, ch := range chunks {
		m.chunks[ch.DocumentID] = append(m.chunks[ch.DocumentID], ch)
	}
	return nil
}

func (m *MemDB) SearchDocumentChunks(_ context.Context, docID string, _ []float32, limit int) ([]models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	chunks := append([]models.DocumentChunk(nil), m.chunks[docID]...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

// Chunks returns the stored chunks of a document.
func (m *MemDB) Chunks(docID string) []models.DocumentChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DocumentChunk(nil), m.chunks[docID]...)
}

func (m *MemDB) AppendContextSnippet(_ context.Context, s *models.ContextSnippet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	list := m.snippets[s.UserID]
	s.Position = 0
	if n := len(list); n > 0 {
		s.Position = list[n-1].Position + 1
	}
	s.CreatedAt = time.Now()
	m.snippets[s.UserID] = append(list, *s)
	return nil
}

func (m *MemDB) ListContextSnippets(_ context.Context, userID string) ([]models.ContextSnippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]models.ContextSnippet{}, m.snippets[userID]...), nil
}

func (m *MemDB) DeleteContextSnippetAt(_ context.Context, userID string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	list := m.snippets[userID]
	if index < 0 || index >= len(list) {
		return core.ErrNotFound
	}
	m.snippets[userID] = append(list[:index:index], list[index+1:]...)
	return nil
}

func (m *MemDB) DeleteContextSnippets(_ context.Context, userID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []models.ContextSnippet
	for _, s := range m.snippets[userID] {
		if !drop[s.ID] {
			kept = append(kept, s)
		}
	}
	m.snippets[userID] = kept
	return nil
}

func (m *MemDB) ClearContextSnippets(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.snippets, userID)
	return nil
}

func (m *MemDB) Close() error { return nil }
