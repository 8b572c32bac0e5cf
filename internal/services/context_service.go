package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/markdave123-py/Excerpta/internal/core"
	"github.com/markdave123-py/Excerpta/internal/core/selection"
	"github.com/markdave123-py/Excerpta/internal/models"
)

// ContextSeparator joins context snippets into the string sent with a chat.
const ContextSeparator = "\n\n---\n\n"

// ContextService manages each user's ordered context list.
type ContextService struct {
	db core.DbClient
}

func NewContextService(db core.DbClient) *ContextService {
	return &ContextService{db: db}
}

// Append adds text to the end of the user's list.
func (s *ContextService) Append(ctx context.Context, userID, documentID, text string) (*models.ContextSnippet, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptySnippet
	}
	snip := &models.ContextSnippet{UserID: userID, DocumentID: documentID, Text: text}
	if err := s.db.AppendContextSnippet(ctx, snip); err != nil {
		return nil, fmt.Errorf("append context snippet: %w", err)
	}
	return snip, nil
}

func (s *ContextService) List(ctx context.Context, userID string) ([]models.ContextSnippet, error) {
	return s.db.ListContextSnippets(ctx, userID)
}

// RemoveAt deletes the index-th snippet, counting from 0 in list order.
func (s *ContextService) RemoveAt(ctx context.Context, userID string, index int) error {
	err := s.db.DeleteContextSnippetAt(ctx, userID, index)
	if errors.Is(err, core.ErrNotFound) {
		return ErrSnippetNotFound
	}
	return err
}

func (s *ContextService) Clear(ctx context.Context, userID string) error {
	return s.db.ClearContextSnippets(ctx, userID)
}

// Joined returns the list's texts separated by ContextSeparator, or "" for
// an empty list.
func (s *ContextService) Joined(ctx context.Context, userID string) (string, error) {
	joined, _, err := s.Take(ctx, userID)
	return joined, err
}

// Take returns the joined list together with the ids of the snippets in it,
// so exactly those can be dropped with Remove once they have been used.
func (s *ContextService) Take(ctx context.Context, userID string) (string, []string, error) {
	snips, err := s.List(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	texts := make([]string, len(snips))
	ids := make([]string, len(snips))
	for k, sn := range snips {
		texts[k] = sn.Text
		ids[k] = sn.ID
	}
	return strings.Join(texts, ContextSeparator), ids, nil
}

// Remove deletes the snippets with the given ids. Snippets appended after
// they were taken stay in the list.
func (s *ContextService) Remove(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.DeleteContextSnippets(ctx, userID, ids)
}

// SinkFor returns the sink committed selections of a viewer append to.
func (s *ContextService) SinkFor(userID, documentID string) selection.ContextSink {
	return &contextSink{svc: s, userID: userID, documentID: documentID}
}

type contextSink struct {
	svc        *ContextService
	userID     string
	documentID string
}

func (c *contextSink) Append(ctx context.Context, text string) error {
	_, err := c.svc.Append(ctx, c.userID, c.documentID, text)
	return err
}
