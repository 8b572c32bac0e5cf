package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Excerpta/internal/core"
	"github.com/markdave123-py/Excerpta/internal/models"
)

// FallbackReply is shown in place of an answer when the LLM call fails.
const FallbackReply = "Sorry, there was a problem reaching the assistant. Please try again."

// ErrAssistantUnavailable wraps LLM failures.
var ErrAssistantUnavailable = errors.New("assistant unavailable")

const retrievalLimit = 5

const groundingPrompt = "Answer using the excerpts and passages provided. " +
	"If they do not contain the answer, say 'I cannot find this in the document.'"

// ChatRequest is one user turn.
type ChatRequest struct {
	Message    string `json:"message"`
	AgentID    string `json:"agent"`
	DocumentID string `json:"document_id,omitempty"`
}

type ChatService struct {
	agents   *AgentCatalog
	db       core.DbClient
	docs     documentLookup
	contexts *ContextService
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
}

// NewChatService builds the chat relay. A nil catalogue selects the built-in
// agents.
func NewChatService(agents *AgentCatalog, db core.DbClient, docs documentLookup, contexts *ContextService, emb core.EmbeddingProvider, llm core.LLMProvider) *ChatService {
	if agents == nil {
		agents = DefaultAgentCatalog()
	}
	return &ChatService{agents: agents, db: db, docs: docs, contexts: contexts, embedder: emb, llm: llm}
}

// Agents lists the selectable agents.
func (s *ChatService) Agents() []Agent {
	return s.agents.List()
}

// Send relays the message, the user's context list and, when a document is
// named, its closest chunks to the LLM. The snippets that were sent are
// removed from the context list only after a reply was generated.
func (s *ChatService) Send(ctx context.Context, userID string, req ChatRequest) (*models.ChatMessage, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, ErrEmptyMessage
	}
	agent, ok := s.agents.Find(req.AgentID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, req.AgentID)
	}

	excerpts, sent, err := s.contexts.Take(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}

	var passages []models.DocumentChunk
	if req.DocumentID != "" {
		if _, err := s.docs.Get(ctx, userID, req.DocumentID); err != nil {
			return nil, err
		}
		passages = s.retrieve(ctx, req.DocumentID, msg)
	}

	answer, err := s.llm.Generate(ctx, agent.SystemPrompt+"\n\n"+groundingPrompt, buildPrompt(excerpts, passages, msg))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
	}

	if err := s.contexts.Remove(ctx, userID, sent); err != nil {
		log.Printf("ChatService: drop sent context for %s: %v", userID, err)
	}

	return &models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      "assistant",
		Content:   answer,
		Agent:     agent.Name,
		CreatedAt: time.Now(),
	}, nil
}

// retrieve returns the chunks nearest to the query. Failures are logged and
// the chat goes on without them.
func (s *ChatService) retrieve(ctx context.Context, docID, query string) []models.DocumentChunk {
	vecs, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		log.Printf("ChatService: embed query for %s: %v", docID, err)
		return nil
	}
	chunks, err := s.db.SearchDocumentChunks(ctx, docID, vecs[0], retrievalLimit)
	if err != nil {
		log.Printf("ChatService: search chunks of %s: %v", docID, err)
		return nil
	}
	return chunks
}

func buildPrompt(excerpts string, passages []models.DocumentChunk, question string) string {
	var sb strings.Builder
	if excerpts != "" {
		sb.WriteString("Selected excerpts:\n")
		sb.WriteString(excerpts)
		sb.WriteString("\n\n")
	}
	if len(passages) > 0 {
		sb.WriteString("Related passages:\n")
		for _, ch := range passages {
			fmt.Fprintf(&sb, "[page %d] %s\n---\n", ch.PageNumber, ch.Text)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}

// SystemMessage builds a message attributed to the service itself.
func SystemMessage(content string) *models.ChatMessage {
	return &models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      "assistant",
		Content:   content,
		Agent:     "System",
		CreatedAt: time.Now(),
	}
}
