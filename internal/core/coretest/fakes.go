package coretest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/markdave123-py/Excerpta/internal/core"
	"github.com/markdave123-py/Excerpta/internal/core/selection"
	"github.com/markdave123-py/Excerpta/internal/models"
)

var (
	_ core.ObjectClient      = (*MemObjects)(nil)
	_ core.PageSource        = (*StaticPages)(nil)
	_ core.EmbeddingProvider = (*FakeEmbedder)(nil)
	_ core.LLMProvider       = (*FakeLLM)(nil)
)

// MemObjects keeps uploaded objects in memory.
type MemObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemObjects() *MemObjects {
	return &MemObjects{data: map[string][]byte{}}
}

func (m *MemObjects) UploadFile(_ context.Context, bucket, key string, r io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[bucket+"/"+key] = b
	return "https://" + bucket + ".s3.test.amazonaws.com/" + key, nil
}

func (m *MemObjects) DeleteFile(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, bucket+"/"+key)
	return nil
}

func (m *MemObjects) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return b, nil
}

func (m *MemObjects) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	b, err := m.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Len reports how many objects are stored.
func (m *MemObjects) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// StaticPages serves fixed page texts for every document. Each page is one
// string; words become separate fragments.
type StaticPages struct {
	Pages []string
	// Err, when set, fails every PageText call.
	Err error
}

func (s *StaticPages) Open(*models.Document) core.PageDocument { return s }

func (s *StaticPages) PageCount(context.Context) (int, error) {
	return len(s.Pages), nil
}

func (s *StaticPages) PageText(_ context.Context, page int) ([]selection.TextFragment, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if page < 1 || page > len(s.Pages) {
		return nil, core.ErrPageOutOfRange
	}
	var out []selection.TextFragment
	for _, w := range strings.Fields(s.Pages[page-1]) {
		out = append(out, selection.TextFragment{Text: w})
	}
	return out, nil
}

// FakeEmbedder returns a 3-dimensional vector per text.
type FakeEmbedder struct {
	mu    sync.Mutex
	Calls int
	Err   error
}

func (f *FakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(i), 1}
	}
	return out, nil
}

// FakeLLM records prompts and returns Reply.
type FakeLLM struct {
	mu           sync.Mutex
	Reply        string
	Err          error
	SystemPrompt string
	UserPrompt   string
}

func (f *FakeLLM) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SystemPrompt, f.UserPrompt = systemPrompt, userPrompt
	if f.Err != nil {
		return "", f.Err
	}
	return f.Reply, nil
}
