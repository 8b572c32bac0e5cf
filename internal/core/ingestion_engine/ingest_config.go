package ingestion_engine

import (
	"sync"
	"time"

	"github.com/markdave123-py/Excerpta/internal/core"
)

// IngestConfig tunes the streaming pipeline.
//
// TargetTokens:   approximate tokens per chunk (e.g., 500).
// OverlapTokens:  token overlap between consecutive chunks (e.g., 50).
// BatchSize:      how many chunks to embed/write in one batch (e.g., 32).
// MaxFragmentLen: rune bound for a single fragment handed to the chunker.
// Timeout:        upper bound for processing one document.
type IngestConfig struct {
	TargetTokens   int
	OverlapTokens  int
	BatchSize      int
	MaxFragmentLen int
	Timeout        time.Duration
}

// DefaultIngestConfig is used when NewDocumentIngestor receives nil.
var DefaultIngestConfig = IngestConfig{
	TargetTokens:   500,
	OverlapTokens:  50,
	BatchSize:      32,
	MaxFragmentLen: 400,
	Timeout:        5 * time.Minute,
}

// fragment is a run of page text small enough to chunk.
type fragment struct {
	Page int
	Text string
}

// chunk is the internal representation passed through the pipeline.
//
// Pos:      stable, zero-based position of the chunk inside the document.
// Page:     page the chunk's first fragment came from.
// Text:     chunk content (built from one or more fragments).
// TokenCnt: approximate token count (used for batching and overlap math).
type chunk struct {
	Pos      int
	Page     int
	Text     string
	TokenCnt int
}

// DocumentIngestor orchestrates the background ingestion pipeline:
//
// db:        persistence for documents and chunks.
// pages:     page-level text access to stored files.
// embedder:  embedding provider.
// cfg:       runtime tuning knobs for the pipeline.
// jobs:      in-memory queue of document IDs to process.
type DocumentIngestor struct {
	db       core.DbClient
	pages    core.PageSource
	embedder core.EmbeddingProvider
	cfg      IngestConfig
	jobs     chan string
	workers  sync.WaitGroup
}
