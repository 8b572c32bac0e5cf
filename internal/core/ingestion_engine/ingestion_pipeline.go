package ingestion_engine

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Excerpta/internal/core"
	"github.com/markdave123-py/Excerpta/internal/models"
)

var _ Ingestor = (*DocumentIngestor)(nil)

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64).
// A nil cfg selects DefaultIngestConfig.
func NewDocumentIngestor(db core.DbClient, pages core.PageSource, emb core.EmbeddingProvider, cfg *IngestConfig) *DocumentIngestor {
	c := DefaultIngestConfig
	if cfg != nil {
		c = *cfg
	}
	return &DocumentIngestor{
		db: db, pages: pages, embedder: emb, cfg: c,
		jobs: make(chan string, 64),
	}
}

// Start runs numWorkers goroutines reading from the jobs channel until ctx
// is cancelled.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	for w := 1; w <= numWorkers; w++ {
		i.workers.Add(1)
		go func(w int) {
			defer i.workers.Done()
			for {
				select {
				case <-ctx.Done():
					log.Printf("DocumentIngestor: worker %d shutting down", w)
					return
				case docID := <-i.jobs:
					log.Printf("DocumentIngestor: processing document %s on worker %d", docID, w)
					if err := i.ProcessOne(ctx, docID); err != nil {
						log.Printf("DocumentIngestor: error processing document %s: %v", docID, err)
					}
				}
			}
		}(w)
	}
}

// Wait blocks until every worker started by Start has returned.
func (i *DocumentIngestor) Wait() {
	i.workers.Wait()
}

// Enqueue schedules a document ID for ingestion. It blocks while the queue
// is full, until ctx is done.
func (i *DocumentIngestor) Enqueue(ctx context.Context, docID string) error {
	select {
	case i.jobs <- docID:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", docID, ctx.Err())
	}
}

// ProcessOne extracts pages, chunks, embeds and persists a single document,
// moving its status to processing and then ready or failed.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, docID string) error {
	doc, err := i.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return fmt.Errorf("document %s: %w", docID, err)
	}

	// Status writes use a context detached from the worker so a shutdown
	// mid-document still records the failure.
	statusCtx := context.WithoutCancel(ctx)
	if err := i.db.UpdateDocumentStatus(ctx, docID, models.StatusProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	if err := i.run(ctx, doc); err != nil {
		if uerr := i.db.UpdateDocumentStatus(statusCtx, docID, models.StatusFailed); uerr != nil {
			log.Printf("DocumentIngestor: mark %s failed: %v", docID, uerr)
		}
		return err
	}
	return i.db.UpdateDocumentStatus(statusCtx, docID, models.StatusReady)
}

func (i *DocumentIngestor) run(ctx context.Context, doc *models.Document) error {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()

	pd := i.pages.Open(doc)
	pageCount, err := pd.PageCount(ctx)
	if err != nil {
		return fmt.Errorf("count pages: %w", err)
	}
	if err := i.db.UpdateDocumentPageCount(ctx, doc.ID, pageCount); err != nil {
		return fmt.Errorf("store page count: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// pages -> fragments
	fragCh := i.streamPages(gctx, g, pd, pageCount, i.cfg.MaxFragmentLen)

	// fragments -> chunks
	chunkCh := i.streamChunk(gctx, g, fragCh, i.cfg.TargetTokens, i.cfg.OverlapTokens)

	// chunks -> embed + persist
	var stored int
	g.Go(func() error {
		n, err := i.embedAndPersist(gctx, doc.ID, chunkCh, i.cfg.BatchSize)
		stored = n
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Printf("DocumentIngestor: document %s ready (%d pages, %d chunks)", doc.ID, pageCount, stored)
	return nil
}
