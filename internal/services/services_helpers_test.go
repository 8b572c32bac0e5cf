package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Excerpta/internal/core/coretest"
	"github.com/markdave123-py/Excerpta/internal/models"
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *recordingQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

type fixture struct {
	db       *coretest.MemDB
	objects  *coretest.MemObjects
	pages    *coretest.StaticPages
	queue    *recordingQueue
	docs     *DocumentService
	contexts *ContextService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:      coretest.NewMemDB(),
		objects: coretest.NewMemObjects(),
		pages: &coretest.StaticPages{Pages: []string{
			"Limits describe the value a function approaches as the input approaches some point.",
			"Derivatives measure how a function changes as its input changes.",
			"Integrals accumulate quantities such as areas under curves.",
		}},
		queue: &recordingQueue{},
	}
	f.docs = NewDocumentService(f.db, f.objects, f.pages, f.queue, "excerpta-test")
	f.contexts = NewContextService(f.db)
	return f
}

func (f *fixture) seedDoc(t *testing.T, id, owner string) {
	t.Helper()
	require.NoError(t, f.db.CreateDocument(context.Background(), &models.Document{
		ID: id, UserID: owner, FileName: "calculus.pdf", ContentType: "application/pdf", Status: models.StatusReady,
	}))
}
